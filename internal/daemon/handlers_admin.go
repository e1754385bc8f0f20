package daemon

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fingerid/internal/api"
	"fingerid/internal/identity"
	"fingerid/internal/services"
	"fingerid/internal/store"
)

const maxListLimit = 500

func (s *apiServer) handlePending(c *gin.Context) {
	users, err := s.components.Identities.Pending(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.UserListResponse{Users: api.FromIdentities(users)})
}

func (s *apiServer) handleUserDetail(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	target, err := s.components.Identities.Get(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	e, err := s.components.Enrollments.Get(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	history, err := s.components.Identities.History(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.UserDetail{
		User:     api.FromIdentity(target),
		Features: api.FeatureURLs(e, uploadsRoute),
		Audit:    api.FromAuditRecords(history),
	})
}

func (s *apiServer) handleReview(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var req api.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "review", "action is required", err))
		return
	}
	updated, err := s.components.Identities.Review(c.Request.Context(), currentIdentity(c).ID, id, req.Action, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	user := api.FromIdentity(updated)
	s.writeJSON(c, http.StatusOK, api.MessageResponse{
		Message: "review recorded",
		Action:  strings.ToUpper(strings.TrimSpace(req.Action)),
		User:    &user,
	})
}

// handleListUsers accepts role, status, keyword, searchType, limit and offset
// query parameters.
func (s *apiServer) handleListUsers(c *gin.Context) {
	filter := store.IdentityFilter{
		Role:    store.Role(strings.ToUpper(c.Query("role"))),
		Status:  store.Status(strings.ToUpper(c.Query("status"))),
		Keyword: strings.TrimSpace(c.Query("keyword")),
		Field:   searchField(c.Query("searchType")),
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		s.writeError(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		s.writeError(c, err)
		return
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	users, err := s.components.Identities.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.UserListResponse{Users: api.FromIdentities(users)})
}

func (s *apiServer) handleCreateUser(c *gin.Context) {
	var req api.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "create user", "username, password and role are required", err))
		return
	}
	created, err := s.components.Identities.Create(c.Request.Context(), currentIdentity(c).ID, identity.CreateInput{
		Username: req.Username,
		Password: req.Password,
		Role:     store.Role(strings.ToUpper(req.Role)),
		Profile:  identity.Profile{RealName: req.RealName, Email: req.Email, Phone: req.Phone},
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	user := api.FromIdentity(created)
	s.writeJSON(c, http.StatusCreated, api.MessageResponse{Message: "user created", User: &user})
}

func (s *apiServer) handleUpdateUser(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var req api.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "update user", "malformed body", err))
		return
	}
	in := identity.UpdateInput{
		Password: req.Password,
		RealName: req.RealName,
		Email:    req.Email,
		Phone:    req.Phone,
		Reason:   req.Reason,
	}
	if req.Role != nil {
		role := store.Role(strings.ToUpper(*req.Role))
		in.Role = &role
	}
	if req.Status != nil {
		status := store.Status(strings.ToUpper(*req.Status))
		in.Status = &status
	}
	updated, err := s.components.Identities.Update(c.Request.Context(), currentIdentity(c).ID, id, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	user := api.FromIdentity(updated)
	s.writeJSON(c, http.StatusOK, api.MessageResponse{Message: "user updated", User: &user})
}

func (s *apiServer) handleDeleteUser(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.components.Identities.Delete(c.Request.Context(), currentIdentity(c).ID, id); err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.MessageResponse{Message: "user deleted"})
}

func (s *apiServer) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, services.Wrap(services.ErrValidation, "api", "parse id", "invalid user id", nil))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "list users", "invalid "+key, nil)
	}
	return value, nil
}

// searchField maps the searchType query values to store search fields.
func searchField(value string) string {
	switch strings.TrimSpace(value) {
	case "", "all":
		return store.SearchAll
	case "realName", "real_name":
		return store.SearchRealName
	default:
		return strings.TrimSpace(value)
	}
}
