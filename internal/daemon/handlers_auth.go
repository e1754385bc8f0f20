package daemon

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"fingerid/internal/api"
	"fingerid/internal/identity"
	"fingerid/internal/services"
	"fingerid/internal/verification"
)

type credentialsBody struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// credentials reads username and password from a JSON, urlencoded or
// multipart body. An empty body yields empty credentials.
func credentials(c *gin.Context, op string) (verification.Credentials, error) {
	var body credentialsBody
	if err := c.ShouldBind(&body); err != nil && !errors.Is(err, io.EOF) {
		return verification.Credentials{}, services.Wrap(services.ErrValidation, "api", op, "malformed request body", err)
	}
	return verification.Credentials{Username: strings.TrimSpace(body.Username), Password: body.Password}, nil
}

func (s *apiServer) handleRegister(c *gin.Context) {
	images, err := s.receiveImages(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer func() { s.discardImages(c, images) }()

	if err := s.completeImages(c, &images); err != nil {
		s.writeError(c, err)
		return
	}
	if s.missingEnrollmentImages(c, images) {
		return
	}

	in := identity.RegisterInput{
		Username: c.PostForm("username"),
		Password: c.PostForm("password"),
		Profile: identity.Profile{
			RealName: c.PostForm("realName"),
			Email:    c.PostForm("email"),
			Phone:    c.PostForm("phone"),
		},
	}
	created, _, err := s.components.Identities.Register(c.Request.Context(), in, images)
	if err != nil {
		s.writeError(c, err)
		return
	}
	user := api.FromIdentity(created)
	s.writeJSON(c, http.StatusCreated, api.MessageResponse{
		Message: "registration submitted, awaiting approval",
		User:    &user,
	})
}

// handleDigestLogin checks the password and, when images are attached, that
// each is byte-identical to one enrolled for the account.
func (s *apiServer) handleDigestLogin(c *gin.Context) {
	images, err := s.receiveImages(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer func() { s.discardImages(c, images) }()

	creds, err := credentials(c, "login")
	if err != nil {
		s.writeError(c, err)
		return
	}
	outcome, err := s.components.Verifier.LoginWithDigests(c.Request.Context(), creds, images)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.FromLogin(outcome))
}

func (s *apiServer) handleLogout(c *gin.Context) {
	if err := s.components.Sessions.Revoke(c.Request.Context(), currentClaims(c)); err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.MessageResponse{Message: "logged out"})
}

func (s *apiServer) handleMe(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, api.FromIdentity(currentIdentity(c)))
}

func (s *apiServer) handleMyFeatures(c *gin.Context) {
	e, err := s.components.Enrollments.Get(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, gin.H{"features": api.FeatureNames(e)})
}

// handleUpload serves one stored enrollment image by its bare name.
func (s *apiServer) handleUpload(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		s.writeMessage(c, http.StatusNotFound, "not found")
		return
	}
	path := filepath.Join(s.uploadDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.writeMessage(c, http.StatusNotFound, "not found")
		return
	}
	c.File(path)
}

func (s *apiServer) handleHealth(c *gin.Context) {
	resp := api.HealthResponse{Status: "ok", Database: "ok"}
	if err := s.daemon.store.Ping(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = services.PublicMessage(err)
		s.writeJSON(c, http.StatusServiceUnavailable, resp)
		return
	}
	if version, err := s.daemon.store.SchemaVersion(c.Request.Context()); err == nil {
		resp.Schema = version
	}
	s.writeJSON(c, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, s.daemon.Status(c.Request.Context()).API())
}
