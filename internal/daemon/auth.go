package daemon

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"fingerid/internal/services"
	"fingerid/internal/session"
	"fingerid/internal/store"
)

const (
	identityKey = "fingerid.identity"
	claimsKey   = "fingerid.claims"

	roleApprover  = store.RoleApprover
	roleSuperuser = store.RoleSuperuser
)

// requireSession validates the bearer token and loads the identity it names.
// Disabled and rejected accounts lose access to existing sessions.
func (s *apiServer) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeMessage(c, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := c.Request.Context()
		claims, err := s.components.Sessions.Parse(ctx, strings.TrimPrefix(header, "Bearer "))
		if errors.Is(err, session.ErrInvalidToken) {
			s.writeMessage(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err != nil {
			s.writeError(c, err)
			return
		}
		identity, err := s.components.Identities.Get(ctx, claims.UserID)
		if errors.Is(err, services.ErrNotFound) {
			s.writeMessage(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err != nil {
			s.writeError(c, err)
			return
		}
		if identity.Status == store.StatusDisabled || identity.Status == store.StatusRejected {
			s.writeError(c, &services.AccountNotActiveError{Status: string(identity.Status), Reason: identity.Reason})
			return
		}

		c.Set(identityKey, identity)
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(services.WithIdentityID(ctx, identity.ID))
		c.Next()
	}
}

// requireRole admits only identities holding one of roles. It must run after
// requireSession.
func requireRole(roles ...store.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if identity == nil || !slices.Contains(roles, identity.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient privileges"})
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) *store.Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := value.(*store.Identity)
	return identity
}

func currentClaims(c *gin.Context) *session.Claims {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*session.Claims)
	return claims
}
