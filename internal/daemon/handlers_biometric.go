package daemon

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fingerid/internal/api"
	"fingerid/internal/enrollment"
	"fingerid/internal/services"
)

// handleSimilarityLogin runs the model-scored login. The response always
// reports the model verdict once the model has answered.
func (s *apiServer) handleSimilarityLogin(c *gin.Context) {
	images, err := s.receiveImages(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer func() { s.discardImages(c, images) }()

	creds, err := credentials(c, "similarity login")
	if err != nil {
		s.writeError(c, err)
		return
	}
	outcome, err := s.components.Verifier.LoginWithSimilarity(c.Request.Context(), creds, images)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.FromLogin(outcome))
}

func (s *apiServer) handleEnroll(c *gin.Context) {
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

	result, err := s.components.Enrollments.Enroll(c.Request.Context(), currentIdentity(c).ID, images)
	if err != nil {
		s.writeError(c, err)
		return
	}
	status, message := http.StatusOK, "biometric features updated"
	if result.Action == enrollment.ActionCreated {
		status, message = http.StatusCreated, "biometric features registered"
	}
	s.writeJSON(c, status, api.MessageResponse{Message: message, Action: string(result.Action)})
}

func (s *apiServer) handleFeatures(c *gin.Context) {
	e, err := s.components.Enrollments.Get(c.Request.Context(), currentIdentity(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if e == nil {
		s.writeError(c, services.Wrap(services.ErrNotFound, "api", "features", "no biometric enrollment on file", nil))
		return
	}
	s.writeJSON(c, http.StatusOK, gin.H{"features": api.FeatureURLs(e, uploadsRoute)})
}

func (s *apiServer) handleDeleteFeatures(c *gin.Context) {
	if err := s.components.Enrollments.Delete(c.Request.Context(), currentIdentity(c).ID); err != nil {
		s.writeError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, api.MessageResponse{Message: "biometric features deleted"})
}
