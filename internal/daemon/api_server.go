package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fingerid/internal/api"
	"fingerid/internal/config"
	"fingerid/internal/logging"
	"fingerid/internal/services"
	"fingerid/internal/verification"
)

const (
	requestIDHeader = "X-Request-ID"
	uploadsRoute    = "/uploads"
)

type apiServer struct {
	bind       string
	logger     *slog.Logger
	daemon     *Daemon
	components Components

	uploadDir string
	tempDir   string
	maxUpload int64

	engine   *gin.Engine
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:       strings.TrimSpace(cfg.Server.Bind),
		logger:     logging.NewComponentLogger(logger, "api"),
		daemon:     d,
		components: d.components,
		uploadDir:  cfg.Paths.UploadDir,
		tempDir:    cfg.Paths.TempDir,
		maxUpload:  cfg.MaxUploadBytes(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), srv.requestContext(), srv.observe())
	srv.routes(engine)
	srv.engine = engine

	srv.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout(),
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	if s.components.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.components.Metrics.Handler()))
	}
	r.GET(uploadsRoute+"/:name", s.handleUpload)

	authGroup := r.Group("/api/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleDigestLogin)
	authGroup.POST("/logout", s.requireSession(), s.handleLogout)
	authGroup.GET("/me", s.requireSession(), s.handleMe)
	authGroup.GET("/my-features", s.requireSession(), s.handleMyFeatures)

	biometricGroup := r.Group("/api/python-auth")
	biometricGroup.POST("/login", s.handleSimilarityLogin)
	biometricGroup.POST("/register-features", s.requireSession(), s.handleEnroll)
	biometricGroup.GET("/features", s.requireSession(), s.handleFeatures)
	biometricGroup.DELETE("/features", s.requireSession(), s.handleDeleteFeatures)

	adminGroup := r.Group("/api/admin", s.requireSession(), requireRole(roleApprover, roleSuperuser))
	adminGroup.GET("/pending", s.handlePending)
	adminGroup.GET("/users/:id", s.handleUserDetail)
	adminGroup.POST("/users/:id/audit", s.handleReview)

	superGroup := r.Group("/api/super-admin", s.requireSession(), requireRole(roleSuperuser))
	superGroup.GET("/users", s.handleListUsers)
	superGroup.POST("/users", s.handleCreateUser)
	superGroup.PUT("/users/:id", s.handleUpdateUser)
	superGroup.DELETE("/users/:id", s.handleDeleteUser)
	superGroup.GET("/status", s.handleStatus)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// requestContext tags every request with a correlation identifier.
func (s *apiServer) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *apiServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		if s.components.Metrics != nil {
			s.components.Metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)
		}
		s.log(c).Debug("http request",
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
		)
	}
}

func (s *apiServer) log(c *gin.Context) *slog.Logger {
	return logging.WithContext(c.Request.Context(), s.logger)
}

func (s *apiServer) writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// writeError maps a marker-tagged error to its status and public message.
// Rejected logins carry the model verdict; inactive accounts their status.
func (s *apiServer) writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	resp := api.ErrorResponse{Error: services.PublicMessage(err)}

	var inactive *services.AccountNotActiveError
	if errors.As(err, &inactive) {
		resp.Status = inactive.Status
		resp.Reason = inactive.Reason
	}
	var reject *verification.RejectError
	if errors.As(err, &reject) {
		resp.Details = api.FromSimilarity(reject.Result, verification.Decision{Reason: reject.Reason})
	}

	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(s.log(c), "request failed", "http_request_failed",
			logging.Error(err),
			logging.String("route", c.FullPath()),
			logging.Int("status", status),
			logging.String(logging.FieldImpact, "client received a server error"),
			logging.String(logging.FieldErrorHint, "inspect the wrapped error chain"),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}

func (s *apiServer) writeMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: message})
}
