// Package httpapi is the HTTP boundary of the auth server, built on gin.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// AuthService is what the handlers need from services.AuthService.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	Logout(ctx context.Context, refreshToken string) services.RefreshCookie
	LogoutAll(ctx context.Context, subjectID string) error
	Register(ctx context.Context, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
	CookieName() string
}

type HTTPServer struct {
	address string
	auth    AuthService
	logger  logging.Logger
	metrics *metrics.Metrics
	origins []string
	router  *gin.Engine
}

// NewHTTPServer builds the server and its router. m may be nil, in which case
// /metrics is not mounted.
func NewHTTPServer(address string, l logging.Logger, svc AuthService, m *metrics.Metrics, allowedOrigins []string) *HTTPServer {
	s := &HTTPServer{
		address: address,
		auth:    svc,
		logger:  l.With("module", "http_server"),
		metrics: m,
		origins: allowedOrigins,
	}
	s.router = s.newRouter()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) newRouter() *gin.Engine {
	r := gin.New()
	// gin.Recovery dumps request headers, cookies included, in debug mode
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, s.recoverPanic))
	r.Use(s.requestLogger())
	if s.metrics != nil {
		r.Use(s.requestMetrics())
	}
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/ping", s.ping)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	a := r.Group("/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.POST("/refresh", s.refresh)
	a.POST("/logout", s.logout)
	a.POST("/logout-all", s.requireAccessToken(), s.logoutAll)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
