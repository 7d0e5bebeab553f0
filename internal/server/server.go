package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aman-churiwal/projectguard/internal/config"
	"github.com/aman-churiwal/projectguard/internal/handler"
	"github.com/aman-churiwal/projectguard/internal/middleware"
	"github.com/aman-churiwal/projectguard/internal/ratelimit"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/aman-churiwal/projectguard/internal/service"
	"github.com/gin-gonic/gin"
)

// Pinger reports the health of a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries the constructed services the routes are served from
type Deps struct {
	Auth       *service.AuthService
	Membership *service.MembershipService
	Audit      *service.AuditService
	Vault      *service.VaultService
	Limiter    *ratelimit.Limiter
	Delayer    security.Delayer
	Logger     *slog.Logger

	// Health checks keyed by component name; nil entries are skipped
	Checks map[string]Pinger
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	deps       Deps
	logger     *slog.Logger
	httpServer *http.Server
	startedAt  time.Time
}

func New(cfg *config.Config, deps Deps) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		router:    gin.New(),
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.Server.AllowedOrigins))
}

func (s *Server) setupRoutes() {
	d := s.deps

	authHandler := handler.NewAuthHandler(d.Auth, d.Delayer, s.logger)
	membershipHandler := handler.NewMembershipHandler(d.Membership, d.Delayer, s.logger)
	auditHandler := handler.NewAuditHandler(d.Audit, d.Membership, d.Delayer, s.logger)
	credentialHandler := handler.NewCredentialHandler(d.Vault, d.Delayer, s.logger)

	s.router.GET("/health", s.healthCheck)

	throttle := middleware.NewIPThrottle(10, 5, 10000)

	auth := s.router.Group("/api/auth")
	auth.Use(throttle.Middleware(d.Delayer))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	api := s.router.Group("/api")
	api.Use(middleware.RequireAuth(d.Auth, d.Delayer))
	{
		api.POST("/projects", membershipHandler.CreateProject)

		projects := api.Group("/projects/:projectId")
		{
			projects.GET("/members", membershipHandler.List)
			projects.POST("/members",
				middleware.RateLimit(d.Limiter, ratelimit.EndpointMemberInvite, d.Delayer),
				membershipHandler.Invite)
			projects.PATCH("/members/:userId",
				middleware.RateLimit(d.Limiter, ratelimit.EndpointMemberUpdate, d.Delayer),
				membershipHandler.UpdateRole)
			projects.DELETE("/members/:userId",
				middleware.RateLimit(d.Limiter, ratelimit.EndpointMemberRemove, d.Delayer),
				membershipHandler.Remove)
			projects.GET("/audit-logs", auditHandler.List)
		}

		credentials := api.Group("/credentials")
		{
			credentials.POST("", credentialHandler.Create)
			credentials.GET("", credentialHandler.List)
			credentials.PATCH("/:id", credentialHandler.Update)
			credentials.DELETE("/:id", credentialHandler.Delete)
			credentials.POST("/:id/reveal",
				middleware.RateLimit(d.Limiter, ratelimit.EndpointCredentialReveal, d.Delayer),
				credentialHandler.Reveal)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	for name, p := range s.deps.Checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			healthy = false
			checks[name] = false
			s.logger.Warn("health check failed", "component", name, "error", err)
			continue
		}
		checks[name] = true
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !healthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "projectguard",
		"version":   s.config.App.Version,
		"uptime":    time.Since(s.startedAt).Seconds(),
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting projectguard", "addr", addr, "environment", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
