// Package http exposes the lesson hub over a JSON REST API (gin).
package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/application/session"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/internal/interface/http/handlers"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - address to bind (default: ":8080").
	Addr string

	ReadTimeout time.Duration

	// WriteTimeout must exceed the generation timeout of synchronous calls.
	WriteTimeout time.Duration

	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// CORSOrigins - allowed origins; empty disables CORS, "*" allows all.
	CORSOrigins []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   90 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// AccountDirectory reads accounts for admin views and impersonation.
type AccountDirectory interface {
	GetByID(ctx context.Context, id shared.UserID) (*account.User, error)
	List(ctx context.Context) ([]*account.User, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands
	Register       *command.RegisterHandler
	Login          *command.LoginHandler
	Overwrite      *command.OverwriteContentHandler
	AdjustCredits  *command.AdjustCreditsHandler
	SetAccountLock *command.SetAccountLockHandler
	UpdateSettings *command.UpdateSettingsHandler

	// Queries
	GetLesson    *query.GetLessonHandler
	ListChapters *query.ListChaptersHandler
	StorageStats *query.StorageStatsHandler

	Sessions *session.Registry
	Accounts AccountDirectory
	Settings command.SettingsSource

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.MaxHeaderBytes <= 0 {
		config.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.engine = s.buildEngine()
	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the routed engine (used by tests).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) buildEngine() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(handlers.RequestID(s.logger), handlers.Recovery(), handlers.AccessLog())
	if c, ok := s.corsConfig(); ok {
		r.Use(cors.New(c))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, shared.NewDomainError("http", "Route", shared.ErrNotFound, "route not found"))
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, handlers.ErrorEnvelope{
			Error: handlers.APIError{Message: "method not allowed", Code: "METHOD_NOT_ALLOWED"},
		})
	})

	health := handlers.NewHealthHandler(s.deps.HealthChecker)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/live", health.Live)

	api := r.Group("/api/v1")
	api.Use(handlers.Authenticate(s.deps.Login))

	// Public
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.GET("/lessons", s.handlePeekLesson)
	api.GET("/chapters", s.handleListChapters)

	// Sessions: anonymous sessions answer to their X-Session-Key, owned sessions to their owner.
	api.POST("/sessions", s.handleOpenSession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleCloseSession)
	api.POST("/sessions/:id/events", s.handleSessionEvent)
	api.POST("/sessions/:id/content", s.handleSessionContent)

	// Authenticated
	user := api.Group("")
	user.Use(handlers.RequireUser())
	user.POST("/auth/logout", s.handleLogout)
	user.GET("/me", s.handleMe)

	// Admin
	admin := api.Group("/admin")
	admin.Use(handlers.RequireAdmin())
	admin.PUT("/lessons", s.handleOverwriteLesson)
	admin.GET("/accounts", s.handleListAccounts)
	admin.POST("/accounts/:id/credits", s.handleAdjustCredits)
	admin.POST("/accounts/:id/lock", s.handleSetLock)
	admin.GET("/storage", s.handleStorageStats)
	admin.GET("/settings", s.handleGetSettings)
	admin.PUT("/settings", s.handleUpdateSettings)

	return r
}

func (s *Server) corsConfig() (cors.Config, bool) {
	if len(s.config.CORSOrigins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", handlers.RequestIDHeader},
		ExposeHeaders: []string{handlers.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(s.config.CORSOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = s.config.CORSOrigins
	}
	return c, true
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown. A graceful shutdown returns nil.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server starting", logger.String("addr", s.config.Addr))

	err := s.httpServer.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Addr
}
