// Package bootstrap assembles the lesson hub from configuration. The API
// server and the admin CLI share it so both run against the same stores.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/config"
	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/eventhandler"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/application/session"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/external/gemini"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/messaging"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/memory"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/postgres"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/redis"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/sqlite"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/toml"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/security"
	httpapi "github.com/nst-ai/lesson-hub/internal/interface/http"
	"github.com/nst-ai/lesson-hub/internal/interface/http/handlers"
	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is a backing service that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// eventBus is what both bus implementations provide.
type eventBus interface {
	shared.EventBus
	Metrics() *messaging.EventBusMetrics
	Close() error
}

// App holds every wired component of one process.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Clock  timeutil.Clock

	Store      curriculum.ContentStore
	Accounts   account.Repository
	UnitOfWork curriculum.LessonUnitOfWork
	Logins     account.SessionStore
	Settings   *toml.SettingsRepository
	Generator  curriculum.Generator
	Hasher     account.PasswordHasher
	Bus        eventBus
	Audit      *eventhandler.AuditLog

	// Commands
	Register       *command.RegisterHandler
	Login          *command.LoginHandler
	RequestContent *command.RequestContentHandler
	Overwrite      *command.OverwriteContentHandler
	AdjustCredits  *command.AdjustCreditsHandler
	SetAccountLock *command.SetAccountLockHandler
	UpdateSettings *command.UpdateSettingsHandler

	// Queries
	GetLesson    *query.GetLessonHandler
	ListChapters *query.ListChaptersHandler
	StorageStats *query.StorageStatsHandler

	Sessions *session.Registry

	// Migrations is the schema status after startup. Only postgres tracks it.
	Migrations []postgres.Migration

	storePing Pinger
	redis     *redis.Cache
	gemini    *gemini.Client
	closers   []func()
}

// Options overrides parts of the wiring. Tests use it to swap the generator.
type Options struct {
	Generator curriculum.Generator
	Hasher    account.PasswordHasher
	Clock     timeutil.Clock
}

// Build connects the stores and constructs every handler. On error the
// resources opened so far are released.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	app := &App{Config: cfg, Log: log, Clock: opts.Clock}
	if app.Clock == nil {
		app.Clock = timeutil.SystemClock{}
	}
	if err := app.build(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}

	log.Info("application assembled",
		logger.String("store", cfg.Store.Backend),
		logger.Bool("redis", app.redis != nil),
		logger.Bool("gemini", app.gemini != nil),
	)
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config

	// ─────────────────────────────────────────────────────────────────────────
	// 1. STORE
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openStore(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	a.Logins = memory.NewSessionStore(a.Clock)
	if cfg.Redis.Enabled {
		a.openRedis()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openBus(); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SETTINGS, GENERATOR, HASHER
	// ─────────────────────────────────────────────────────────────────────────
	var err error
	a.Settings, err = toml.NewSettingsRepository(cfg.Settings.Path)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	a.Generator = opts.Generator
	if a.Generator == nil {
		if a.Generator, err = a.openGenerator(ctx); err != nil {
			return err
		}
	}

	a.Hasher = opts.Hasher
	if a.Hasher == nil {
		a.Hasher = security.NewBcryptHasher(cfg.Admin.BcryptCost)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	a.buildHandlers()

	if cfg.Admin.Password != "" {
		created, err := command.EnsureAdmin(ctx, a.Accounts, a.Hasher, cfg.Admin.Password)
		if err != nil {
			return err
		}
		if created {
			a.Log.Info("admin account created", logger.UserID(shared.AdminUserID.String()))
		}
	}
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		a.Store = sqlite.NewContentStore(db)
		a.Accounts = sqlite.NewAccountRepository(db)
		a.UnitOfWork = sqlite.NewUnitOfWork(db)
		a.storePing = db

	case config.StorePostgres:
		conn, err := postgres.Open(ctx, cfg.Database.URL, postgres.Config{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return err
		}
		a.onClose(conn.Close)

		status, err := migrate(ctx, conn, a.Log)
		if err != nil {
			return err
		}
		a.Migrations = status
		a.Store = postgres.NewContentRepository(conn)
		a.Accounts = postgres.NewAccountRepository(conn)
		a.UnitOfWork = postgres.NewUnitOfWork(conn)
		a.storePing = conn

	case config.StoreMemory:
		store := memory.NewContentStore()
		accounts := memory.NewAccountRepository()
		a.Store = store
		a.Accounts = accounts
		a.UnitOfWork = memory.NewUnitOfWork(store, accounts)

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}

func migrate(ctx context.Context, conn *postgres.Connection, log *logger.Logger) ([]postgres.Migration, error) {
	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", logger.Err(err))
		return nil, nil
	}
	applied := 0
	for _, m := range status {
		if m.IsApplied {
			applied++
		}
	}
	log.Info("migrations completed", logger.Int("applied", applied), logger.Int("total", len(status)))
	return status, nil
}

// openRedis puts the content cache in front of the store and moves login
// tokens to Redis. A failed connection leaves both on their fallbacks.
func (a *App) openRedis() {
	rc := a.Config.Redis
	cache, err := redis.NewCache(redis.Config{
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	if err != nil {
		a.Log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return
	}
	a.onClose(func() { _ = cache.Close() })
	a.redis = cache

	a.Store = redis.NewContentCache(cache, a.Store, rc.ContentTTL, a.Log)
	a.Logins = redis.NewSessionStore(cache)
}

func (a *App) openBus() error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = a.Log

	if a.redis != nil {
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         a.redis,
			ChannelName:    a.Config.Redis.Channel,
			InstanceID:     uuid.NewString(),
			Forward:        []shared.EventType{shared.EventContentOverwritten},
			LocalBusConfig: local,
			Logger:         a.Log,
		})
		if err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
		a.Bus = bus
	} else {
		a.Bus = messaging.NewInMemoryEventBus(local)
	}
	a.onClose(func() { _ = a.Bus.Close() })

	a.Audit = eventhandler.NewAuditLog(a.Log)
	var overwritten *eventhandler.OnContentOverwrittenHandler
	if invalidator, ok := a.Store.(eventhandler.CacheInvalidator); ok {
		overwritten = eventhandler.NewOnContentOverwrittenHandler(invalidator, a.Log)
	}
	return eventhandler.Register(a.Bus, a.Audit, overwritten)
}

func (a *App) openGenerator(ctx context.Context) (curriculum.Generator, error) {
	gc := a.Config.Gemini
	if gc.APIKey == "" {
		a.Log.Warn("GEMINI_API_KEY is not set, lesson generation is disabled")
		return unconfiguredGenerator{}, nil
	}
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:            gc.APIKey,
		Model:             gc.Model,
		Temperature:       float32(gc.Temperature),
		RequestsPerMinute: gc.RequestsPerMinute,
		Burst:             gc.Burst,
		MaxAttempts:       gc.MaxAttempts,
		InitialDelay:      gc.RetryDelay,
		BreakerThreshold:  gc.BreakerThreshold,
		BreakerTimeout:    gc.BreakerTimeout,
		Logger:            a.Log,
	})
	if err != nil {
		return nil, err
	}
	a.gemini = client
	return client, nil
}

func (a *App) buildHandlers() {
	cfg := a.Config
	log := a.Log

	a.Register = command.NewRegisterHandler(a.Accounts, a.Hasher, a.Settings, a.Bus, log, command.RegisterHandlerConfig{})
	a.Login = command.NewLoginHandler(a.Accounts, a.Hasher, a.Logins, a.Settings, log,
		command.LoginHandlerConfig{SessionTTL: cfg.Session.LoginTTL})
	a.RequestContent = command.NewRequestContentHandler(a.Store, a.UnitOfWork, a.Generator, a.Accounts, a.Settings, a.Bus, log,
		command.RequestContentHandlerConfig{GenerationTimeout: cfg.Session.GenerationTimeout})
	a.Overwrite = command.NewOverwriteContentHandler(a.Store, a.Accounts, a.Bus, log)
	a.AdjustCredits = command.NewAdjustCreditsHandler(a.Accounts, a.Bus, log)
	a.SetAccountLock = command.NewSetAccountLockHandler(a.Accounts, a.Bus, log)
	a.UpdateSettings = command.NewUpdateSettingsHandler(a.Settings, a.Accounts, a.Bus, log)

	a.GetLesson = query.NewGetLessonHandler(a.Store, a.Clock)
	a.ListChapters = query.NewListChaptersHandler(a.Store, a.Generator, log,
		query.ListChaptersConfig{Timeout: cfg.Session.ChapterListTimeout})
	a.StorageStats = query.NewStorageStatsHandler(a.Store, a.Clock, log)

	a.Sessions = session.NewRegistry(navigation.NewMachine(a.classPolicy()), a.RequestContent, a.Clock, log, session.Config{
		MinLoadingDuration: cfg.Session.MinLoadingDuration,
		GenerationTimeout:  cfg.Session.GenerationTimeout,
	})
	a.onClose(a.Sessions.CloseAll)
}

// classPolicy reads the allowed classes from the live settings. If the file
// cannot be read every class is allowed.
func (a *App) classPolicy() navigation.ClassPolicy {
	return func(level int) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		sys, err := a.Settings.Load(ctx)
		if err != nil {
			a.Log.Warn("settings unavailable for class check", logger.Err(err))
			return true
		}
		return sys.IsClassAllowed(level)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SURFACES
// ══════════════════════════════════════════════════════════════════════════════

// HTTPDependencies returns the handler set for the API server.
func (a *App) HTTPDependencies() httpapi.Dependencies {
	return httpapi.Dependencies{
		Register:       a.Register,
		Login:          a.Login,
		Overwrite:      a.Overwrite,
		AdjustCredits:  a.AdjustCredits,
		SetAccountLock: a.SetAccountLock,
		UpdateSettings: a.UpdateSettings,
		GetLesson:      a.GetLesson,
		ListChapters:   a.ListChapters,
		StorageStats:   a.StorageStats,
		Sessions:       a.Sessions,
		Accounts:       a.Accounts,
		Settings:       a.Settings,
		HealthChecker:  a.HealthChecker(),
		Logger:         a.Log,
	}
}

// HealthChecker reports the store as critical and Redis as optional, with
// generator, event and session details.
func (a *App) HealthChecker() *handlers.CompositeHealthChecker {
	hc := handlers.NewCompositeHealthChecker(a.Config.App.Version)
	if a.storePing != nil {
		hc.AddCheck("store", handlers.NewPingCheck(a.storePing))
	}
	if a.redis != nil {
		hc.AddOptionalCheck("redis", handlers.NewPingCheck(a.redis))
	}
	if a.gemini != nil {
		client := a.gemini
		hc.AddDetail("generator_breaker", func() any { return client.BreakerState().String() })
	}
	hc.AddDetail("events", func() any {
		return map[string]any{
			"bus":   a.Bus.Metrics().Snapshot(),
			"audit": a.Audit.Counts(),
		}
	})
	hc.AddDetail("sessions", func() any { return a.Sessions.Len() })
	return hc
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// ══════════════════════════════════════════════════════════════════════════════

var errGeneratorNotConfigured = errors.New("gemini API key is not configured")

// unconfiguredGenerator stands in when no API key is set (development only):
// cached content is served, new content fails as an upstream error.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(context.Context, curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
	return nil, curriculum.NewGenerationFailure(curriculum.FailureUpstream, errGeneratorNotConfigured)
}

func (unconfiguredGenerator) ListChapters(context.Context, curriculum.Selector, curriculum.Language) ([]string, error) {
	return nil, curriculum.NewGenerationFailure(curriculum.FailureUpstream, errGeneratorNotConfigured)
}
