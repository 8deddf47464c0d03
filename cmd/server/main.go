// Package main - точка входа HTTP API сервиса уроков NST.
//
// Сервис отдаёт закэшированные артефакты уроков, генерирует недостающие
// через Gemini и списывает кредиты; навигационные сессии живут в памяти
// процесса, фоновый планировщик закрывает простаивающие.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/nst-ai/lesson-hub/config"
	"github.com/nst-ai/lesson-hub/internal/bootstrap"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/scheduler"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/nst-ai/lesson-hub/internal/interface/http"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	// Корневой контекст отменяется по сигналу завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, err := logger.New(logger.Options{
		Level:      logger.ParseLevel(cfg.Observability.LogLevel),
		Production: cfg.IsProduction(),
		AddCaller:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting NST lesson hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Store.Backend),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. СБОРКА ПРИЛОЖЕНИЯ (хранилище, Redis, шина событий, обработчики)
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() {
		log.Info("releasing resources...")
		app.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК ФОНОВЫХ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log, Clock: app.Clock})
	if err := sched.Register(
		jobs.NewSweepSessionsJob(app.Sessions, cfg.Session.IdleTTL, app.Clock, log),
		scheduler.Every(cfg.Session.SweepInterval),
	); err != nil {
		return err
	}
	if cfg.Session.StorageReportInterval > 0 {
		if err := sched.Register(
			jobs.NewStorageReportJob(app.StorageStats, log),
			scheduler.Every(cfg.Session.StorageReportInterval),
		); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.HTTP.Addr
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.CORSOrigins = cfg.HTTP.CORSOrigins

	httpServer := httpserver.NewServer(httpConfig, app.HTTPDependencies())

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", logger.String("address", httpServer.Address()))
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if err := sched.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		// Сначала перестаём принимать запросы, затем ждём фоновые задачи
		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with errors", logger.Err(err))
		return err
	}
	log.Info("NST lesson hub stopped")
	return nil
}
