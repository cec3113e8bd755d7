// Package server wires configuration, storage, services and the HTTP
// endpoint together, and owns process lifecycle: startup, background
// sweeping, graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aformulationoftruth/server/internal/cryptox"
	"github.com/aformulationoftruth/server/internal/logging"
	"github.com/aformulationoftruth/server/internal/server/config"
	"github.com/aformulationoftruth/server/internal/server/httpapi"
	"github.com/aformulationoftruth/server/internal/server/mail"
	"github.com/aformulationoftruth/server/internal/server/repositories/repomanager"
	"github.com/aformulationoftruth/server/internal/server/services"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	auth          *services.AuthService
	questionnaire *services.QuestionnaireService
	limiter       httpapi.Limiter
}

func NewApp(cfg *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	enc, err := cryptox.NewService([]byte(cfg.MasterSecret))
	if err != nil {
		return nil, fmt.Errorf("encryption init error: %w", err)
	}

	mailer := mail.NewLogSender(logger)
	artifacts := services.NewArtifactService(cfg)

	var limiter httpapi.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = httpapi.NewRedisLimiter(client, logger)
	} else {
		limiter = httpapi.NewMemoryLimiter()
	}

	auth := services.NewAuthService(db, rm, enc, mailer, logger, cfg)
	questionnaire := services.NewQuestionnaireService(db, rm, enc, mailer, artifacts, logger)

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		auth:          auth,
		questionnaire: questionnaire,
		limiter:       limiter,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startSweeper periodically reclaims expired and used magic token rows.
func (app *App) startSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.auth.SweepSpentTokens(ctx); err != nil {
				app.logger.Warn(ctx, "token sweep failed", "error", err.Error())
			}
		}
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	api := httpapi.NewServer(app.config, app.auth, app.questionnaire, app.limiter, app.logger)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err.Error())
	}
}
