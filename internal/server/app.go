// Package server wires the sync service together: configuration, database,
// migrations, the inbound HTTP API and the periodic outbound payment push.
// It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/httpapi"
	"github.com/dmitrijs2005/civisync/internal/server/notify"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civisync/internal/server/services"
)

type App struct {
	config              *config.Config
	logger              logging.Logger
	db                  *sql.DB
	contactService      *services.ContactService
	contributionService *services.ContributionService
	paymentSyncService  *services.PaymentSyncService
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewDefault()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	notifier := notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.ErrorNoticeRecipients)

	return &App{
		config:              cfg,
		logger:              logger,
		db:                  db,
		contactService:      services.NewContactService(db, rm, logger),
		contributionService: services.NewContributionService(db, rm, cfg, logger),
		paymentSyncService:  services.NewPaymentSyncService(db, rm, cfg, logger, notifier),
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.config, app.logger,
		app.contactService.Sync, app.contributionService.Sync)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startScheduler runs the outbound payment push every SyncInterval until the
// context is cancelled.
func (app *App) startScheduler(ctx context.Context) {
	ticker := time.NewTicker(app.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.paymentSyncService.Run(ctx); err != nil {
				app.logger.Error(ctx, "payment sync run failed", "error", err.Error())
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startScheduler(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
