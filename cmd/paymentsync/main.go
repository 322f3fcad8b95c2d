// Command paymentsync runs one outbound payment push batch and exits. It is
// meant to be scheduled externally (cron) as an alternative to the server's
// built-in ticker.
package main

import (
	"context"
	"database/sql"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/notify"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civisync/internal/server/services"
)

func main() {

	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewDefault()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	notifier := notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.ErrorNoticeRecipients)
	svc := services.NewPaymentSyncService(db, rm, cfg, logger, notifier)

	if err := svc.Run(ctx); err != nil {
		logger.Error(ctx, "payment sync run failed", "error", err.Error())
	}
}
