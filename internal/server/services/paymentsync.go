package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/civixml"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/models"
	"github.com/dmitrijs2005/civisync/internal/server/notify"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civisync/internal/timex"
	"github.com/sethvargo/go-retry"
)

// timeNow is a seam for testing time-dependent status transitions.
var timeNow = time.Now

// PaymentSyncService pushes awaiting payments back to the CRM and drives
// their bounded-retry status machine. One payment's failure never halts the
// batch; missing connection settings abort the whole run before any status
// is touched.
type PaymentSyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	logger      logging.Logger
	notifier    notify.Notifier
	client      *http.Client
}

func NewPaymentSyncService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger, notifier notify.Notifier) *PaymentSyncService {
	return &PaymentSyncService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger,
		notifier:    notifier,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Run pushes one batch of awaiting payments dated on or before now.
// Future-dated payments have not happened yet from the CRM's point of view
// and stay queued.
func (s *PaymentSyncService) Run(ctx context.Context) error {
	if s.config.CRMInstanceURL == "" || s.config.CRMSiteKey == "" || s.config.CRMAPIKey == "" {
		return fmt.Errorf("%w: CRM connection settings not filled", common.ErrConfigurationMissing)
	}

	payRepo := s.repomanager.Payments(s.db)
	batch, err := payRepo.SelectAwaiting(ctx, timeNow(), s.config.BatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		s.logger.Debug(ctx, "no awaiting payments")
		return nil
	}
	s.logger.Info(ctx, "payment sync started", "batch_size", len(batch))

	var failed []*models.Payment
	for _, payment := range batch {
		if len(payment.InvoiceIDs) == 0 {
			// Nothing meaningful to report without an invoice.
			continue
		}
		nowFailed, err := s.syncOne(ctx, payment)
		if err != nil {
			s.logger.Error(ctx, "payment sync error", "payment_id", payment.ID, "error", err.Error())
		}
		if nowFailed {
			failed = append(failed, payment)
		}
	}

	if len(failed) > 0 {
		s.notifyFailed(ctx, failed)
	}
	return nil
}

// syncOne pushes a single payment and applies the resulting status
// transition. It reports whether the payment crossed the retry threshold
// during this run.
func (s *PaymentSyncService) syncOne(ctx context.Context, payment *models.Payment) (bool, error) {
	trxn, err := s.buildTransaction(ctx, payment)
	if err != nil {
		// A payment that cannot resolve its wire fields is broken wiring,
		// not a transient push failure; leave its status untouched.
		return false, err
	}

	body, err := civixml.MarshalTransaction(trxn)
	if err != nil {
		return false, err
	}

	respBody, err := s.post(ctx, body)
	if err != nil {
		return s.recordFailure(ctx, payment, err.Error())
	}

	result, err := civixml.ParseResult(respBody)
	if err != nil {
		return s.recordFailure(ctx, payment, err.Error())
	}
	if result.IsError != 0 {
		return s.recordFailure(ctx, payment, result.ErrorMessage)
	}

	payRepo := s.repomanager.Payments(s.db)
	if err := payRepo.MarkSynced(ctx, payment.ID, result.TransactionID, timeNow()); err != nil {
		return false, err
	}
	payment.SyncStatus = models.SyncStatusSynced
	s.logger.Info(ctx, "payment synced",
		"payment_id", payment.ID, "transaction_id", result.TransactionID)
	return false, nil
}

// buildTransaction assembles the wire payload: account and currency by
// name, amount, transaction date as epoch seconds and the linked invoice's
// civicrm id. The latest linked invoice is authoritative.
func (s *PaymentSyncService) buildTransaction(ctx context.Context, payment *models.Payment) (*civixml.Transaction, error) {
	invRepo := s.repomanager.Invoices(s.db)
	lookupRepo := s.repomanager.Lookups(s.db)

	invoiceID := payment.InvoiceIDs[0]
	for _, id := range payment.InvoiceIDs {
		if id > invoiceID {
			invoiceID = id
		}
	}
	invoice, err := invRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.CiviCRMID.Valid {
		return nil, fmt.Errorf("%w: invoice %d linked to payment %d has no civicrm id",
			common.ErrConfigurationMissing, invoice.ID, payment.ID)
	}

	journalName, err := lookupRepo.JournalName(ctx, payment.JournalID)
	if err != nil {
		return nil, err
	}
	var currency string
	if payment.CurrencyID.Valid {
		currency, err = lookupRepo.CurrencyName(ctx, payment.CurrencyID.Int64)
		if err != nil {
			return nil, err
		}
	}

	return &civixml.Transaction{
		ToFinancialAccountName: journalName,
		TotalAmount:            payment.Amount,
		TrxnDate:               timex.ToEpoch(payment.PaymentDate),
		Currency:               currency,
		InvoiceID:              invoice.CiviCRMID.Int64,
	}, nil
}

// post submits the XML document, retrying transient transport failures a few
// times within the run. The payment-level retry counter handles everything
// beyond that.
func (s *PaymentSyncService) post(ctx context.Context, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s?entity=OdooSync&action=transaction&key=%s&api_key=%s",
		s.config.CRMInstanceURL, s.config.CRMSiteKey, s.config.CRMAPIKey)

	var respBody []byte
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/xml")

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrTransportFailure, err))
		}
		if resp.StatusCode >= 400 {
			err := fmt.Errorf("%w: status %d: %s", common.ErrTransportFailure, resp.StatusCode, data)
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}
		respBody = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// recordFailure increments the retry counter and flips the payment to
// failed once the counter reaches the threshold. Below threshold the
// payment stays awaiting and is retried on the next run.
func (s *PaymentSyncService) recordFailure(ctx context.Context, payment *models.Payment, errorLog string) (bool, error) {
	payRepo := s.repomanager.Payments(s.db)

	count, err := payRepo.RecordFailure(ctx, payment.ID, errorLog, timeNow())
	if err != nil {
		return false, err
	}
	payment.RetryCount = count
	payment.ErrorLog = sql.NullString{String: errorLog, Valid: true}
	s.logger.Warn(ctx, "payment push failed",
		"payment_id", payment.ID, "retry_count", count, "error", errorLog)

	if count < s.config.RetryThreshold {
		return false, nil
	}
	if err := payRepo.MarkFailed(ctx, payment.ID); err != nil {
		return false, err
	}
	payment.SyncStatus = models.SyncStatusFailed
	return true, nil
}

// notifyFailed sends one consolidated notice covering every payment that
// crossed the retry threshold during this run.
func (s *PaymentSyncService) notifyFailed(ctx context.Context, failed []*models.Payment) {
	var b strings.Builder
	fmt.Fprintf(&b, "The following payments could not be synced to CiviCRM after %d attempts:\n\n",
		s.config.RetryThreshold)
	for _, p := range failed {
		fmt.Fprintf(&b, "payment %d, amount %.2f", p.ID, p.Amount)
		if p.ErrorLog.Valid {
			fmt.Fprintf(&b, ": %s", p.ErrorLog.String)
		}
		b.WriteString("\n")
	}

	if err := s.notifier.Notify(ctx, "CiviCRM payment sync failures", b.String()); err != nil {
		s.logger.Error(ctx, "failure notification not sent", "error", err.Error())
	}
}
