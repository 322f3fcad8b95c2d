// Package payments provides the PostgreSQL-backed repository for ledger
// payments and their outbound sync bookkeeping.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/server/models"
)

const paymentColumns = `id, civicrm_id, sync_status, retry_count, last_retry,
	last_success_sync, error_log, partner_id, journal_id, currency_id, amount,
	payment_type, partner_type, payment_method_id, communication, state, payment_date`

// PostgresRepository implements payment storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByCiviCRMIDs(ctx context.Context, civicrmIDs []int64) ([]*models.Payment, error) {
	if len(civicrmIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE civicrm_id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, civicrmIDs)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	query := `
		INSERT INTO payments (civicrm_id, sync_status, partner_id, journal_id,
			currency_id, amount, payment_type, partner_type, payment_method_id,
			communication, state, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		p.CiviCRMID, p.SyncStatus, p.PartnerID, p.JournalID,
		p.CurrencyID, p.Amount, p.PaymentType, p.PartnerType, p.PaymentMethodID,
		p.Communication, p.State, p.PaymentDate,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) LinkInvoice(ctx context.Context, paymentID, invoiceID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoice_payment_rel (invoice_id, payment_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		invoiceID, paymentID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetState(ctx context.Context, id int64, state string) error {
	return r.execOne(ctx, `UPDATE payments SET state = $2 WHERE id = $1`, id, state)
}

func (r *PostgresRepository) SetSyncStatus(ctx context.Context, id int64, status string) error {
	return r.execOne(ctx, `UPDATE payments SET sync_status = $2 WHERE id = $1`, id, status)
}

func (r *PostgresRepository) MarkAwaitingIfUnsynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET sync_status = $2 WHERE id = $1 AND civicrm_id IS NULL AND sync_status = ''`,
		id, models.SyncStatusAwaiting)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SelectAwaiting(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE sync_status = $1 AND payment_date <= $2
		ORDER BY payment_date, id
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, models.SyncStatusAwaiting, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range result {
		ids, err := r.invoiceIDs(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.InvoiceIDs = ids
	}
	return result, nil
}

func (r *PostgresRepository) invoiceIDs(ctx context.Context, paymentID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT invoice_id FROM invoice_payment_rel WHERE payment_id = $1 ORDER BY invoice_id`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id, transactionID int64, now time.Time) error {
	query := `
		UPDATE payments SET sync_status = $2, civicrm_id = $3,
			last_success_sync = $4, last_retry = NULL, error_log = NULL
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, models.SyncStatusSynced, transactionID, now)
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id int64, errorLog string, now time.Time) (int, error) {
	query := `
		UPDATE payments SET retry_count = retry_count + 1,
			last_retry = $2, error_log = $3
		WHERE id = $1
		RETURNING retry_count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id, now, errorLog).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.execOne(ctx, `UPDATE payments SET sync_status = $2 WHERE id = $1`, id, models.SyncStatusFailed)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.CiviCRMID, &p.SyncStatus, &p.RetryCount, &p.LastRetry,
		&p.LastSuccessSync, &p.ErrorLog, &p.PartnerID, &p.JournalID, &p.CurrencyID,
		&p.Amount, &p.PaymentType, &p.PartnerType, &p.PaymentMethodID,
		&p.Communication, &p.State, &p.PaymentDate,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
