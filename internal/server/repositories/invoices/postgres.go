// Package invoices provides the PostgreSQL-backed repository for invoices,
// their lines and the payment reconciliation linkage.
package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/server/models"
)

// PostgresRepository implements invoice storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetLatestByCiviCRMID(ctx context.Context, civicrmID int64) (*models.Invoice, error) {
	query := `
		SELECT id, civicrm_id, number, state, type, partner_id, account_id,
			journal_id, currency_id, name, date_invoice, amount_tax, amount_total
		FROM invoices WHERE civicrm_id = $1
		ORDER BY id DESC LIMIT 1
	`
	var inv models.Invoice
	err := r.db.QueryRowContext(ctx, query, civicrmID).Scan(
		&inv.ID, &inv.CiviCRMID, &inv.Number, &inv.State, &inv.Type, &inv.PartnerID,
		&inv.AccountID, &inv.JournalID, &inv.CurrencyID, &inv.Name, &inv.DateInvoice,
		&inv.AmountTax, &inv.AmountTotal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &inv, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	query := `
		SELECT id, civicrm_id, number, state, type, partner_id, account_id,
			journal_id, currency_id, name, date_invoice, amount_tax, amount_total
		FROM invoices WHERE id = $1
	`
	var inv models.Invoice
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.CiviCRMID, &inv.Number, &inv.State, &inv.Type, &inv.PartnerID,
		&inv.AccountID, &inv.JournalID, &inv.CurrencyID, &inv.Name, &inv.DateInvoice,
		&inv.AmountTax, &inv.AmountTotal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &inv, nil
}

func (r *PostgresRepository) Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	query := `
		INSERT INTO invoices (civicrm_id, number, state, type, partner_id,
			account_id, journal_id, currency_id, name, date_invoice, amount_tax, amount_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		inv.CiviCRMID, inv.Number, inv.State, inv.Type, inv.PartnerID,
		inv.AccountID, inv.JournalID, inv.CurrencyID, inv.Name, inv.DateInvoice,
		inv.AmountTax, inv.AmountTotal,
	).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) SetState(ctx context.Context, id int64, state string) error {
	return r.execOne(ctx, `UPDATE invoices SET state = $2 WHERE id = $1`, id, state)
}

func (r *PostgresRepository) SetNumber(ctx context.Context, id int64, number string) error {
	return r.execOne(ctx, `UPDATE invoices SET number = $2 WHERE id = $1`, id, number)
}

func (r *PostgresRepository) SetTotals(ctx context.Context, id int64, amountTax, amountTotal float64) error {
	return r.execOne(ctx, `UPDATE invoices SET amount_tax = $2, amount_total = $3 WHERE id = $1`, id, amountTax, amountTotal)
}

func (r *PostgresRepository) LinesByInvoice(ctx context.Context, invoiceID int64) ([]*models.InvoiceLine, error) {
	query := `
		SELECT l.id, l.invoice_id, l.civicrm_id, l.product_id, l.name,
			l.quantity, l.price_unit, l.price_subtotal, l.account_id
		FROM invoice_lines l WHERE l.invoice_id = $1 ORDER BY l.id
	`
	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.InvoiceLine
	for rows.Next() {
		var line models.InvoiceLine
		if err := rows.Scan(
			&line.ID, &line.InvoiceID, &line.CiviCRMID, &line.ProductID, &line.Name,
			&line.Quantity, &line.PriceUnit, &line.PriceSubtotal, &line.AccountID,
		); err != nil {
			return nil, err
		}
		result = append(result, &line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, line := range result {
		taxIDs, err := r.lineTaxIDs(ctx, line.ID)
		if err != nil {
			return nil, err
		}
		line.TaxIDs = taxIDs
	}
	return result, nil
}

func (r *PostgresRepository) lineTaxIDs(ctx context.Context, lineID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tax_id FROM invoice_line_taxes WHERE line_id = $1 ORDER BY tax_id`, lineID)
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

func (r *PostgresRepository) CreateLine(ctx context.Context, line *models.InvoiceLine) (*models.InvoiceLine, error) {
	query := `
		INSERT INTO invoice_lines (invoice_id, civicrm_id, product_id, name,
			quantity, price_unit, price_subtotal, account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		line.InvoiceID, line.CiviCRMID, line.ProductID, line.Name,
		line.Quantity, line.PriceUnit, line.PriceSubtotal, line.AccountID,
	).Scan(&line.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.replaceLineTaxes(ctx, line.ID, line.TaxIDs); err != nil {
		return nil, err
	}
	return line, nil
}

func (r *PostgresRepository) UpdateLine(ctx context.Context, line *models.InvoiceLine) error {
	query := `
		UPDATE invoice_lines SET invoice_id = $2, product_id = $3, name = $4,
			quantity = $5, price_unit = $6, price_subtotal = $7, account_id = $8
		WHERE id = $1
	`
	if err := r.execOne(ctx, query,
		line.ID, line.InvoiceID, line.ProductID, line.Name,
		line.Quantity, line.PriceUnit, line.PriceSubtotal, line.AccountID,
	); err != nil {
		return err
	}
	return r.replaceLineTaxes(ctx, line.ID, line.TaxIDs)
}

func (r *PostgresRepository) DeleteLine(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invoice_lines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) replaceLineTaxes(ctx context.Context, lineID int64, taxIDs []int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoice_line_taxes WHERE line_id = $1`, lineID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, taxID := range taxIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO invoice_line_taxes (line_id, tax_id) VALUES ($1, $2)`, lineID, taxID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ReconciledPaymentIDs(ctx context.Context, invoiceID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payment_id FROM reconciliations WHERE invoice_id = $1 ORDER BY payment_id`, invoiceID)
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

func (r *PostgresRepository) Unreconcile(ctx context.Context, invoiceID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reconciliations WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Reconcile(ctx context.Context, invoiceID, paymentID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reconciliations (invoice_id, payment_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		invoiceID, paymentID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReconciledAmount(ctx context.Context, invoiceID int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM reconciliations rec JOIN payments p ON p.id = rec.payment_id
		WHERE rec.invoice_id = $1
	`
	var amount float64
	if err := r.db.QueryRowContext(ctx, query, invoiceID).Scan(&amount); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return amount, nil
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
