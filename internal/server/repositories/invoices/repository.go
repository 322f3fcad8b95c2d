package invoices

import (
	"context"

	"github.com/dmitrijs2005/civisync/internal/server/models"
)

type Repository interface {
	// GetLatestByCiviCRMID returns the most recent invoice (by internal id)
	// carrying the given CiviCRM id, regardless of state, or
	// common.ErrorNotFound when the lineage is absent.
	GetLatestByCiviCRMID(ctx context.Context, civicrmID int64) (*models.Invoice, error)

	// GetByID returns the invoice with the given internal id, or
	// common.ErrorNotFound.
	GetByID(ctx context.Context, id int64) (*models.Invoice, error)

	Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	SetState(ctx context.Context, id int64, state string) error
	SetNumber(ctx context.Context, id int64, number string) error
	SetTotals(ctx context.Context, id int64, amountTax, amountTotal float64) error

	LinesByInvoice(ctx context.Context, invoiceID int64) ([]*models.InvoiceLine, error)
	CreateLine(ctx context.Context, line *models.InvoiceLine) (*models.InvoiceLine, error)
	UpdateLine(ctx context.Context, line *models.InvoiceLine) error
	DeleteLine(ctx context.Context, id int64) error

	// Reconciliation linkage between payment credits and invoices.
	ReconciledPaymentIDs(ctx context.Context, invoiceID int64) ([]int64, error)
	Unreconcile(ctx context.Context, invoiceID int64) error
	Reconcile(ctx context.Context, invoiceID, paymentID int64) error
	ReconciledAmount(ctx context.Context, invoiceID int64) (float64, error)
}
