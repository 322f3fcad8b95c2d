package payments

import (
	"context"
	"time"

	"github.com/dmitrijs2005/civisync/internal/server/models"
)

type Repository interface {
	// FindByCiviCRMIDs returns payments already linked to the given CRM
	// transaction ids; used for the idempotent skip during inbound sync.
	FindByCiviCRMIDs(ctx context.Context, civicrmIDs []int64) ([]*models.Payment, error)

	Create(ctx context.Context, p *models.Payment) (*models.Payment, error)
	LinkInvoice(ctx context.Context, paymentID, invoiceID int64) error
	SetState(ctx context.Context, id int64, state string) error
	SetSyncStatus(ctx context.Context, id int64, status string) error

	// MarkAwaitingIfUnsynced queues the payment for outbound sync unless it
	// already carries a CRM transaction id or a sync status. No-op otherwise.
	MarkAwaitingIfUnsynced(ctx context.Context, id int64) error

	// SelectAwaiting returns payments with sync status awaiting whose
	// payment date is on or before now, oldest first, up to limit.
	// Linked invoice ids are populated.
	SelectAwaiting(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)

	// MarkSynced records a confirmed push: status synced, external
	// transaction id written back, retry state cleared.
	MarkSynced(ctx context.Context, id, transactionID int64, now time.Time) error

	// RecordFailure stamps the retry timestamp and error log and
	// increments the retry count, returning the new count.
	RecordFailure(ctx context.Context, id int64, errorLog string, now time.Time) (int, error)

	MarkFailed(ctx context.Context, id int64) error
}
