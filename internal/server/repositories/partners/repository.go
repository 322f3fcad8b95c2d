package partners

import (
	"context"

	"github.com/dmitrijs2005/civisync/internal/server/models"
)

type Repository interface {
	// FindByCiviCRMID returns every partner carrying the given CiviCRM id,
	// active or archived. More than one result means the uniqueness
	// invariant is broken and the caller must abort.
	FindByCiviCRMID(ctx context.Context, civicrmID int64) ([]*models.Partner, error)

	Create(ctx context.Context, p *models.Partner) (*models.Partner, error)

	// Update overwrites the stored partner with p and stamps write_date.
	Update(ctx context.Context, p *models.Partner) (*models.Partner, error)
}
