// Package partners provides the PostgreSQL-backed repository for local
// party records linked to CiviCRM contacts.
package partners

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/server/models"
)

// PostgresRepository implements partner storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByCiviCRMID deliberately ignores the active flag so an archived
// partner is matched and updated rather than duplicated.
func (r *PostgresRepository) FindByCiviCRMID(ctx context.Context, civicrmID int64) ([]*models.Partner, error) {
	query := `
		SELECT id, civicrm_id, is_company, name, display_name, title_id,
			street, street2, city, zip, country_id, website, phone, mobile,
			fax, email, active, customer, create_date, write_date
		FROM partners WHERE civicrm_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, civicrmID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Partner
	for rows.Next() {
		var p models.Partner
		if err := rows.Scan(
			&p.ID, &p.CiviCRMID, &p.IsCompany, &p.Name, &p.DisplayName, &p.TitleID,
			&p.Street, &p.Street2, &p.City, &p.Zip, &p.CountryID, &p.Website, &p.Phone,
			&p.Mobile, &p.Fax, &p.Email, &p.Active, &p.Customer, &p.CreateDate, &p.WriteDate,
		); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Partner) (*models.Partner, error) {
	query := `
		INSERT INTO partners (civicrm_id, is_company, name, display_name, title_id,
			street, street2, city, zip, country_id, website, phone, mobile, fax,
			email, active, customer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, create_date, write_date
	`
	err := r.db.QueryRowContext(ctx, query,
		p.CiviCRMID, p.IsCompany, p.Name, p.DisplayName, p.TitleID,
		p.Street, p.Street2, p.City, p.Zip, p.CountryID, p.Website, p.Phone,
		p.Mobile, p.Fax, p.Email, p.Active, p.Customer,
	).Scan(&p.ID, &p.CreateDate, &p.WriteDate)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Partner) (*models.Partner, error) {
	query := `
		UPDATE partners SET is_company = $2, name = $3, display_name = $4,
			title_id = $5, street = $6, street2 = $7, city = $8, zip = $9,
			country_id = $10, website = $11, phone = $12, mobile = $13,
			fax = $14, email = $15, active = $16, customer = $17,
			write_date = now()
		WHERE id = $1
		RETURNING write_date
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.IsCompany, p.Name, p.DisplayName, p.TitleID,
		p.Street, p.Street2, p.City, p.Zip, p.CountryID, p.Website, p.Phone,
		p.Mobile, p.Fax, p.Email, p.Active, p.Customer,
	).Scan(&p.WriteDate)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}
