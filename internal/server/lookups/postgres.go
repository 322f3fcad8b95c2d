package lookups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
)

// PostgresRepository implements lookup reads over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SelectIDs(ctx context.Context, target Target, values []any) ([]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	// Table and column come from the static target map, never from input.
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if target.TextColumn {
			args[i] = fmt.Sprint(v)
		} else {
			args[i] = v
		}
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s IN (%s)`,
		target.Table, target.Column, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) TitleID(ctx context.Context, title string) (int64, error) {
	query := `SELECT id FROM partner_titles WHERE name = $1 OR shortcut = $1 LIMIT 1`
	var id int64
	err := r.db.QueryRowContext(ctx, query, title).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) CountryID(ctx context.Context, isoCode string) (int64, error) {
	query := `SELECT id FROM countries WHERE code = $1`
	var id int64
	err := r.db.QueryRowContext(ctx, query, isoCode).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) TaxAmounts(ctx context.Context, ids []int64) (map[int64]float64, error) {
	result := make(map[int64]float64, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, amount FROM taxes WHERE id IN (%s)`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var amount float64
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, err
		}
		result[id] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) JournalName(ctx context.Context, id int64) (string, error) {
	return r.nameByID(ctx, `SELECT name FROM journals WHERE id = $1`, id)
}

func (r *PostgresRepository) CurrencyName(ctx context.Context, id int64) (string, error) {
	return r.nameByID(ctx, `SELECT name FROM currencies WHERE id = $1`, id)
}

func (r *PostgresRepository) nameByID(ctx context.Context, query string, id int64) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&name)
	if err != nil {
		if isNoRows(err) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return name, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
