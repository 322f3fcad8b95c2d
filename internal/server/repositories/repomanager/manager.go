package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/server/lookups"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/invoices"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/partners"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/payments"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Partners(db dbx.DBTX) partners.Repository
	Invoices(db dbx.DBTX) invoices.Repository
	Payments(db dbx.DBTX) payments.Repository
	Lookups(db dbx.DBTX) lookups.Repository
}
