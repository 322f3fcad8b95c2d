package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/lookups"
	"github.com/dmitrijs2005/civisync/internal/server/models"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/invoices"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/partners"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/payments"
)

// discardLogger keeps test output quiet.
type discardLogger struct{}

func (discardLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (discardLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (discardLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (discardLogger) Error(ctx context.Context, msg string, args ...any) {}
func (d discardLogger) With(args ...any) logging.Logger                  { return d }

// fakeRepoManager vends the in-memory repositories regardless of the DBTX
// handle, so transactional code paths run unchanged against test state.
type fakeRepoManager struct {
	partners *memPartners
	invoices *memInvoices
	payments *memPayments
	lookups  *memLookups
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		partners: &memPartners{},
		invoices: newMemInvoices(),
		payments: newMemPayments(),
		lookups:  newMemLookups(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Partners(db dbx.DBTX) partners.Repository            { return m.partners }
func (m *fakeRepoManager) Invoices(db dbx.DBTX) invoices.Repository            { return m.invoices }
func (m *fakeRepoManager) Payments(db dbx.DBTX) payments.Repository            { return m.payments }
func (m *fakeRepoManager) Lookups(db dbx.DBTX) lookups.Repository              { return m.lookups }

type memPartners struct {
	seq   int64
	items []*models.Partner
	// findHook, when set, runs at the top of FindByCiviCRMID; tests use it
	// to inject faults.
	findHook func()
}

func (m *memPartners) FindByCiviCRMID(ctx context.Context, civicrmID int64) ([]*models.Partner, error) {
	if m.findHook != nil {
		m.findHook()
	}
	var result []*models.Partner
	for _, p := range m.items {
		if p.CiviCRMID.Valid && p.CiviCRMID.Int64 == civicrmID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *memPartners) Create(ctx context.Context, p *models.Partner) (*models.Partner, error) {
	m.seq++
	p.ID = m.seq
	p.CreateDate = time.Now()
	p.WriteDate = p.CreateDate
	m.items = append(m.items, p)
	return p, nil
}

func (m *memPartners) Update(ctx context.Context, p *models.Partner) (*models.Partner, error) {
	for i, stored := range m.items {
		if stored.ID == p.ID {
			p.CreateDate = stored.CreateDate
			p.WriteDate = time.Now()
			m.items[i] = p
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memInvoices struct {
	seq      int64
	lineSeq  int64
	invoices map[int64]*models.Invoice
	lines    map[int64]*models.InvoiceLine
	recon    map[int64][]int64

	createdLines, updatedLines, deletedLines int
}

func newMemInvoices() *memInvoices {
	return &memInvoices{
		invoices: map[int64]*models.Invoice{},
		lines:    map[int64]*models.InvoiceLine{},
		recon:    map[int64][]int64{},
	}
}

func (m *memInvoices) GetLatestByCiviCRMID(ctx context.Context, civicrmID int64) (*models.Invoice, error) {
	var latest *models.Invoice
	for _, inv := range m.invoices {
		if inv.CiviCRMID.Valid && inv.CiviCRMID.Int64 == civicrmID {
			if latest == nil || inv.ID > latest.ID {
				latest = inv
			}
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *memInvoices) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *memInvoices) Create(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	m.seq++
	inv.ID = m.seq
	copied := *inv
	m.invoices[inv.ID] = &copied
	return inv, nil
}

func (m *memInvoices) SetState(ctx context.Context, id int64, state string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return common.ErrorNotFound
	}
	inv.State = state
	return nil
}

func (m *memInvoices) SetNumber(ctx context.Context, id int64, number string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return common.ErrorNotFound
	}
	inv.Number = number
	return nil
}

func (m *memInvoices) SetTotals(ctx context.Context, id int64, amountTax, amountTotal float64) error {
	inv, ok := m.invoices[id]
	if !ok {
		return common.ErrorNotFound
	}
	inv.AmountTax = amountTax
	inv.AmountTotal = amountTotal
	return nil
}

func (m *memInvoices) LinesByInvoice(ctx context.Context, invoiceID int64) ([]*models.InvoiceLine, error) {
	var result []*models.InvoiceLine
	for _, line := range m.lines {
		if line.InvoiceID == invoiceID {
			copied := *line
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *memInvoices) CreateLine(ctx context.Context, line *models.InvoiceLine) (*models.InvoiceLine, error) {
	m.lineSeq++
	line.ID = m.lineSeq
	copied := *line
	m.lines[line.ID] = &copied
	m.createdLines++
	return line, nil
}

func (m *memInvoices) UpdateLine(ctx context.Context, line *models.InvoiceLine) error {
	if _, ok := m.lines[line.ID]; !ok {
		return common.ErrorNotFound
	}
	copied := *line
	m.lines[line.ID] = &copied
	m.updatedLines++
	return nil
}

func (m *memInvoices) DeleteLine(ctx context.Context, id int64) error {
	delete(m.lines, id)
	m.deletedLines++
	return nil
}

func (m *memInvoices) ReconciledPaymentIDs(ctx context.Context, invoiceID int64) ([]int64, error) {
	return append([]int64(nil), m.recon[invoiceID]...), nil
}

func (m *memInvoices) Unreconcile(ctx context.Context, invoiceID int64) error {
	delete(m.recon, invoiceID)
	return nil
}

func (m *memInvoices) Reconcile(ctx context.Context, invoiceID, paymentID int64) error {
	for _, id := range m.recon[invoiceID] {
		if id == paymentID {
			return nil
		}
	}
	m.recon[invoiceID] = append(m.recon[invoiceID], paymentID)
	return nil
}

func (m *memInvoices) ReconciledAmount(ctx context.Context, invoiceID int64) (float64, error) {
	return 0, nil
}

type memPayments struct {
	seq   int64
	items map[int64]*models.Payment
	links map[int64][]int64
}

func newMemPayments() *memPayments {
	return &memPayments{items: map[int64]*models.Payment{}, links: map[int64][]int64{}}
}

func (m *memPayments) FindByCiviCRMIDs(ctx context.Context, civicrmIDs []int64) ([]*models.Payment, error) {
	var result []*models.Payment
	for _, p := range m.items {
		for _, id := range civicrmIDs {
			if p.CiviCRMID.Valid && p.CiviCRMID.Int64 == id {
				result = append(result, p)
			}
		}
	}
	return result, nil
}

func (m *memPayments) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	m.seq++
	p.ID = m.seq
	copied := *p
	m.items[p.ID] = &copied
	return p, nil
}

func (m *memPayments) LinkInvoice(ctx context.Context, paymentID, invoiceID int64) error {
	m.links[paymentID] = append(m.links[paymentID], invoiceID)
	return nil
}

func (m *memPayments) SetState(ctx context.Context, id int64, state string) error {
	p, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.State = state
	return nil
}

func (m *memPayments) SetSyncStatus(ctx context.Context, id int64, status string) error {
	p, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.SyncStatus = status
	return nil
}

func (m *memPayments) MarkAwaitingIfUnsynced(ctx context.Context, id int64) error {
	p, ok := m.items[id]
	if !ok {
		return nil
	}
	if !p.CiviCRMID.Valid && p.SyncStatus == models.SyncStatusNone {
		p.SyncStatus = models.SyncStatusAwaiting
	}
	return nil
}

func (m *memPayments) SelectAwaiting(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	var result []*models.Payment
	for _, p := range m.items {
		if p.SyncStatus == models.SyncStatusAwaiting && !p.PaymentDate.After(now) {
			copied := *p
			copied.InvoiceIDs = append([]int64(nil), m.links[p.ID]...)
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memPayments) MarkSynced(ctx context.Context, id, transactionID int64, now time.Time) error {
	p, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.SyncStatus = models.SyncStatusSynced
	p.CiviCRMID = sql.NullInt64{Int64: transactionID, Valid: true}
	p.LastSuccessSync = sql.NullTime{Time: now, Valid: true}
	p.LastRetry = sql.NullTime{}
	p.ErrorLog = sql.NullString{}
	return nil
}

func (m *memPayments) RecordFailure(ctx context.Context, id int64, errorLog string, now time.Time) (int, error) {
	p, ok := m.items[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	p.RetryCount++
	p.LastRetry = sql.NullTime{Time: now, Valid: true}
	p.ErrorLog = sql.NullString{String: errorLog, Valid: true}
	return p.RetryCount, nil
}

func (m *memPayments) MarkFailed(ctx context.Context, id int64) error {
	p, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.SyncStatus = models.SyncStatusFailed
	return nil
}

type memLookups struct {
	ids        map[string][]int64
	titles     map[string]int64
	countries  map[string]int64
	taxAmounts map[int64]float64
	journals   map[int64]string
	currencies map[int64]string
}

func newMemLookups() *memLookups {
	return &memLookups{
		ids:        map[string][]int64{},
		titles:     map[string]int64{},
		countries:  map[string]int64{},
		taxAmounts: map[int64]float64{},
		journals:   map[int64]string{},
		currencies: map[int64]string{},
	}
}

func (m *memLookups) SelectIDs(ctx context.Context, target lookups.Target, values []any) ([]int64, error) {
	var result []int64
	for _, v := range values {
		result = append(result, m.ids[fmt.Sprintf("%s/%v", target.Table, v)]...)
	}
	return result, nil
}

func (m *memLookups) TitleID(ctx context.Context, title string) (int64, error) {
	if id, ok := m.titles[title]; ok {
		return id, nil
	}
	return 0, common.ErrorNotFound
}

func (m *memLookups) CountryID(ctx context.Context, isoCode string) (int64, error) {
	if id, ok := m.countries[isoCode]; ok {
		return id, nil
	}
	return 0, common.ErrorNotFound
}

func (m *memLookups) TaxAmounts(ctx context.Context, ids []int64) (map[int64]float64, error) {
	result := map[int64]float64{}
	for _, id := range ids {
		if amount, ok := m.taxAmounts[id]; ok {
			result[id] = amount
		}
	}
	return result, nil
}

func (m *memLookups) JournalName(ctx context.Context, id int64) (string, error) {
	if name, ok := m.journals[id]; ok {
		return name, nil
	}
	return "", common.ErrorNotFound
}

func (m *memLookups) CurrencyName(ctx context.Context, id int64) (string, error) {
	if name, ok := m.currencies[id]; ok {
		return name, nil
	}
	return "", common.ErrorNotFound
}
