package models

import (
	"database/sql"
	"time"
)

// Invoice lifecycle states. Line items are immutable once an invoice is
// open; content drift forces a supersede (cancel + recreate) instead of an
// in-place edit.
const (
	InvoiceStateDraft     = "draft"
	InvoiceStateOpen      = "open"
	InvoiceStatePaid      = "paid"
	InvoiceStateCancelled = "cancelled"
)

// Invoice document types.
const (
	InvoiceTypeOut    = "out_invoice"
	InvoiceTypeRefund = "out_refund"
)

// Invoice is a financial document synced from a CiviCRM contribution.
// Several invoices may share a CiviCRMID over time (a superseded lineage);
// the most recent by internal id is authoritative.
type Invoice struct {
	ID          int64
	CiviCRMID   sql.NullInt64
	Number      string
	State       string
	Type        string
	PartnerID   int64
	AccountID   int64
	JournalID   int64
	CurrencyID  sql.NullInt64
	Name        string
	DateInvoice time.Time
	AmountTax   float64
	AmountTotal float64
}

// InvoiceLine is owned exclusively by its invoice and diffed against the
// incoming CRM line set by CiviCRMID.
type InvoiceLine struct {
	ID            int64
	InvoiceID     int64
	CiviCRMID     sql.NullInt64
	ProductID     sql.NullInt64
	Name          string
	Quantity      float64
	PriceUnit     float64
	PriceSubtotal float64
	AccountID     sql.NullInt64
	TaxIDs        []int64
}
