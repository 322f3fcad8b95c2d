package models

import (
	"database/sql"
	"time"
)

// Payment sync statuses. The zero value (empty string) means the payment is
// not tracked for outbound sync at all.
//
//	"" → awaiting   when the payment is registered against an invoice that
//	                carries a CiviCRM id and the payment itself has none
//	awaiting → synced   confirmed push
//	awaiting → awaiting retry count incremented on transient failure
//	awaiting → failed   retry count reached the configured threshold
//
// synced and failed are terminal for a cycle; a failed payment is never
// re-queued automatically.
const (
	SyncStatusNone     = ""
	SyncStatusAwaiting = "awaiting"
	SyncStatusSynced   = "synced"
	SyncStatusFailed   = "failed"
)

// Payment directions and posting states.
const (
	PaymentTypeInbound  = "inbound"
	PaymentTypeOutbound = "outbound"

	PaymentStateDraft  = "draft"
	PaymentStatePosted = "posted"
)

// Payment is a ledger payment optionally linked to CiviCRM by CiviCRMID
// (assigned by the CRM on a successful push, or carried inbound).
type Payment struct {
	ID              int64
	CiviCRMID       sql.NullInt64
	SyncStatus      string
	RetryCount      int
	LastRetry       sql.NullTime
	LastSuccessSync sql.NullTime
	ErrorLog        sql.NullString
	PartnerID       sql.NullInt64
	JournalID       int64
	CurrencyID      sql.NullInt64
	Amount          float64
	PaymentType     string
	PartnerType     string
	PaymentMethodID int64
	Communication   string
	State           string
	PaymentDate     time.Time
	// InvoiceIDs are the linked invoices, most recently linked last.
	InvoiceIDs []int64
}
