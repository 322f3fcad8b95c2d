// Package models defines the ledger entities touched by the CiviCRM sync:
// partners, invoices, invoice lines, payments and the reference entities
// resolved by natural-key lookups.
package models

import (
	"database/sql"
	"time"
)

// Partner is a local party record linked to a CiviCRM contact.
//
// At most one partner may carry a given non-null CiviCRMID; the store
// enforces this with a partial unique index, so a violation surfaces as a
// hard error rather than a recoverable one. Partners are never deleted by
// the sync; an archived partner is matched and reactivated, not duplicated.
type Partner struct {
	ID          int64
	CiviCRMID   sql.NullInt64
	IsCompany   bool
	Name        string
	DisplayName string
	TitleID     sql.NullInt64
	Street      string
	Street2     string
	City        string
	Zip         string
	CountryID   sql.NullInt64
	Website     string
	Phone       string
	Mobile      string
	Fax         string
	Email       string
	Active      bool
	Customer    bool
	CreateDate  time.Time
	WriteDate   time.Time
}
