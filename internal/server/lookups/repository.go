// Package lookups resolves CiviCRM natural keys (codes, names) to local
// ledger ids. Resolution is a pure read; converting payload keys into ids is
// the only side channel between the validator and the reference data.
package lookups

import "context"

// Target names the table/column a domain key resolves against.
type Target struct {
	Table  string
	Column string
	// ResultField is the normalized output key the resolved id is stored
	// under (e.g. account_code resolves into account_id).
	ResultField string
	// TextColumn marks targets whose lookup column is text. Payload values
	// for those may still arrive as JSON numbers (account codes), so the
	// repository renders them to text before binding; the driver would
	// otherwise send a bigint parameter against a text column.
	TextColumn bool
}

// targets maps CiviCRM payload keys to their lookup targets. Only keys
// present here may be resolved; the table/column values never come from
// payload data.
var targets = map[string]Target{
	"contact_civicrm_id":      {Table: "partners", Column: "civicrm_id", ResultField: "partner_id"},
	"account_code":            {Table: "accounts", Column: "code", ResultField: "account_id", TextColumn: true},
	"currency_code":           {Table: "currencies", Column: "name", ResultField: "currency_id", TextColumn: true},
	"product_code":            {Table: "products", Column: "default_code", ResultField: "product_id", TextColumn: true},
	"tax_name":                {Table: "taxes", Column: "name", ResultField: "tax_ids", TextColumn: true},
	"invoice_journal_name":    {Table: "journals", Column: "name", ResultField: "journal_id", TextColumn: true},
	"journal_name":            {Table: "journals", Column: "name", ResultField: "journal_id", TextColumn: true},
	"invoice_civicrm_id":      {Table: "invoices", Column: "civicrm_id", ResultField: "civicrm_id"},
	"invoice_line_civicrm_id": {Table: "invoice_lines", Column: "civicrm_id", ResultField: "civicrm_id"},
}

// Repository is the read-only access the resolver needs.
type Repository interface {
	// SelectIDs returns the ids of rows whose target column matches any of
	// the given values.
	SelectIDs(ctx context.Context, target Target, values []any) ([]int64, error)

	// TitleID matches a partner title by name or shortcut.
	TitleID(ctx context.Context, title string) (int64, error)

	// CountryID matches a country by ISO code.
	CountryID(ctx context.Context, isoCode string) (int64, error)

	// TaxAmounts returns the percentage amounts for the given tax ids.
	TaxAmounts(ctx context.Context, ids []int64) (map[int64]float64, error)

	// JournalName and CurrencyName resolve ids back to the natural names
	// the outbound wire format carries.
	JournalName(ctx context.Context, id int64) (string, error)
	CurrencyName(ctx context.Context, id int64) (string, error)
}
