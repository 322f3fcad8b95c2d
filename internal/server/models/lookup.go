package models

// Reference entities resolved from CiviCRM natural keys. These are read-only
// from the sync's point of view; they are maintained by the accounting side.

// Account is a ledger account addressed by numeric code.
type Account struct {
	ID   int64
	Code string
	Name string
}

// Journal is an accounting journal addressed by name.
type Journal struct {
	ID   int64
	Name string
}

// Currency is addressed by its ISO name (e.g. "EUR").
type Currency struct {
	ID   int64
	Name string
}

// Product is addressed by its default code.
type Product struct {
	ID          int64
	DefaultCode string
	Name        string
}

// Tax is addressed by name; Amount is a percentage applied to line
// subtotals when invoice taxes are computed.
type Tax struct {
	ID     int64
	Name   string
	Amount float64
}

// PartnerTitle is addressed by name or shortcut ("Dr.", "Doctor").
type PartnerTitle struct {
	ID       int64
	Name     string
	Shortcut string
}

// Country is addressed by ISO code.
type Country struct {
	ID   int64
	Code string
	Name string
}
