package services

// SyncResponse is the flat result mapping every inbound sync call returns.
// It is always well formed: errors are reported through IsError/ErrorLog,
// never by failing the call.
type SyncResponse struct {
	IsError          int      `json:"is_error"`
	ErrorLog         []string `json:"error_log,omitempty"`
	ContactID        int64    `json:"contact_id,omitempty"`
	ContributionID   int64    `json:"contribution_id,omitempty"`
	PartnerID        int64    `json:"partner_id,omitempty"`
	InvoiceNumber    string   `json:"invoice_number,omitempty"`
	CreditnoteNumber string   `json:"creditnote_number,omitempty"`
	Timestamp        int64    `json:"timestamp"`
}
