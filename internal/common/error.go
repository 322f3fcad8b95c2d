// Package common defines shared sentinel errors used across the sync
// service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors accumulated by the parameter validator. The texts
	// carry the wire prefix the CRM side expects to see in error_log.
	ErrMissingRequiredField = errors.New("wrong CiviCRM request - missed required field")
	ErrInvalidFieldType     = errors.New("wrong CiviCRM request - invalid parameter data type")

	// ErrLookupNotFound means a natural key (account code, currency code,
	// product code, tax name, journal name, title, country code) has no
	// match in the local ledger.
	ErrLookupNotFound = errors.New("lookup not found")

	// ErrDuplicateIdentity means more than one local record carries the
	// same CiviCRM id. The uniqueness invariant is enforced by the store;
	// hitting this is a hard error, never guessed around.
	ErrDuplicateIdentity = errors.New("duplicate civicrm identity")

	// Outbound sync errors.
	ErrTransportFailure     = errors.New("transport failure")
	ErrProtocolError        = errors.New("protocol error")
	ErrConfigurationMissing = errors.New("configuration missing")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnexpected wraps exceptions caught at the sync entry points and
	// converted into reported errors instead of being propagated.
	ErrUnexpected = errors.New("unexpected error")
)
