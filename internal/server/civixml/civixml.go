// Package civixml implements the CiviCRM financial transaction wire format:
// an AATAvailReq XML envelope holding name/value pairs on the way out and a
// Result document on the way back.
package civixml

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/civisync/internal/common"
)

// Transaction is the business payload of one outbound payment push.
type Transaction struct {
	ToFinancialAccountName string
	TotalAmount            float64
	TrxnDate               int64
	Currency               string
	InvoiceID              int64
}

type requestEnvelope struct {
	XMLName xml.Name      `xml:"AATAvailReq"`
	Trxns   []trxnElement `xml:"params>param>value>struct>financial_trxn"`
}

// trxnElement is one name/value pair. Value is a pointer so an empty field
// omits the value element entirely instead of emitting an empty tag.
type trxnElement struct {
	Name  string  `xml:"name"`
	Value *string `xml:"value,omitempty"`
}

func field(name, value string) trxnElement {
	e := trxnElement{Name: name}
	if value != "" && value != "0" {
		e.Value = &value
	}
	return e
}

// MarshalTransaction serializes a transaction into the AATAvailReq envelope.
func MarshalTransaction(t *Transaction) ([]byte, error) {
	env := requestEnvelope{
		Trxns: []trxnElement{
			field("to_financial_account_name", t.ToFinancialAccountName),
			field("total_amount", strconv.FormatFloat(t.TotalAmount, 'f', -1, 64)),
			field("trxn_date", strconv.FormatInt(t.TrxnDate, 10)),
			field("currency", t.Currency),
			field("invoice_id", strconv.FormatInt(t.InvoiceID, 10)),
		},
	}
	body, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocolError, err)
	}
	return append([]byte(xml.Header), body...), nil
}

// UnmarshalTransaction parses an AATAvailReq document back into a
// transaction. Unknown pairs are ignored.
func UnmarshalTransaction(data []byte) (*Transaction, error) {
	var env requestEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocolError, err)
	}
	t := &Transaction{}
	for _, e := range env.Trxns {
		var value string
		if e.Value != nil {
			value = *e.Value
		}
		switch e.Name {
		case "to_financial_account_name":
			t.ToFinancialAccountName = value
		case "total_amount":
			if value != "" {
				amount, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad total_amount: %v", common.ErrProtocolError, err)
				}
				t.TotalAmount = amount
			}
		case "trxn_date":
			if value != "" {
				sec, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad trxn_date: %v", common.ErrProtocolError, err)
				}
				t.TrxnDate = sec
			}
		case "currency":
			t.Currency = value
		case "invoice_id":
			if value != "" {
				id, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad invoice_id: %v", common.ErrProtocolError, err)
				}
				t.InvoiceID = id
			}
		}
	}
	return t, nil
}

// Result is the CRM's answer to a transaction push.
type Result struct {
	IsError       int    `xml:"is_error"`
	ErrorMessage  string `xml:"error_message"`
	TransactionID int64  `xml:"transaction_id"`
}

type resultEnvelope struct {
	XMLName xml.Name
	Result  Result `xml:"Result"`
}

// ParseResult extracts the Result element from a response body. The caller
// must have already rejected transport-level failures; this only deals with
// well-formed protocol answers.
func ParseResult(data []byte) (*Result, error) {
	var env resultEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProtocolError, err)
	}
	return &env.Result, nil
}
