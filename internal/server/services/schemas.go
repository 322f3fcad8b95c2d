package services

import "github.com/dmitrijs2005/civisync/internal/server/schema"

// Field schemas mirror what the CRM sends for each payload shape. Lookup
// converters replace natural keys (codes, names) with local ids during the
// validation walk; nested schemas describe the line item, payment and refund
// collections of a contribution.

func contactSchema(c *schema.Converters) schema.Schema {
	return schema.Schema{
		{Name: "is_company", Kind: schema.KindBool, Required: true, Weight: 100},
		{Name: "x_civicrm_id", Kind: schema.KindInt, Weight: 100},
		{Name: "name", Kind: schema.KindString, Required: true, Weight: 100},
		{Name: "display_name", Kind: schema.KindString, Required: true, Weight: 100},
		{Name: "title", Kind: schema.KindString, Weight: 100},
		{Name: "street", Kind: schema.KindString, Weight: 100},
		{Name: "street2", Kind: schema.KindString, Weight: 100},
		{Name: "city", Kind: schema.KindString, Weight: 100},
		{Name: "zip", Kind: schema.KindString, Weight: 100},
		{Name: "country_iso_code", Kind: schema.KindString, Weight: 100},
		{Name: "website", Kind: schema.KindString, Weight: 100},
		{Name: "phone", Kind: schema.KindString, Weight: 100},
		{Name: "mobile", Kind: schema.KindString, Weight: 100},
		{Name: "fax", Kind: schema.KindString, Weight: 100},
		{Name: "email", Kind: schema.KindString, Required: true, Weight: 100},
		{Name: "create_date", Kind: schema.KindInt, Convert: c.Timestamp, Weight: 100},
		{Name: "write_date", Kind: schema.KindInt, Convert: c.Timestamp, Weight: 100},
		{Name: "active", Kind: schema.KindBool, Required: true, Weight: 100},
		{Name: "customer", Kind: schema.KindBool, Required: true, Weight: 100},
	}
}

func contributionSchema(c *schema.Converters) schema.Schema {
	return schema.Schema{
		{Name: "contact_civicrm_id", Kind: schema.KindInt, Required: true, Convert: c.LookupID, Weight: 100},
		{Name: "x_civicrm_id", Kind: schema.KindInt, Weight: 100},
		{Name: "name", Kind: schema.KindString, Required: true, Weight: 100},
		{Name: "account_code", Kind: schema.KindInt, Required: true, Convert: c.LookupID, Weight: 100},
		{Name: "invoice_journal_name", Kind: schema.KindString, Default: "Customer Invoices", Convert: c.LookupID, Weight: 100},
		{Name: "currency_code", Kind: schema.KindString, Convert: c.LookupID, Weight: 100},
		{Name: "date_invoice", Kind: schema.KindInt, Convert: c.Timestamp, Weight: 100},
		{Name: "line_items", Weight: 100, Nested: lineItemSchema(c)},
		{Name: "payments", Weight: 100, Nested: paymentSchema(c)},
		{Name: "refund", Weight: 100, Nested: refundSchema(c)},
	}
}

func lineItemSchema(c *schema.Converters) schema.Schema {
	return schema.Schema{
		{Name: "x_civicrm_id", Kind: schema.KindInt, Weight: 100},
		{Name: "product_code", Kind: schema.KindString, Convert: c.LookupID, Weight: 100},
		{Name: "name", Kind: schema.KindString, Required: true, Weight: 100},
		{Name: "quantity", Kind: schema.KindFloat, Weight: 100},
		{Name: "price_unit", Kind: schema.KindFloat, Weight: 100},
		{Name: "price_subtotal", Kind: schema.KindFloat, Weight: 100},
		{Name: "account_code", Kind: schema.KindInt, Convert: c.LookupID, Weight: 100},
		{Name: "tax_name", Kind: schema.KindStringList, Convert: c.LookupTaxIDs, Weight: 100},
	}
}

func paymentSchema(c *schema.Converters) schema.Schema {
	return schema.Schema{
		{Name: "x_civicrm_id", Kind: schema.KindInt, Weight: 100},
		{Name: "communication", Kind: schema.KindString, Weight: 100},
		{Name: "journal_name", Kind: schema.KindString, Required: true, Convert: c.LookupID, Weight: 100},
		{Name: "is_payment", Kind: schema.KindInt, Weight: 100},
		{Name: "status", Kind: schema.KindString, Required: true, Default: "", Weight: 100},
		{Name: "amount", Kind: schema.KindFloat, Weight: 100},
		{Name: "payment_date", Kind: schema.KindIntOrString, Convert: c.Timestamp, Weight: 100},
		{Name: "currency_code", Kind: schema.KindString, Convert: c.LookupID, Weight: 100},
		{Name: "payment_type", Kind: schema.KindString, Default: "inbound", Weight: 100},
		{Name: "payment_method_id", Kind: schema.KindInt, Default: int64(1), Weight: 100},
		{Name: "partner_type", Kind: schema.KindString, Default: "customer", Weight: 100},
	}
}

func refundSchema(c *schema.Converters) schema.Schema {
	return schema.Schema{
		{Name: "filter_refund", Kind: schema.KindString, Default: "refund", Weight: 100},
		{Name: "description", Kind: schema.KindString, Default: "", Weight: 100},
		{Name: "date", Kind: schema.KindInt, Convert: c.Timestamp, Weight: 100},
		// Copies the already-converted date once the rest of the refund
		// payload is normalized.
		{Name: "date_invoice", Kind: schema.KindInt, Default: int64(0), Convert: schema.DuplicateField("date"), Weight: 101},
	}
}
