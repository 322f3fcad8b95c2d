package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/lookups"
	"github.com/dmitrijs2005/civisync/internal/server/models"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/invoices"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civisync/internal/server/schema"
)

// ContributionService maps an inbound CRM contribution onto the invoice
// lineage carrying its civicrm id.
//
// Transitions per lineage: absent (create and open), draft (re-run the line
// diff and open), open with matching lines (payments only), open with
// drifted lines (supersede: refund the original, recreate from the payload,
// re-apply the captured reconciliations). A posted invoice's lines are never
// edited in place.
type ContributionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	logger      logging.Logger
}

func NewContributionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *ContributionService {
	return &ContributionService{db: db, repomanager: m, config: cfg, logger: logger}
}

// Sync runs the whole transition pipeline for one contribution inside a
// single transaction. It never returns an error and never panics past the
// boundary; a failed payload reports through the response while the batch
// caller keeps going.
func (s *ContributionService) Sync(ctx context.Context, payload map[string]any) (resp *SyncResponse) {
	resp = &SyncResponse{}
	acc := schema.NewAccumulator()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "contribution sync panic", "cause", r)
			acc.Add(fmt.Errorf("%w during contribution sync: %v", common.ErrUnexpected, r))
		}
		if !acc.Valid() {
			resp.IsError = 1
			resp.ErrorLog = acc.Errors()
		}
		resp.Timestamp = time.Now().Unix()
	}()

	resolver := lookups.NewResolver(s.repomanager.Lookups(s.db))
	conv := schema.NewConverters(resolver)
	vals := schema.Validate(ctx, contributionSchema(conv), payload, acc)

	civicrmID, _ := vals.Int64("x_civicrm_id")
	resp.ContributionID = civicrmID
	if !acc.Valid() {
		return resp
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.syncTx(ctx, tx, vals, resp)
	})
	if err != nil {
		acc.Add(err)
	}
	return resp
}

func (s *ContributionService) syncTx(ctx context.Context, tx dbx.DBTX, vals schema.Values, resp *SyncResponse) error {
	invRepo := s.repomanager.Invoices(tx)
	civicrmID, _ := vals.Int64("x_civicrm_id")

	invoice, err := invRepo.GetLatestByCiviCRMID(ctx, civicrmID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		invoice, err = s.createInvoice(ctx, invRepo, vals, models.InvoiceTypeOut)
		if err != nil {
			return err
		}
		if err := s.openInvoice(ctx, tx, invoice, vals, resp); err != nil {
			return err
		}

	case err != nil:
		return err

	case invoice.State == models.InvoiceStateDraft:
		resp.InvoiceNumber = invoice.Number
		if err := s.openInvoice(ctx, tx, invoice, vals, resp); err != nil {
			return err
		}

	default:
		resp.InvoiceNumber = invoice.Number
		matched, err := s.matchLines(ctx, invRepo, invoice, vals.Nested("line_items"))
		if err != nil {
			return err
		}
		if !matched {
			invoice, err = s.supersede(ctx, tx, invoice, vals, resp)
			if err != nil {
				return err
			}
		}
	}

	return s.paymentHandling(ctx, tx, invoice, vals, resp)
}

func (s *ContributionService) createInvoice(ctx context.Context, invRepo invoices.Repository, vals schema.Values, invoiceType string) (*models.Invoice, error) {
	civicrmID, hasCiviCRMID := vals.Int64("x_civicrm_id")
	partnerID, _ := vals.Int64("partner_id")
	accountID, _ := vals.Int64("account_id")
	journalID, _ := vals.Int64("journal_id")

	inv := &models.Invoice{
		CiviCRMID:   sql.NullInt64{Int64: civicrmID, Valid: hasCiviCRMID},
		State:       models.InvoiceStateDraft,
		Type:        invoiceType,
		PartnerID:   partnerID,
		AccountID:   accountID,
		JournalID:   journalID,
		Name:        vals.String("name"),
		DateInvoice: time.Now(),
	}
	if currencyID, ok := vals.Int64("currency_id"); ok {
		inv.CurrencyID = sql.NullInt64{Int64: currencyID, Valid: true}
	}
	if date, ok := vals["date_invoice"].(time.Time); ok {
		inv.DateInvoice = date
	}
	return invRepo.Create(ctx, inv)
}

// openInvoice runs line item handling, computes taxes, assigns the document
// number and posts the invoice.
func (s *ContributionService) openInvoice(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice, vals schema.Values, resp *SyncResponse) error {
	invRepo := s.repomanager.Invoices(tx)

	if err := s.lineItemsHandling(ctx, invRepo, invoice, vals.Nested("line_items")); err != nil {
		return err
	}
	if err := s.computeTaxes(ctx, tx, invoice); err != nil {
		return err
	}

	if invoice.Number == "" {
		invoice.Number = s.documentNumber(invoice)
		if err := invRepo.SetNumber(ctx, invoice.ID, invoice.Number); err != nil {
			return err
		}
	}
	if err := invRepo.SetState(ctx, invoice.ID, models.InvoiceStateOpen); err != nil {
		return err
	}
	invoice.State = models.InvoiceStateOpen
	resp.InvoiceNumber = invoice.Number
	return nil
}

func (s *ContributionService) documentNumber(invoice *models.Invoice) string {
	prefix := s.config.InvoiceRefPrefix
	if invoice.Type == models.InvoiceTypeRefund {
		prefix += "R"
	}
	return fmt.Sprintf("%s/%06d", prefix, invoice.ID)
}

// lineItemsHandling diffs the incoming line set against the stored one keyed
// by civicrm line id: create the missing, update the drifted, delete the
// ones the CRM no longer reports.
func (s *ContributionService) lineItemsHandling(ctx context.Context, invRepo invoices.Repository, invoice *models.Invoice, lines []schema.Values) error {
	existing, err := invRepo.LinesByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}

	byID := make(map[int64]*models.InvoiceLine, len(existing))
	for _, line := range existing {
		if line.CiviCRMID.Valid {
			byID[line.CiviCRMID.Int64] = line
		}
	}

	incoming := make(map[int64]bool, len(lines))
	for _, lv := range lines {
		lineID, hasID := lv.Int64("x_civicrm_id")
		if hasID {
			incoming[lineID] = true
		}

		current := byID[lineID]
		if !hasID || current == nil {
			if _, err := invRepo.CreateLine(ctx, s.buildLine(lv, invoice.ID)); err != nil {
				return err
			}
			continue
		}
		if !lineMatches(lv, current) {
			line := s.buildLine(lv, invoice.ID)
			line.ID = current.ID
			if err := invRepo.UpdateLine(ctx, line); err != nil {
				return err
			}
		}
	}

	for _, line := range existing {
		if !line.CiviCRMID.Valid || !incoming[line.CiviCRMID.Int64] {
			if err := invRepo.DeleteLine(ctx, line.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ContributionService) buildLine(lv schema.Values, invoiceID int64) *models.InvoiceLine {
	line := &models.InvoiceLine{
		InvoiceID: invoiceID,
		Name:      lv.String("name"),
		Quantity:  1,
		TaxIDs:    lv.Int64List("tax_ids"),
	}
	if id, ok := lv.Int64("x_civicrm_id"); ok {
		line.CiviCRMID = sql.NullInt64{Int64: id, Valid: true}
	}
	if id, ok := lv.Int64("product_id"); ok {
		line.ProductID = sql.NullInt64{Int64: id, Valid: true}
	}
	if id, ok := lv.Int64("account_id"); ok {
		line.AccountID = sql.NullInt64{Int64: id, Valid: true}
	}
	if q, ok := lv.Float64("quantity"); ok {
		line.Quantity = q
	}
	if p, ok := lv.Float64("price_unit"); ok {
		line.PriceUnit = p
	}
	if p, ok := lv.Float64("price_subtotal"); ok {
		line.PriceSubtotal = p
	}
	return line
}

// lineMatches compares only the fields the payload actually carries.
// Relational fields compare by id; the tax set compares by its last id.
func lineMatches(lv schema.Values, line *models.InvoiceLine) bool {
	if id, ok := lv.Int64("x_civicrm_id"); ok {
		if !line.CiviCRMID.Valid || line.CiviCRMID.Int64 != id {
			return false
		}
	}
	if id, ok := lv.Int64("product_id"); ok {
		if !line.ProductID.Valid || line.ProductID.Int64 != id {
			return false
		}
	}
	if lv.Has("name") && lv.String("name") != line.Name {
		return false
	}
	if q, ok := lv.Float64("quantity"); ok && q != line.Quantity {
		return false
	}
	if p, ok := lv.Float64("price_unit"); ok && p != line.PriceUnit {
		return false
	}
	if p, ok := lv.Float64("price_subtotal"); ok && p != line.PriceSubtotal {
		return false
	}
	if id, ok := lv.Int64("account_id"); ok {
		if !line.AccountID.Valid || line.AccountID.Int64 != id {
			return false
		}
	}
	if lv.Has("tax_ids") && lastID(lv.Int64List("tax_ids")) != lastID(line.TaxIDs) {
		return false
	}
	return true
}

func lastID(ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1]
}

// matchLines reports whether the stored line set equals the incoming one:
// same count, every stored line found by civicrm id, every compared field
// equal.
func (s *ContributionService) matchLines(ctx context.Context, invRepo invoices.Repository, invoice *models.Invoice, lines []schema.Values) (bool, error) {
	existing, err := invRepo.LinesByInvoice(ctx, invoice.ID)
	if err != nil {
		return false, err
	}
	if len(existing) != len(lines) {
		return false, nil
	}

	for _, line := range existing {
		var match schema.Values
		for _, lv := range lines {
			if id, ok := lv.Int64("x_civicrm_id"); ok && line.CiviCRMID.Valid && id == line.CiviCRMID.Int64 {
				match = lv
				break
			}
		}
		if match == nil {
			return false, nil
		}
		if !lineMatches(match, line) {
			return false, nil
		}
	}
	return true, nil
}

func (s *ContributionService) computeTaxes(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice) error {
	invRepo := s.repomanager.Invoices(tx)
	resolver := lookups.NewResolver(s.repomanager.Lookups(tx))

	lines, err := invRepo.LinesByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}

	var taxIDs []int64
	for _, line := range lines {
		taxIDs = append(taxIDs, line.TaxIDs...)
	}
	amounts, err := resolver.TaxAmounts(ctx, taxIDs)
	if err != nil {
		return err
	}

	var amountTax, amountTotal float64
	for _, line := range lines {
		amountTotal += line.PriceSubtotal
		for _, taxID := range line.TaxIDs {
			amountTax += line.PriceSubtotal * amounts[taxID] / 100
		}
	}
	amountTotal += amountTax

	invoice.AmountTax = amountTax
	invoice.AmountTotal = amountTotal
	return invRepo.SetTotals(ctx, invoice.ID, amountTax, amountTotal)
}

// supersede retires a posted invoice whose content drifted from the CRM's
// view: capture its reconciled payments, unlink them, refund the original,
// recreate the invoice from the payload and re-apply the captured payments
// to the new document.
func (s *ContributionService) supersede(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice, vals schema.Values, resp *SyncResponse) (*models.Invoice, error) {
	invRepo := s.repomanager.Invoices(tx)

	creditIDs, err := invRepo.ReconciledPaymentIDs(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if err := invRepo.Unreconcile(ctx, invoice.ID); err != nil {
		return nil, err
	}

	refund, err := s.refundInvoice(ctx, tx, invoice, vals, resp)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, invRepo, invoice, refund); err != nil {
		return nil, err
	}

	newInvoice, err := s.createInvoice(ctx, invRepo, vals, models.InvoiceTypeOut)
	if err != nil {
		return nil, err
	}
	if err := s.openInvoice(ctx, tx, newInvoice, vals, resp); err != nil {
		return nil, err
	}

	// Reattach previously matched payments. This path must not re-queue
	// them for outbound sync: the CRM already knows them.
	for _, paymentID := range creditIDs {
		if err := s.reconcilePayment(ctx, tx, newInvoice, paymentID, false); err != nil {
			return nil, err
		}
	}
	s.logger.Info(ctx, "invoice superseded",
		"old_number", invoice.Number, "new_number", newInvoice.Number, "reapplied", len(creditIDs))
	return newInvoice, nil
}

// settle marks an invoice/refund pair as offsetting each other.
func (s *ContributionService) settle(ctx context.Context, invRepo invoices.Repository, invoice, refund *models.Invoice) error {
	if err := invRepo.SetState(ctx, invoice.ID, models.InvoiceStatePaid); err != nil {
		return err
	}
	invoice.State = models.InvoiceStatePaid
	if err := invRepo.SetState(ctx, refund.ID, models.InvoiceStatePaid); err != nil {
		return err
	}
	refund.State = models.InvoiceStatePaid
	return nil
}

// refundInvoice creates an open credit note reversing the given invoice. The
// refund carries the original's civicrm id so the lineage stays intact.
func (s *ContributionService) refundInvoice(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice, vals schema.Values, resp *SyncResponse) (*models.Invoice, error) {
	invRepo := s.repomanager.Invoices(tx)

	description := "Technical refund"
	date := time.Now()
	if refunds := vals.Nested("refund"); len(refunds) > 0 {
		rv := refunds[0]
		if d := rv.String("description"); d != "" {
			description = d
		}
		if t, ok := rv["date_invoice"].(time.Time); ok {
			date = t
		} else if t, ok := rv["date"].(time.Time); ok {
			date = t
		}
	}

	refund := &models.Invoice{
		CiviCRMID:   invoice.CiviCRMID,
		State:       models.InvoiceStateDraft,
		Type:        models.InvoiceTypeRefund,
		PartnerID:   invoice.PartnerID,
		AccountID:   invoice.AccountID,
		JournalID:   invoice.JournalID,
		CurrencyID:  invoice.CurrencyID,
		Name:        description,
		DateInvoice: date,
		AmountTax:   invoice.AmountTax,
		AmountTotal: invoice.AmountTotal,
	}
	refund, err := invRepo.Create(ctx, refund)
	if err != nil {
		return nil, err
	}
	refund.Number = s.documentNumber(refund)
	if err := invRepo.SetNumber(ctx, refund.ID, refund.Number); err != nil {
		return nil, err
	}
	if err := invRepo.SetState(ctx, refund.ID, models.InvoiceStateOpen); err != nil {
		return nil, err
	}
	refund.State = models.InvoiceStateOpen
	resp.CreditnoteNumber = refund.Number
	return refund, nil
}

// reconcilePayment links a payment's credit to an invoice. markAwaiting
// queues the payment for outbound sync when the invoice is CRM-linked and
// the payment is not yet known to the CRM.
func (s *ContributionService) reconcilePayment(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice, paymentID int64, markAwaiting bool) error {
	invRepo := s.repomanager.Invoices(tx)
	payRepo := s.repomanager.Payments(tx)

	if err := invRepo.Reconcile(ctx, invoice.ID, paymentID); err != nil {
		return err
	}
	if !markAwaiting || !invoice.CiviCRMID.Valid {
		return nil
	}
	return payRepo.MarkAwaitingIfUnsynced(ctx, paymentID)
}

// paymentHandling processes the payload's payment entries against the
// current invoice: skip already-synced ones, translate refund signals, and
// create/post/reconcile the rest.
func (s *ContributionService) paymentHandling(ctx context.Context, tx dbx.DBTX, invoice *models.Invoice, vals schema.Values, resp *SyncResponse) error {
	entries := vals.Nested("payments")
	if len(entries) == 0 {
		return nil
	}

	payRepo := s.repomanager.Payments(tx)
	invRepo := s.repomanager.Invoices(tx)

	var civicrmIDs []int64
	for _, pv := range entries {
		if id, ok := pv.Int64("x_civicrm_id"); ok {
			civicrmIDs = append(civicrmIDs, id)
		}
	}
	known, err := payRepo.FindByCiviCRMIDs(ctx, civicrmIDs)
	if err != nil {
		return err
	}
	knownSet := make(map[int64]bool, len(known))
	for _, p := range known {
		if p.CiviCRMID.Valid {
			knownSet[p.CiviCRMID.Int64] = true
		}
	}

	for _, pv := range entries {
		paymentCiviCRMID, hasPaymentID := pv.Int64("x_civicrm_id")
		if hasPaymentID && knownSet[paymentCiviCRMID] {
			// Already synced, nothing to do.
			continue
		}

		amount, _ := pv.Float64("amount")
		paymentType := pv.String("payment_type")

		if pv.String("status") == "" || amount < 0 {
			paymentType = models.PaymentTypeOutbound
			if amount < 0 {
				amount = -amount
			}

			if invoice.State == models.InvoiceStatePaid &&
				(amount != invoice.AmountTotal || len(vals.Nested("refund")) == 0) {
				// Partial refund of a settled invoice: a direct outbound
				// payment reconciled against it, no credit note.
				payment := s.buildPayment(pv, invoice, amount, paymentType)
				payment.State = models.PaymentStatePosted
				if _, err := payRepo.Create(ctx, payment); err != nil {
					return err
				}
				if err := invRepo.Reconcile(ctx, invoice.ID, payment.ID); err != nil {
					return err
				}
				continue
			}

			refund, err := s.refundInvoice(ctx, tx, invoice, vals, resp)
			if err != nil {
				return err
			}
			if invoice.State != models.InvoiceStatePaid {
				// The credit note fully offsets the open invoice; no
				// payment row needed.
				if err := s.settle(ctx, invRepo, invoice, refund); err != nil {
					return err
				}
				continue
			}
			// Settled invoice, full refund: the outbound payment is hosted
			// on the credit note.
			invoice = refund

		} else if invoice.Type == models.InvoiceTypeRefund {
			// A refund document cannot host new payment lines; recreate a
			// regular invoice from the payload first.
			fresh, err := s.createInvoice(ctx, invRepo, vals, models.InvoiceTypeOut)
			if err != nil {
				return err
			}
			if err := s.openInvoice(ctx, tx, fresh, vals, resp); err != nil {
				return err
			}
			invoice = fresh
		}

		payment := s.buildPayment(pv, invoice, amount, paymentType)
		if invoice.CiviCRMID.Valid && !payment.CiviCRMID.Valid {
			payment.SyncStatus = models.SyncStatusAwaiting
		}
		if _, err := payRepo.Create(ctx, payment); err != nil {
			return err
		}
		if err := payRepo.LinkInvoice(ctx, payment.ID, invoice.ID); err != nil {
			return err
		}
		if err := payRepo.SetState(ctx, payment.ID, models.PaymentStatePosted); err != nil {
			return err
		}
		if err := s.reconcilePayment(ctx, tx, invoice, payment.ID, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContributionService) buildPayment(pv schema.Values, invoice *models.Invoice, amount float64, paymentType string) *models.Payment {
	journalID, _ := pv.Int64("journal_id")
	methodID, _ := pv.Int64("payment_method_id")

	payment := &models.Payment{
		PartnerID:       sql.NullInt64{Int64: invoice.PartnerID, Valid: true},
		JournalID:       journalID,
		Amount:          amount,
		PaymentType:     paymentType,
		PartnerType:     pv.String("partner_type"),
		PaymentMethodID: methodID,
		Communication:   pv.String("communication"),
		State:           models.PaymentStateDraft,
		PaymentDate:     time.Now(),
	}
	if id, ok := pv.Int64("x_civicrm_id"); ok {
		payment.CiviCRMID = sql.NullInt64{Int64: id, Valid: true}
	}
	if id, ok := pv.Int64("currency_id"); ok {
		payment.CurrencyID = sql.NullInt64{Int64: id, Valid: true}
	}
	if date, ok := pv["payment_date"].(time.Time); ok {
		payment.PaymentDate = date
	}
	return payment
}
