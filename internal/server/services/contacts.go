// Package services contains the sync business logic: the contact reconciler,
// the contribution (invoice) state machine and the outbound payment push.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/dbx"
	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/lookups"
	"github.com/dmitrijs2005/civisync/internal/server/models"
	"github.com/dmitrijs2005/civisync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civisync/internal/server/schema"
	"github.com/dmitrijs2005/civisync/internal/timex"
)

// ContactService reconciles a CRM contact payload into a local partner:
// create when the civicrm id is unknown, full overwrite otherwise.
type ContactService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewContactService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *ContactService {
	return &ContactService{db: db, repomanager: m, logger: logger}
}

// Sync validates the payload, resolves title and country, and creates or
// updates the partner. It never returns an error; every failure is reported
// through the response.
func (s *ContactService) Sync(ctx context.Context, payload map[string]any) (resp *SyncResponse) {
	resp = &SyncResponse{}
	acc := schema.NewAccumulator()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "contact sync panic", "cause", r)
			acc.Add(fmt.Errorf("%w during contact sync: %v", common.ErrUnexpected, r))
		}
		if !acc.Valid() {
			resp.IsError = 1
			resp.ErrorLog = acc.Errors()
		}
		if resp.Timestamp == 0 {
			resp.Timestamp = time.Now().Unix()
		}
	}()

	resolver := lookups.NewResolver(s.repomanager.Lookups(s.db))
	conv := schema.NewConverters(resolver)
	vals := schema.Validate(ctx, contactSchema(conv), payload, acc)

	civicrmID, hasCiviCRMID := vals.Int64("x_civicrm_id")
	resp.ContactID = civicrmID
	if !acc.Valid() {
		return resp
	}

	// Title and country are both attempted even if one fails so the caller
	// sees every unresolved key at once.
	var titleID, countryID sql.NullInt64
	if title := vals.String("title"); title != "" {
		id, err := resolver.ResolveTitle(ctx, title)
		if err != nil {
			acc.Add(err)
		} else {
			titleID = sql.NullInt64{Int64: id, Valid: true}
		}
	}
	if isoCode := vals.String("country_iso_code"); isoCode != "" {
		id, err := resolver.ResolveCountry(ctx, isoCode)
		if err != nil {
			acc.Add(err)
		} else {
			countryID = sql.NullInt64{Int64: id, Valid: true}
		}
	}
	if !acc.Valid() {
		return resp
	}

	repo := s.repomanager.Partners(s.db)
	matches, err := repo.FindByCiviCRMID(ctx, civicrmID)
	if err != nil {
		acc.Add(err)
		return resp
	}
	if len(matches) > 1 {
		acc.Add(fmt.Errorf("%w: you cannot have two partners with the same civicrm id: %d",
			common.ErrDuplicateIdentity, civicrmID))
		return resp
	}

	partner := &models.Partner{
		CiviCRMID:   sql.NullInt64{Int64: civicrmID, Valid: hasCiviCRMID},
		IsCompany:   vals.Bool("is_company"),
		Name:        vals.String("name"),
		DisplayName: vals.String("display_name"),
		TitleID:     titleID,
		Street:      vals.String("street"),
		Street2:     vals.String("street2"),
		City:        vals.String("city"),
		Zip:         vals.String("zip"),
		CountryID:   countryID,
		Website:     vals.String("website"),
		Phone:       vals.String("phone"),
		Mobile:      vals.String("mobile"),
		Fax:         vals.String("fax"),
		Email:       vals.String("email"),
		Active:      vals.Bool("active"),
		Customer:    vals.Bool("customer"),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.Partners(tx)
		if len(matches) == 1 {
			partner.ID = matches[0].ID
			_, err := repoTx.Update(ctx, partner)
			return err
		}
		_, err := repoTx.Create(ctx, partner)
		return err
	})
	if err != nil {
		acc.Add(err)
		return resp
	}

	resp.PartnerID = partner.ID
	resp.Timestamp = timex.ToEpoch(partner.WriteDate)
	s.logger.Info(ctx, "contact synced", "contact_id", civicrmID, "partner_id", partner.ID)
	return resp
}
