package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const donationColumns = `id, donor_id, donor_first_name, donor_last_name, email, phone_number,
	address_line_address, address_city, address_state, address_postal_code, address_country,
	donation_causes, livemode, native_currency, amount_in_cents, fees_covered, fees_charged_by_stripe,
	donation_created, distribution_status, payment_method,
	stripe_payment_intent_id, stripe_charge_id, stripe_balance_transaction_id,
	stripe_customer_id, stripe_payment_method_id, source, logged_at`

const donorColumns = `id, first_name, last_name, email,
	address_line_address, address_city, address_state, address_postal_code, address_country,
	is_admin, set_up, stripe_customer_ids, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindDonation(ctx context.Context, db *gorm.DB, ids domain.Identifiers) (*domain.DonationRecord, error) {
	type lookup struct {
		field  string
		column string
		value  string
	}
	candidates := []lookup{
		{"donation_id", "id", ids.LedgerID},
		{"charge_id", "stripe_charge_id", ids.ChargeID},
		{"payment_intent_id", "stripe_payment_intent_id", ids.PaymentIntentID},
		{"balance_transaction_id", "stripe_balance_transaction_id", ids.BalanceTransactionID},
	}

	var (
		clauses []string
		args    []any
	)
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		clauses = append(clauses, c.column+" = ?")
		args = append(args, c.value)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	var rows []domain.DonationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+donationColumns+`
		 FROM donations WHERE `+strings.Join(clauses, " OR ")+`
		 ORDER BY logged_at ASC LIMIT 2`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, &domain.ConflictError{
			Field:  "donation_id",
			Values: []string{rows[0].ID, rows[1].ID},
		}
	}
}

func (r *repo) InsertDonation(ctx context.Context, db *gorm.DB, row *domain.DonationRecord) error {
	if row.LoggedAt.IsZero() {
		row.LoggedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO donations (`+donationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.DonorID,
		row.DonorFirstName,
		row.DonorLastName,
		row.Email,
		row.PhoneNumber,
		row.AddressLineAddress,
		row.AddressCity,
		row.AddressState,
		row.AddressPostalCode,
		row.AddressCountry,
		jsonOr(row.DonationCauses, "[]"),
		row.Livemode,
		row.NativeCurrency,
		row.AmountInCents,
		row.FeesCovered,
		row.FeesChargedByStripe,
		row.DonationCreated,
		row.DistributionStatus,
		jsonOr(row.PaymentMethod, "null"),
		row.StripePaymentIntentID,
		row.StripeChargeID,
		row.StripeBalanceTransactionID,
		row.StripeCustomerID,
		row.StripePaymentMethodID,
		row.Source,
		row.LoggedAt,
	).Error
}

func (r *repo) UpdateDistributionStatus(ctx context.Context, db *gorm.DB, id string, status domain.DistributionStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE donations SET distribution_status = ? WHERE id = ?`,
		string(status),
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListDonationsByEmail(ctx context.Context, db *gorm.DB, email string) ([]domain.DonationRecord, error) {
	var rows []domain.DonationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+donationColumns+`
		 FROM donations WHERE lower(email) = lower(?)
		 ORDER BY donation_created DESC, id DESC`,
		strings.TrimSpace(email),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListDonations(ctx context.Context, db *gorm.DB, filter domain.ListDonationFilter, page pagination.Pagination) ([]domain.DonationRecord, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.DonationRecord{}).
		Select(donationColumns)
	if filter.Email != "" {
		stmt = stmt.Where("lower(email) = lower(?)", filter.Email)
	}
	if filter.Livemode != nil {
		stmt = stmt.Where("livemode = ?", *filter.Livemode)
	}
	if filter.Source != "" {
		stmt = stmt.Where("source = ?", string(filter.Source))
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid page token", domain.ErrInvalidIdentifier)
		}
		donatedAt, err := time.Parse(time.RFC3339Nano, cursor.DonatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid page token", domain.ErrInvalidIdentifier)
		}
		stmt = stmt.Where(
			"(donation_created < ? OR (donation_created = ? AND id < ?))",
			donatedAt.UTC(), donatedAt.UTC(), cursor.ID,
		)
	}

	var rows []domain.DonationRecord
	err := stmt.
		Order("donation_created desc, id desc").
		Limit(pagination.NormalizePageSize(page.PageSize) + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListProofs(ctx context.Context, db *gorm.DB, donationIDs []string) ([]domain.ProofRecord, error) {
	if len(donationIDs) == 0 {
		return nil, nil
	}
	var rows []domain.ProofRecord
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, pd.donation_id, p.uploaded_at, p.message_to_donor,
		        p.amount_distributed_cents, p.region_distributed, p.attachment_urls
		 FROM proofs p
		 JOIN proof_donations pd ON pd.proof_id = p.id
		 WHERE pd.donation_id IN ?
		 ORDER BY p.uploaded_at ASC, p.id ASC`,
		donationIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) FindDonor(ctx context.Context, db *gorm.DB, id, email string) (*domain.DonorRecord, error) {
	id = strings.TrimSpace(id)
	email = strings.TrimSpace(email)
	if id == "" && email == "" {
		return nil, nil
	}

	var donor domain.DonorRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+donorColumns+`
		 FROM donors
		 WHERE (? <> '' AND id = ?) OR (? <> '' AND lower(email) = lower(?))
		 ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
		 LIMIT 1`,
		id, id, email, email, id,
	).Scan(&donor).Error
	if err != nil {
		return nil, err
	}
	if donor.ID == "" {
		return nil, nil
	}
	return &donor, nil
}

func (r *repo) AppendDonorCustomerID(ctx context.Context, db *gorm.DB, donorID, customerID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current datatypes.JSON
		err := tx.Raw(`SELECT stripe_customer_ids FROM donors WHERE id = ?`, donorID).Row().Scan(&current)
		if err != nil {
			return err
		}

		ids := []string{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &ids); err != nil {
				return fmt.Errorf("decode stripe_customer_ids for donor %s: %w", donorID, err)
			}
		}
		for _, existing := range ids {
			if existing == customerID {
				return nil
			}
		}
		ids = append(ids, customerID)

		encoded, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE donors SET stripe_customer_ids = ?, updated_at = ? WHERE id = ?`,
			datatypes.JSON(encoded),
			time.Now().UTC(),
			donorID,
		).Error
	})
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.DonationEvent) error {
	detail := event.Detail
	if detail == nil {
		detail = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO donation_events (id, donation_id, event_type, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.DonationID,
		string(event.EventType),
		detail,
		event.OccurredAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, donationID string) ([]domain.DonationEvent, error) {
	var events []domain.DonationEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, donation_id, event_type, detail, occurred_at
		 FROM donation_events WHERE donation_id = ?
		 ORDER BY id ASC`,
		donationID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func jsonOr(value datatypes.JSON, fallback string) datatypes.JSON {
	if len(value) == 0 {
		return datatypes.JSON(fallback)
	}
	return value
}
