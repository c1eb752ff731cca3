package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DonationRecord is a row of the donations ledger table.
type DonationRecord struct {
	ID                         string         `gorm:"column:id;primaryKey"`
	DonorID                    *string        `gorm:"column:donor_id"`
	DonorFirstName             string         `gorm:"column:donor_first_name"`
	DonorLastName              string         `gorm:"column:donor_last_name"`
	Email                      string         `gorm:"column:email"`
	PhoneNumber                string         `gorm:"column:phone_number"`
	AddressLineAddress         string         `gorm:"column:address_line_address"`
	AddressCity                string         `gorm:"column:address_city"`
	AddressState               string         `gorm:"column:address_state"`
	AddressPostalCode          string         `gorm:"column:address_postal_code"`
	AddressCountry             string         `gorm:"column:address_country"`
	DonationCauses             datatypes.JSON `gorm:"column:donation_causes;type:jsonb"`
	Livemode                   bool           `gorm:"column:livemode"`
	NativeCurrency             string         `gorm:"column:native_currency"`
	AmountInCents              int64          `gorm:"column:amount_in_cents"`
	FeesCovered                int64          `gorm:"column:fees_covered"`
	FeesChargedByStripe        int64          `gorm:"column:fees_charged_by_stripe"`
	DonationCreated            time.Time      `gorm:"column:donation_created"`
	DistributionStatus         *string        `gorm:"column:distribution_status"`
	PaymentMethod              datatypes.JSON `gorm:"column:payment_method;type:jsonb"`
	StripePaymentIntentID      *string        `gorm:"column:stripe_payment_intent_id"`
	StripeChargeID             *string        `gorm:"column:stripe_charge_id"`
	StripeBalanceTransactionID *string        `gorm:"column:stripe_balance_transaction_id"`
	StripeCustomerID           *string        `gorm:"column:stripe_customer_id"`
	StripePaymentMethodID      *string        `gorm:"column:stripe_payment_method_id"`
	Source                     string         `gorm:"column:source"`
	LoggedAt                   time.Time      `gorm:"column:logged_at"`
}

func (DonationRecord) TableName() string { return "donations" }

// ProofRecord is a proof row joined with one of the donations it covers.
type ProofRecord struct {
	ID                     string         `gorm:"column:id;primaryKey"`
	DonationID             string         `gorm:"column:donation_id;->"`
	UploadedAt             time.Time      `gorm:"column:uploaded_at"`
	MessageToDonor         *string        `gorm:"column:message_to_donor"`
	AmountDistributedCents int64          `gorm:"column:amount_distributed_cents"`
	RegionDistributed      *string        `gorm:"column:region_distributed"`
	AttachmentURLs         datatypes.JSON `gorm:"column:attachment_urls;type:jsonb"`
}

func (ProofRecord) TableName() string { return "proofs" }

type DonorRecord struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	FirstName          string         `gorm:"column:first_name"`
	LastName           string         `gorm:"column:last_name"`
	Email              string         `gorm:"column:email"`
	AddressLineAddress string         `gorm:"column:address_line_address"`
	AddressCity        string         `gorm:"column:address_city"`
	AddressState       string         `gorm:"column:address_state"`
	AddressPostalCode  string         `gorm:"column:address_postal_code"`
	AddressCountry     string         `gorm:"column:address_country"`
	IsAdmin            bool           `gorm:"column:is_admin"`
	SetUp              bool           `gorm:"column:set_up"`
	StripeCustomerIDs  datatypes.JSON `gorm:"column:stripe_customer_ids;type:jsonb"`
	CreatedAt          time.Time      `gorm:"column:created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at"`
}

func (DonorRecord) TableName() string { return "donors" }

type EventType string

const (
	EventDonationCreated   EventType = "donation.created"
	EventReceiptResent     EventType = "donation.receipt_resent"
	EventInsertConflict    EventType = "donation.insert_conflict"
	EventDistributionMoved EventType = "donation.distribution_status_changed"
)

// DonationEvent is an append-only audit entry for a ledger donation.
type DonationEvent struct {
	ID         snowflake.ID      `gorm:"column:id;primaryKey"`
	DonationID string            `gorm:"column:donation_id"`
	EventType  EventType         `gorm:"column:event_type"`
	Detail     datatypes.JSONMap `gorm:"column:detail;type:jsonb"`
	OccurredAt time.Time         `gorm:"column:occurred_at"`
}

func (DonationEvent) TableName() string { return "donation_events" }
