package domain

import (
	"strings"
	"time"
)

// MinimumDonationCents is the smallest amount accepted when a donation is created.
const MinimumDonationCents int64 = 500

// Identifiers is a sparse bag of alternative keys that may all refer to the
// same donation. It is a lookup key set, never a primary key on its own.
type Identifiers struct {
	LedgerID             string `json:"donation_id,omitempty"`
	ChargeID             string `json:"charge_id,omitempty"`
	PaymentIntentID      string `json:"payment_intent_id,omitempty"`
	BalanceTransactionID string `json:"balance_transaction_id,omitempty"`
	CustomerID           string `json:"customer_id,omitempty"`
	PaymentMethodID      string `json:"payment_method_id,omitempty"`
}

func (i Identifiers) IsEmpty() bool {
	return i.LedgerID == "" &&
		i.ChargeID == "" &&
		i.PaymentIntentID == "" &&
		i.BalanceTransactionID == "" &&
		i.CustomerID == "" &&
		i.PaymentMethodID == ""
}

// HasPaymentReference reports whether the gateway aggregator can start from this bag.
func (i Identifiers) HasPaymentReference() bool {
	return i.ChargeID != "" || i.PaymentIntentID != ""
}

// Refindable reports whether a stored donation can be located again by one of
// the lookup paths the ledger supports.
func (i Identifiers) Refindable() bool {
	return i.LedgerID != "" || i.ChargeID != "" || i.PaymentIntentID != ""
}

type Address struct {
	Line       string `json:"line_address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Donor identifies the person behind a donation. An empty ID means the donor
// has no portal account.
type Donor struct {
	ID                 string   `json:"donor_id,omitempty"`
	FirstName          string   `json:"first_name"`
	LastName           string   `json:"last_name"`
	Email              string   `json:"email"`
	Phone              string   `json:"phone_number,omitempty"`
	Address            Address  `json:"address"`
	IsAdmin            bool     `json:"admin"`
	IsProfileComplete  bool     `json:"set_up"`
	GatewayCustomerIDs []string `json:"stripe_customer_ids"`
}

func (d Donor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// AppendCustomerID adds a gateway customer id, keeping order and skipping duplicates.
func (d *Donor) AppendCustomerID(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	for _, existing := range d.GatewayCustomerIDs {
		if existing == id {
			return
		}
	}
	d.GatewayCustomerIDs = append(d.GatewayCustomerIDs, id)
}

// CauseAllocation tags how the funds of a donation must be distributed.
// Monetary amounts live on the donation, never on the cause.
type CauseAllocation struct {
	Label  string `json:"label"`
	OneWay bool   `json:"one_way"`
	Region string `json:"region,omitempty"`
}

type DistributionStatus string

const (
	DistributionProcessing           DistributionStatus = "processing"
	DistributionDeliveredToPartners  DistributionStatus = "delivered_to_partners"
	DistributionPartiallyDistributed DistributionStatus = "partially_distributed"
	DistributionFullyDistributed     DistributionStatus = "fully_distributed"
)

func (s DistributionStatus) Valid() bool {
	switch s {
	case DistributionProcessing,
		DistributionDeliveredToPartners,
		DistributionPartiallyDistributed,
		DistributionFullyDistributed:
		return true
	default:
		return false
	}
}

type PaymentMethodType string

const (
	PaymentMethodCard            PaymentMethodType = "card"
	PaymentMethodAffirm          PaymentMethodType = "affirm"
	PaymentMethodACSSDebit       PaymentMethodType = "acss_debit"
	PaymentMethodCustomerBalance PaymentMethodType = "customer_balance"
	PaymentMethodCash            PaymentMethodType = "cash"
	PaymentMethodWire            PaymentMethodType = "wire"
	PaymentMethodCheque          PaymentMethodType = "cheque"
)

// PaymentMethod is the donor-facing summary of how a donation was paid.
type PaymentMethod struct {
	Type         PaymentMethodType `json:"type"`
	CardBrand    string            `json:"card_brand,omitempty"`
	CardLastFour string            `json:"card_last_four,omitempty"`
	CardExpMonth int64             `json:"card_exp_month,omitempty"`
	CardExpYear  int64             `json:"card_exp_year,omitempty"`
}

type Source string

const (
	SourceGateway Source = "gateway"
	SourceManual  Source = "manual"
)

// Donation is the canonical aggregate, identical in shape whichever source produced it.
type Donation struct {
	Identifiers        Identifiers        `json:"identifiers"`
	Donor              Donor              `json:"donor"`
	Causes             []CauseAllocation  `json:"causes"`
	Live               bool               `json:"livemode"`
	Currency           string             `json:"native_currency"`
	AmountDonatedCents int64              `json:"amount_in_cents"`
	FeesCoveredCents   int64              `json:"fees_covered"`
	FeesChargedCents   int64              `json:"fees_charged_by_stripe"`
	DonatedAt          time.Time          `json:"donation_created"`
	DistributionStatus DistributionStatus `json:"distribution_status"`
	PaymentMethod      *PaymentMethod     `json:"payment_method,omitempty"`
	Source             Source             `json:"source"`
	Proofs             []ProofOfDonation  `json:"proof"`
}

func (d Donation) ID() string {
	return d.Identifiers.LedgerID
}

func (d Donation) ProofAvailable() bool {
	return len(d.Proofs) > 0
}

// ProofOfDonation records a disbursement to partners covering one or more donations.
type ProofOfDonation struct {
	ID                     string    `json:"proof_id"`
	UploadedAt             time.Time `json:"uploaded_at"`
	MessageToDonor         string    `json:"message_to_donor,omitempty"`
	AmountDistributedCents int64     `json:"amount_disbursed"`
	RegionDistributed      string    `json:"region_distributed,omitempty"`
	AttachmentURLs         []string  `json:"attachment_urls"`
}

// Resolution is the outcome of a resolve-or-create call.
type Resolution struct {
	Donation       Donation `json:"donation"`
	AlreadyExisted bool     `json:"already_existed"`
}

// ManualDonationInput describes a cash, wire or admin-entered donation.
type ManualDonationInput struct {
	Donor            Donor
	Causes           []CauseAllocation
	AmountCents      int64
	FeesCoveredCents int64
	FeesChargedCents int64
	Currency         string
	DonatedAt        time.Time
	Live             bool
	PaymentMethod    *PaymentMethod
}
