// Package canonical builds the canonical Donation aggregate from gateway
// payment events, ledger rows and manual admin input.
package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/identifier"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
)

// Charge metadata keys written by the checkout flow.
const (
	MetadataFirstName   = "first_name"
	MetadataLastName    = "last_name"
	MetadataFeesCovered = "fees_covered"
	MetadataCauses      = "causes"
	MetadataIdentifiers = "identifiers"

	// CustomerMetadataUserID links a gateway customer to a portal account.
	CustomerMetadataUserID = "user_id"
)

const DefaultCurrency = "cad"

type metadataIdentifiers struct {
	DonationID string `json:"donation_id"`
}

// FromGatewayEvent builds a Donation from a fully aggregated payment event.
// newID is called only when the charge metadata carries no ledger id.
func FromGatewayEvent(event gatewaydomain.PaymentEvent, newID func() uuid.UUID) (domain.Donation, error) {
	charge := event.Charge
	customer := event.Customer

	causes, err := parseCauses(charge)
	if err != nil {
		return domain.Donation{}, err
	}
	ledgerID, err := parseLedgerID(charge)
	if err != nil {
		return domain.Donation{}, err
	}
	if ledgerID == "" {
		ledgerID = newID().String()
	}

	firstName, lastName := donorName(charge.Metadata, customer.Name)

	ids := event.Identifiers
	ids.LedgerID = ledgerID
	ids.ChargeID = charge.ID

	donor := domain.Donor{
		ID:        strings.TrimSpace(customer.Metadata[CustomerMetadataUserID]),
		FirstName: firstName,
		LastName:  lastName,
		Email:     normalizeEmail(customer.Email),
		Phone:     strings.TrimSpace(customer.Phone),
		Address: domain.Address{
			Line:       customer.Address.Line1,
			City:       customer.Address.City,
			State:      customer.Address.State,
			PostalCode: customer.Address.PostalCode,
			Country:    customer.Address.Country,
		},
		GatewayCustomerIDs: []string{},
	}
	donor.AppendCustomerID(customer.ID)

	d := domain.Donation{
		Identifiers:        ids,
		Donor:              donor,
		Causes:             causes,
		Live:               charge.Livemode,
		Currency:           normalizeCurrency(charge.Currency),
		AmountDonatedCents: charge.AmountCaptured,
		FeesCoveredCents:   parseFeesCovered(charge.Metadata[MetadataFeesCovered]),
		FeesChargedCents:   event.BalanceTransaction.Fee,
		DonatedAt:          time.Unix(charge.Created, 0).UTC(),
		DistributionStatus: domain.DistributionProcessing,
		PaymentMethod:      paymentMethod(event.PaymentMethod),
		Source:             domain.SourceGateway,
		Proofs:             []domain.ProofOfDonation{},
	}

	if err := Validate(d); err != nil {
		// A gateway record that breaks the creation invariants is upstream
		// state, not caller input.
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return domain.Donation{}, &domain.IncompleteGatewayDataError{Field: vErr.Field, Identifier: charge.ID}
		}
		return domain.Donation{}, err
	}
	return d, nil
}

// donorName prefers the names written into charge metadata and falls back to
// splitting the customer display name on its first space.
func donorName(metadata map[string]string, displayName string) (string, string) {
	first := strings.TrimSpace(metadata[MetadataFirstName])
	last := strings.TrimSpace(metadata[MetadataLastName])
	if first != "" || last != "" {
		return first, last
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func parseCauses(charge gatewaydomain.Charge) ([]domain.CauseAllocation, error) {
	raw := strings.TrimSpace(charge.Metadata[MetadataCauses])
	if raw == "" {
		return []domain.CauseAllocation{}, nil
	}
	var causes []domain.CauseAllocation
	if err := json.Unmarshal([]byte(raw), &causes); err != nil {
		return nil, &domain.MalformedGatewayMetadataError{Key: MetadataCauses, ChargeID: charge.ID, Err: err}
	}
	if causes == nil {
		causes = []domain.CauseAllocation{}
	}
	return causes, nil
}

func parseLedgerID(charge gatewaydomain.Charge) (string, error) {
	raw := strings.TrimSpace(charge.Metadata[MetadataIdentifiers])
	if raw == "" {
		return "", nil
	}
	var ids metadataIdentifiers
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return "", &domain.MalformedGatewayMetadataError{Key: MetadataIdentifiers, ChargeID: charge.ID, Err: err}
	}
	id := strings.TrimSpace(ids.DonationID)
	if id == "" {
		return "", nil
	}
	classified := identifier.Classify(id)
	if classified.Kind != identifier.KindLedgerID {
		return "", &domain.MalformedGatewayMetadataError{
			Key:      MetadataIdentifiers,
			ChargeID: charge.ID,
			Err:      fmt.Errorf("donation_id %q is not a UUID v4", id),
		}
	}
	return classified.Value, nil
}

func parseFeesCovered(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func paymentMethod(pm gatewaydomain.PaymentMethod) *domain.PaymentMethod {
	if pm.Type == "" {
		return nil
	}
	return &domain.PaymentMethod{
		Type:         domain.PaymentMethodType(pm.Type),
		CardBrand:    pm.CardBrand,
		CardLastFour: pm.CardLast4,
		CardExpMonth: pm.CardExpMonth,
		CardExpYear:  pm.CardExpYear,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}
