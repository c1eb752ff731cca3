package canonical

import (
	"net/mail"
	"strings"

	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/identifier"
)

// Validate checks the invariants a donation must satisfy when it is created.
func Validate(d domain.Donation) error {
	if d.AmountDonatedCents < domain.MinimumDonationCents {
		return &domain.ValidationError{
			Field:  "amount_in_cents",
			Reason: "must be at least 500",
			Cause:  domain.ErrAmountBelowMinimum,
		}
	}
	if d.FeesCoveredCents < 0 {
		return &domain.ValidationError{Field: "fees_covered", Reason: "must not be negative"}
	}
	if strings.TrimSpace(d.Donor.Email) == "" {
		return &domain.ValidationError{Field: "email", Reason: "is required", Cause: domain.ErrInvalidEmail}
	}
	if _, err := mail.ParseAddress(d.Donor.Email); err != nil {
		return &domain.ValidationError{Field: "email", Reason: "is not a valid address", Cause: domain.ErrInvalidEmail}
	}
	if len(strings.TrimSpace(d.Currency)) != 3 {
		return &domain.ValidationError{Field: "native_currency", Reason: "must be an ISO 4217 code"}
	}
	return validateStored(d)
}

// validateStored checks the invariants that hold for every donation,
// including rows created before the current minimum amount.
func validateStored(d domain.Donation) error {
	if d.FeesChargedCents < 0 {
		return &domain.ValidationError{Field: "fees_charged_by_stripe", Reason: "must not be negative"}
	}
	if !d.Identifiers.Refindable() {
		return &domain.ValidationError{Field: "identifiers", Reason: "need a ledger id, charge id or payment intent id"}
	}
	if d.Identifiers.LedgerID != "" && identifier.Classify(d.Identifiers.LedgerID).Kind != identifier.KindLedgerID {
		return &domain.ValidationError{Field: "donation_id", Reason: "must be a UUID v4", Cause: domain.ErrInvalidIdentifier}
	}
	if !d.DistributionStatus.Valid() {
		return &domain.ValidationError{Field: "distribution_status", Reason: "is unknown", Cause: domain.ErrInvalidDistributionStatus}
	}
	switch d.Source {
	case domain.SourceGateway, domain.SourceManual:
	default:
		return &domain.ValidationError{Field: "source", Reason: "is unknown"}
	}
	return nil
}
