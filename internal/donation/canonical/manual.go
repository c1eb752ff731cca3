package canonical

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/donation/domain"
)

// FromManualInput builds a cash, wire or admin-entered donation. It carries
// no gateway identifiers; now is used when the input has no donation date.
func FromManualInput(input domain.ManualDonationInput, id uuid.UUID, now time.Time) (domain.Donation, error) {
	donatedAt := input.DonatedAt
	if donatedAt.IsZero() {
		donatedAt = now
	}

	causes := input.Causes
	if causes == nil {
		causes = []domain.CauseAllocation{}
	}

	d := domain.Donation{
		Identifiers: domain.Identifiers{LedgerID: id.String()},
		Donor: domain.Donor{
			ID:                 strings.TrimSpace(input.Donor.ID),
			FirstName:          strings.TrimSpace(input.Donor.FirstName),
			LastName:           strings.TrimSpace(input.Donor.LastName),
			Email:              normalizeEmail(input.Donor.Email),
			Phone:              strings.TrimSpace(input.Donor.Phone),
			Address:            input.Donor.Address,
			GatewayCustomerIDs: []string{},
		},
		Causes:             causes,
		Live:               input.Live,
		Currency:           normalizeCurrency(input.Currency),
		AmountDonatedCents: input.AmountCents,
		FeesCoveredCents:   input.FeesCoveredCents,
		FeesChargedCents:   input.FeesChargedCents,
		DonatedAt:          donatedAt.UTC().Truncate(time.Microsecond),
		DistributionStatus: domain.DistributionProcessing,
		PaymentMethod:      input.PaymentMethod,
		Source:             domain.SourceManual,
		Proofs:             []domain.ProofOfDonation{},
	}

	if err := Validate(d); err != nil {
		return domain.Donation{}, err
	}
	return d, nil
}
