package canonical

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallbiznis/donara/internal/donation/domain"
	"gorm.io/datatypes"
)

// FromLedgerRow maps a stored donation row and the proofs that cover it into
// a Donation. Rows are trusted for amounts; only structural invariants are
// checked.
func FromLedgerRow(row domain.DonationRecord, proofs []domain.ProofRecord) (domain.Donation, error) {
	causes := []domain.CauseAllocation{}
	if len(row.DonationCauses) > 0 {
		if err := json.Unmarshal(row.DonationCauses, &causes); err != nil {
			return domain.Donation{}, fmt.Errorf("decode donation_causes for %s: %w", row.ID, err)
		}
		if causes == nil {
			causes = []domain.CauseAllocation{}
		}
	}

	var method *domain.PaymentMethod
	if len(row.PaymentMethod) > 0 {
		if err := json.Unmarshal(row.PaymentMethod, &method); err != nil {
			return domain.Donation{}, fmt.Errorf("decode payment_method for %s: %w", row.ID, err)
		}
	}

	status := domain.DistributionProcessing
	if row.DistributionStatus != nil && *row.DistributionStatus != "" {
		status = domain.DistributionStatus(*row.DistributionStatus)
	}

	donor := domain.Donor{
		ID:        deref(row.DonorID),
		FirstName: row.DonorFirstName,
		LastName:  row.DonorLastName,
		Email:     row.Email,
		Phone:     row.PhoneNumber,
		Address: domain.Address{
			Line:       row.AddressLineAddress,
			City:       row.AddressCity,
			State:      row.AddressState,
			PostalCode: row.AddressPostalCode,
			Country:    row.AddressCountry,
		},
		GatewayCustomerIDs: []string{},
	}
	donor.AppendCustomerID(deref(row.StripeCustomerID))

	outProofs := make([]domain.ProofOfDonation, 0, len(proofs))
	for _, p := range proofs {
		proof, err := proofFromRow(p)
		if err != nil {
			return domain.Donation{}, err
		}
		outProofs = append(outProofs, proof)
	}

	d := domain.Donation{
		Identifiers: domain.Identifiers{
			LedgerID:             row.ID,
			ChargeID:             deref(row.StripeChargeID),
			PaymentIntentID:      deref(row.StripePaymentIntentID),
			BalanceTransactionID: deref(row.StripeBalanceTransactionID),
			CustomerID:           deref(row.StripeCustomerID),
			PaymentMethodID:      deref(row.StripePaymentMethodID),
		},
		Donor:              donor,
		Causes:             causes,
		Live:               row.Livemode,
		Currency:           row.NativeCurrency,
		AmountDonatedCents: row.AmountInCents,
		FeesCoveredCents:   row.FeesCovered,
		FeesChargedCents:   row.FeesChargedByStripe,
		DonatedAt:          row.DonationCreated.UTC(),
		DistributionStatus: status,
		PaymentMethod:      method,
		Source:             domain.Source(row.Source),
		Proofs:             outProofs,
	}
	if err := validateStored(d); err != nil {
		return domain.Donation{}, err
	}
	return d, nil
}

// ToLedgerRow flattens a Donation into its ledger columns. LoggedAt is left
// for the store to assign.
func ToLedgerRow(d domain.Donation) (domain.DonationRecord, error) {
	causes := d.Causes
	if causes == nil {
		causes = []domain.CauseAllocation{}
	}
	causesJSON, err := json.Marshal(causes)
	if err != nil {
		return domain.DonationRecord{}, err
	}
	methodJSON, err := json.Marshal(d.PaymentMethod)
	if err != nil {
		return domain.DonationRecord{}, err
	}

	status := string(d.DistributionStatus)
	if status == "" {
		status = string(domain.DistributionProcessing)
	}

	return domain.DonationRecord{
		ID:                         d.Identifiers.LedgerID,
		DonorID:                    optional(d.Donor.ID),
		DonorFirstName:             d.Donor.FirstName,
		DonorLastName:              d.Donor.LastName,
		Email:                      d.Donor.Email,
		PhoneNumber:                d.Donor.Phone,
		AddressLineAddress:         d.Donor.Address.Line,
		AddressCity:                d.Donor.Address.City,
		AddressState:               d.Donor.Address.State,
		AddressPostalCode:          d.Donor.Address.PostalCode,
		AddressCountry:             d.Donor.Address.Country,
		DonationCauses:             datatypes.JSON(causesJSON),
		Livemode:                   d.Live,
		NativeCurrency:             d.Currency,
		AmountInCents:              d.AmountDonatedCents,
		FeesCovered:                d.FeesCoveredCents,
		FeesChargedByStripe:        d.FeesChargedCents,
		DonationCreated:            d.DonatedAt.UTC(),
		DistributionStatus:         &status,
		PaymentMethod:              datatypes.JSON(methodJSON),
		StripePaymentIntentID:      optional(d.Identifiers.PaymentIntentID),
		StripeChargeID:             optional(d.Identifiers.ChargeID),
		StripeBalanceTransactionID: optional(d.Identifiers.BalanceTransactionID),
		StripeCustomerID:           optional(d.Identifiers.CustomerID),
		StripePaymentMethodID:      optional(d.Identifiers.PaymentMethodID),
		Source:                     string(d.Source),
	}, nil
}

func proofFromRow(p domain.ProofRecord) (domain.ProofOfDonation, error) {
	urls := []string{}
	if len(p.AttachmentURLs) > 0 {
		if err := json.Unmarshal(p.AttachmentURLs, &urls); err != nil {
			return domain.ProofOfDonation{}, fmt.Errorf("decode attachment_urls for proof %s: %w", p.ID, err)
		}
		if urls == nil {
			urls = []string{}
		}
	}
	return domain.ProofOfDonation{
		ID:                     p.ID,
		UploadedAt:             p.UploadedAt.UTC(),
		MessageToDonor:         deref(p.MessageToDonor),
		AmountDistributedCents: p.AmountDistributedCents,
		RegionDistributed:      deref(p.RegionDistributed),
		AttachmentURLs:         urls,
	}, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
