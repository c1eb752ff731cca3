// Package statement folds a donor's donations into a yearly statement with
// an estimated tax credit.
package statement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/internal/donation/domain"
)

var (
	ErrEmptyDonationSet = errors.New("empty_donation_set")
	ErrMixedDonor       = errors.New("mixed_donor")
)

var (
	// LowBracketLimitCents is the total up to which the low credit rate applies.
	LowBracketLimitCents int64 = 20000

	lowBracketRate  = decimal.RequireFromString("0.2005")
	highBracketRate = decimal.RequireFromString("0.4016")
)

// MixedDonorError reports donations that belong to more than one donor email.
type MixedDonorError struct {
	Emails []string
}

func (e *MixedDonorError) Error() string {
	return fmt.Sprintf("donations belong to more than one donor: %s", strings.Join(e.Emails, ", "))
}

func (e *MixedDonorError) Unwrap() error {
	return ErrMixedDonor
}

type SummaryStatement struct {
	DonorEmail            string            `json:"donor_email"`
	Donor                 domain.Donor      `json:"donor"`
	Currency              string            `json:"currency"`
	TotalDonatedCents     int64             `json:"total_donated_cents"`
	EligibleEstimateCents int64             `json:"eligible_estimate_cents"`
	EligibleEstimate      decimal.Decimal   `json:"eligible_estimate"`
	Donations             []domain.Donation `json:"donations"`
}

// Summarize totals donations for a single donor. The eligible estimate is a
// two bracket marginal credit, truncated to whole cents.
func Summarize(donations []domain.Donation) (SummaryStatement, error) {
	if len(donations) == 0 {
		return SummaryStatement{}, ErrEmptyDonationSet
	}

	email := strings.ToLower(strings.TrimSpace(donations[0].Donor.Email))
	var total int64
	for _, d := range donations {
		other := strings.ToLower(strings.TrimSpace(d.Donor.Email))
		if other != email {
			return SummaryStatement{}, &MixedDonorError{Emails: []string{email, other}}
		}
		total += d.AmountDonatedCents
	}

	estimate := EligibleEstimate(total)
	return SummaryStatement{
		DonorEmail:            email,
		Donor:                 donations[0].Donor,
		Currency:              strings.ToUpper(donations[0].Currency),
		TotalDonatedCents:     total,
		EligibleEstimateCents: estimate.Truncate(0).IntPart(),
		EligibleEstimate:      estimate,
		Donations:             donations,
	}, nil
}

// EligibleEstimate returns the exact credit estimate in cents for a total.
func EligibleEstimate(totalCents int64) decimal.Decimal {
	total := decimal.NewFromInt(totalCents)
	limit := decimal.NewFromInt(LowBracketLimitCents)
	if totalCents <= LowBracketLimitCents {
		return total.Mul(lowBracketRate)
	}
	return limit.Mul(lowBracketRate).Add(total.Sub(limit).Mul(highBracketRate))
}
