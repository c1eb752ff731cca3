package statement

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/identifier"
	"github.com/smallbiznis/donara/internal/notification"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dateLayout = "January 2, 2006"

var Module = fx.Module("statement",
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Donations domain.Service
	PDF       pdf.Provider
	Receipt   *config.ReceiptConfigHolder
	Clock     clock.Clock
}

type Service struct {
	log       *zap.Logger
	donations domain.Service
	pdf       pdf.Provider
	receipt   *config.ReceiptConfigHolder
	clock     clock.Clock
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		log:       p.Log.Named("statement.service"),
		donations: p.Donations,
		pdf:       p.PDF,
		receipt:   p.Receipt,
		clock:     c,
	}
}

// ForDonor summarizes every ledger donation recorded for email.
func (s *Service) ForDonor(ctx context.Context, email string) (SummaryStatement, error) {
	donations, err := s.donations.ListForDonor(ctx, email)
	if err != nil {
		return SummaryStatement{}, err
	}
	return Summarize(donations)
}

func (s *Service) RenderPDF(ctx context.Context, email string) (io.Reader, error) {
	summary, err := s.ForDonor(ctx, email)
	if err != nil {
		return nil, err
	}

	lines := make([]pdf.StatementLine, 0, len(summary.Donations))
	for _, d := range summary.Donations {
		lines = append(lines, pdf.StatementLine{
			DonatedOn:     d.DonatedAt.Format(dateLayout),
			ReceiptNumber: d.ID(),
			Causes:        strings.Join(causeLabels(d.Causes), ", "),
			Amount:        notification.FormatCents(d.AmountDonatedCents),
		})
	}

	return s.pdf.GenerateStatement(ctx, pdf.StatementData{
		Issuer:           s.issuer(),
		IssuedOn:         s.clock.Now().Format(dateLayout),
		DonorName:        summary.Donor.FullName(),
		DonorEmail:       summary.DonorEmail,
		Currency:         summary.Currency,
		Lines:            lines,
		Total:            notification.FormatCents(summary.TotalDonatedCents),
		EligibleEstimate: notification.FormatCents(summary.EligibleEstimateCents),
	})
}

// RenderReceipt prints the receipt of a donation already in the ledger.
func (s *Service) RenderReceipt(ctx context.Context, donationID string) (io.Reader, error) {
	c := identifier.Classify(donationID)
	if c.Kind != identifier.KindLedgerID {
		return nil, fmt.Errorf("%w: %q is not a donation id", domain.ErrInvalidIdentifier, donationID)
	}

	d, err := s.donations.Fetch(ctx, domain.Identifiers{LedgerID: c.Value})
	if err != nil {
		return nil, err
	}

	s.log.Debug("rendering receipt", zap.String("donation_id", d.ID()))
	return s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		Issuer:         s.issuer(),
		ReceiptNumber:  d.ID(),
		IssuedOn:       s.clock.Now().Format(dateLayout),
		DonatedOn:      d.DonatedAt.Format(dateLayout),
		DonorName:      d.Donor.FullName(),
		DonorEmail:     d.Donor.Email,
		DonorAddress:   formatAddress(d.Donor.Address),
		Amount:         notification.FormatCents(d.AmountDonatedCents),
		FeesCovered:    notification.FormatCents(d.FeesCoveredCents),
		Currency:       d.Currency,
		PaymentSummary: notification.PaymentSummary(d.PaymentMethod),
		Causes:         causeLabels(d.Causes),
		Status:         strings.ReplaceAll(string(d.DistributionStatus), "_", " "),
	})
}

func (s *Service) issuer() pdf.Issuer {
	cfg := s.receipt.Get()
	return pdf.Issuer{
		Name:               cfg.OrganizationName,
		AddressLines:       cfg.AddressLines,
		Email:              cfg.SupportEmail,
		RegistrationNumber: cfg.RegistrationNumber,
		Signatory:          cfg.Signatory,
	}
}

func causeLabels(causes []domain.CauseAllocation) []string {
	out := make([]string, 0, len(causes))
	for _, c := range causes {
		label := c.Label
		if c.Region != "" {
			label += " (" + c.Region + ")"
		}
		out = append(out, label)
	}
	return out
}

func formatAddress(a domain.Address) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line, a.City, a.State, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
