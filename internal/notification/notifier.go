package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/observability/metrics"
	"github.com/smallbiznis/donara/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Email   email.Provider
	Receipt *config.ReceiptConfigHolder
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// EmailNotifier renders a donor email per notification type and hands it to
// the email provider.
type EmailNotifier struct {
	email   email.Provider
	receipt *config.ReceiptConfigHolder
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) domain.Notifier {
	return &EmailNotifier{
		email:   p.Email,
		receipt: p.Receipt,
		log:     p.Log.Named("notification"),
		metrics: p.Metrics,
	}
}

func (n *EmailNotifier) Send(ctx context.Context, notificationType domain.NotificationType, donation domain.Donation, donor domain.Donor) error {
	to := strings.TrimSpace(donor.Email)
	if to == "" {
		to = strings.TrimSpace(donation.Donor.Email)
	}
	if to == "" {
		n.metrics.RecordNotification(ctx, string(notificationType), false)
		return email.ErrNoRecipient
	}

	data, err := buildTemplateData(notificationType, donation, donor, n.receipt.Get())
	if err != nil {
		return err
	}

	err = n.email.SendTemplate(ctx, []string{to}, string(notificationType), data)
	n.metrics.RecordNotification(ctx, string(notificationType), err == nil)
	if err != nil {
		n.log.Warn("notification failed",
			zap.String("type", string(notificationType)),
			zap.String("donation_id", donation.ID()),
			zap.Error(err),
		)
		return fmt.Errorf("send %s notification: %w", notificationType, err)
	}

	n.log.Info("notification sent",
		zap.String("type", string(notificationType)),
		zap.String("donation_id", donation.ID()),
	)
	return nil
}

type templateData struct {
	subject string

	DonorName          string
	DonationID         string
	Amount             string
	FeesCovered        string
	FeesCoveredCents   int64
	Currency           string
	DonatedOn          string
	Causes             []domain.CauseAllocation
	PaymentSummary     string
	Status             string
	DonationURL        string
	OrganizationName   string
	RegistrationNumber string
	SupportEmail       string
}

func (d templateData) EmailSubject() string { return d.subject }

func buildTemplateData(notificationType domain.NotificationType, donation domain.Donation, donor domain.Donor, receipt config.ReceiptConfig) (templateData, error) {
	var subject string
	switch notificationType {
	case domain.NotificationDonationCreated:
		subject = "We received your donation"
	case domain.NotificationDonationMade:
		subject = "Thank you for your donation."
	default:
		return templateData{}, fmt.Errorf("unknown notification type %q", notificationType)
	}

	name := donor.FullName()
	if name == "" {
		name = donation.Donor.FullName()
	}
	if name == "" {
		name = "friend"
	}

	return templateData{
		subject:            subject,
		DonorName:          name,
		DonationID:         donation.ID(),
		Amount:             FormatCents(donation.AmountDonatedCents),
		FeesCovered:        FormatCents(donation.FeesCoveredCents),
		FeesCoveredCents:   donation.FeesCoveredCents,
		Currency:           strings.ToUpper(donation.Currency),
		DonatedOn:          donation.DonatedAt.Format("January 2, 2006"),
		Causes:             donation.Causes,
		PaymentSummary:     PaymentSummary(donation.PaymentMethod),
		Status:             strings.ReplaceAll(string(donation.DistributionStatus), "_", " "),
		DonationURL:        strings.TrimRight(receipt.PortalURL, "/") + "/donations/" + donation.ID(),
		OrganizationName:   receipt.OrganizationName,
		RegistrationNumber: receipt.RegistrationNumber,
		SupportEmail:       receipt.SupportEmail,
	}, nil
}

// FormatCents renders an amount in cents as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// PaymentSummary describes a payment method the way receipts print it.
func PaymentSummary(pm *domain.PaymentMethod) string {
	if pm == nil {
		return ""
	}
	if pm.Type == domain.PaymentMethodCard && pm.CardLastFour != "" {
		brand := strings.ToUpper(strings.TrimSpace(pm.CardBrand))
		if brand == "" {
			brand = "CARD"
		}
		return fmt.Sprintf("%s ending in %s", brand, pm.CardLastFour)
	}
	return strings.ReplaceAll(string(pm.Type), "_", " ")
}
