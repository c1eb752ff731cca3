package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	stripego "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	EventChargeSucceeded        = "charge.succeeded"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// WebhookParser verifies Stripe-Signature headers and extracts the payment
// identifiers of successful payment events.
type WebhookParser struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookParser(cfg config.Config) *WebhookParser {
	tolerance := time.Duration(cfg.Stripe.WebhookTolerance) * time.Second
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookParser{
		secret:    strings.TrimSpace(cfg.Stripe.WebhookSecret),
		tolerance: tolerance,
	}
}

func (p *WebhookParser) Parse(payload []byte, signature string) (gatewaydomain.WebhookEvent, error) {
	if p.secret == "" || strings.TrimSpace(signature) == "" {
		return gatewaydomain.WebhookEvent{}, gatewaydomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return gatewaydomain.WebhookEvent{}, gatewaydomain.ErrInvalidSignature
		}
		return gatewaydomain.WebhookEvent{}, fmt.Errorf("%w: %v", gatewaydomain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return gatewaydomain.WebhookEvent{}, gatewaydomain.ErrInvalidPayload
	}

	out := gatewaydomain.WebhookEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		Livemode: event.Livemode,
	}

	switch out.Type {
	case EventChargeSucceeded:
		var ch stripego.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil || ch.ID == "" {
			return gatewaydomain.WebhookEvent{}, gatewaydomain.ErrInvalidPayload
		}
		out.Identifiers = identifiersFromCharge(toCharge(&ch))
	case EventPaymentIntentSucceeded:
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			return gatewaydomain.WebhookEvent{}, gatewaydomain.ErrInvalidPayload
		}
		out.Identifiers = donationdomain.Identifiers{PaymentIntentID: pi.ID}
		if pi.LatestCharge != nil {
			out.Identifiers.ChargeID = pi.LatestCharge.ID
		}
		if pi.Customer != nil {
			out.Identifiers.CustomerID = pi.Customer.ID
		}
	default:
		return out, gatewaydomain.ErrEventIgnored
	}

	return out, nil
}

func identifiersFromCharge(ch *gatewaydomain.Charge) donationdomain.Identifiers {
	return donationdomain.Identifiers{
		ChargeID:             ch.ID,
		PaymentIntentID:      ch.PaymentIntentID,
		BalanceTransactionID: ch.BalanceTransactionID,
		CustomerID:           ch.CustomerID,
		PaymentMethodID:      ch.PaymentMethodID,
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrTooOld)
}
