package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/donara/internal/config"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newTestParser() *WebhookParser {
	cfg := config.Config{}
	cfg.Stripe.WebhookSecret = testSecret
	cfg.Stripe.WebhookTolerance = 300
	return NewWebhookParser(cfg)
}

func TestParseChargeSucceeded(t *testing.T) {
	payload := mustJSON(t, map[string]any{
		"id":       "evt_1",
		"object":   "event",
		"type":     "charge.succeeded",
		"livemode": false,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "ch_abc123",
				"object":              "charge",
				"amount_captured":     2500,
				"payment_intent":      "pi_abc123",
				"balance_transaction": "txn_abc123",
				"customer":            "cus_abc123",
				"payment_method":      "pm_abc123",
				"metadata":            map[string]any{"first_name": "Ada"},
			},
		},
	})

	event, err := newTestParser().Parse(payload, sign(testSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventChargeSucceeded, event.Type)
	assert.Equal(t, "ch_abc123", event.Identifiers.ChargeID)
	assert.Equal(t, "pi_abc123", event.Identifiers.PaymentIntentID)
	assert.Equal(t, "txn_abc123", event.Identifiers.BalanceTransactionID)
	assert.Equal(t, "cus_abc123", event.Identifiers.CustomerID)
	assert.Equal(t, "pm_abc123", event.Identifiers.PaymentMethodID)
}

func TestParsePaymentIntentSucceeded(t *testing.T) {
	payload := mustJSON(t, map[string]any{
		"id":     "evt_2",
		"object": "event",
		"type":   "payment_intent.succeeded",
		"data": map[string]any{
			"object": map[string]any{
				"id":            "pi_abc123",
				"object":        "payment_intent",
				"latest_charge": "ch_abc123",
				"customer":      "cus_abc123",
			},
		},
	})

	event, err := newTestParser().Parse(payload, sign(testSecret, payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "pi_abc123", event.Identifiers.PaymentIntentID)
	assert.Equal(t, "ch_abc123", event.Identifiers.ChargeID)
	assert.Equal(t, "cus_abc123", event.Identifiers.CustomerID)
}

func TestParseIgnoresOtherEvents(t *testing.T) {
	payload := mustJSON(t, map[string]any{
		"id":     "evt_3",
		"object": "event",
		"type":   "charge.refunded",
		"data":   map[string]any{"object": map[string]any{"id": "ch_1", "object": "charge"}},
	})

	_, err := newTestParser().Parse(payload, sign(testSecret, payload, time.Now()))
	assert.ErrorIs(t, err, gatewaydomain.ErrEventIgnored)
}

func TestParseRejectsBadSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_4","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`)
	parser := newTestParser()

	_, err := parser.Parse(payload, sign("wrong", payload, time.Now()))
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)

	_, err = parser.Parse(payload, "")
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)

	_, err = parser.Parse(payload, sign(testSecret, payload, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)

	_, err = NewWebhookParser(config.Config{}).Parse(payload, sign(testSecret, payload, time.Now()))
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)
}

func sign(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
