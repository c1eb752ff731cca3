// Package identifier classifies raw donation references into typed identifiers.
package identifier

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/donation/domain"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindLedgerID
	KindCharge
	KindPaymentIntent
	KindBalanceTransaction
	KindPaymentMethod
	KindCustomer
)

func (k Kind) String() string {
	switch k {
	case KindLedgerID:
		return "ledger_id"
	case KindCharge:
		return "charge_id"
	case KindPaymentIntent:
		return "payment_intent_id"
	case KindBalanceTransaction:
		return "balance_transaction_id"
	case KindPaymentMethod:
		return "payment_method_id"
	case KindCustomer:
		return "customer_id"
	default:
		return "unrecognized"
	}
}

// Classified is a raw string tagged with its identifier kind.
type Classified struct {
	Kind  Kind
	Value string
}

// prefix rules are evaluated in order; the first match wins.
var prefixRules = []struct {
	prefix string
	kind   Kind
}{
	{"ch_", KindCharge},
	{"pi_", KindPaymentIntent},
	{"bt_", KindBalanceTransaction},
	{"pm_", KindPaymentMethod},
	{"cus_", KindCustomer},
}

// Classify tags raw by prefix first, then as a ledger UUID v4. Gateway
// prefixes win even when the suffix looks like a UUID.
func Classify(raw string) Classified {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Classified{Kind: KindUnrecognized}
	}
	for _, rule := range prefixRules {
		if strings.HasPrefix(value, rule.prefix) {
			return Classified{Kind: rule.kind, Value: value}
		}
	}
	parsed, err := uuid.Parse(value)
	if err == nil && parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122 {
		return Classified{Kind: KindLedgerID, Value: parsed.String()}
	}
	return Classified{Kind: KindUnrecognized, Value: value}
}

// Assign places a classified value into the bag. Setting a field twice with
// different values is a conflict.
func Assign(ids *domain.Identifiers, c Classified) error {
	field := fieldFor(ids, c.Kind)
	if field == nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidIdentifier, c.Value)
	}
	if *field != "" && *field != c.Value {
		return &domain.ConflictError{Field: c.Kind.String(), Values: []string{*field, c.Value}}
	}
	*field = c.Value
	return nil
}

// Merge classifies each raw string into one identifier bag. Unrecognized
// strings are skipped; the bag must end up with at least one field set.
func Merge(raws ...string) (domain.Identifiers, error) {
	var ids domain.Identifiers
	for _, raw := range raws {
		c := Classify(raw)
		if c.Kind == KindUnrecognized {
			continue
		}
		if err := Assign(&ids, c); err != nil {
			return domain.Identifiers{}, err
		}
	}
	if ids.IsEmpty() {
		return domain.Identifiers{}, fmt.Errorf("%w: no recognizable identifier in %q", domain.ErrInvalidIdentifier, raws)
	}
	return ids, nil
}

// Validate re-classifies every populated field of ids and rejects values
// whose kind does not match the field they were supplied in.
func Validate(ids domain.Identifiers) (domain.Identifiers, error) {
	var out domain.Identifiers
	fields := []struct {
		value string
		kind  Kind
	}{
		{ids.LedgerID, KindLedgerID},
		{ids.ChargeID, KindCharge},
		{ids.PaymentIntentID, KindPaymentIntent},
		{ids.BalanceTransactionID, KindBalanceTransaction},
		{ids.PaymentMethodID, KindPaymentMethod},
		{ids.CustomerID, KindCustomer},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		c := Classify(f.value)
		if c.Kind != f.kind {
			return domain.Identifiers{}, fmt.Errorf("%w: %q is not a %s", domain.ErrInvalidIdentifier, f.value, f.kind)
		}
		if err := Assign(&out, c); err != nil {
			return domain.Identifiers{}, err
		}
	}
	if out.IsEmpty() {
		return domain.Identifiers{}, fmt.Errorf("%w: empty identifier bag", domain.ErrInvalidIdentifier)
	}
	return out, nil
}

func fieldFor(ids *domain.Identifiers, kind Kind) *string {
	switch kind {
	case KindLedgerID:
		return &ids.LedgerID
	case KindCharge:
		return &ids.ChargeID
	case KindPaymentIntent:
		return &ids.PaymentIntentID
	case KindBalanceTransaction:
		return &ids.BalanceTransactionID
	case KindPaymentMethod:
		return &ids.PaymentMethodID
	case KindCustomer:
		return &ids.CustomerID
	default:
		return nil
	}
}
