package identifier

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPrefixes(t *testing.T) {
	cases := map[string]Kind{
		"ch_3Nabc":           KindCharge,
		"pi_3Nabc":           KindPaymentIntent,
		"bt_1Nabc":           KindBalanceTransaction,
		"pm_1Nabc":           KindPaymentMethod,
		"cus_Oabc":           KindCustomer,
		"  ch_padded  ":      KindCharge,
		"tok_visa":           KindUnrecognized,
		"":                   KindUnrecognized,
		"not-a-uuid":         KindUnrecognized,
		"CH_uppercase":       KindUnrecognized,
		"cs_test_checkout_1": KindUnrecognized,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Classify(raw).Kind, raw)
	}
	assert.Equal(t, "ch_padded", Classify("  ch_padded  ").Value)
}

func TestClassifyLedgerIDOnlyAcceptsUUIDv4(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := uuid.New()
		got := Classify(id.String())
		assert.Equal(t, KindLedgerID, got.Kind)
		assert.Equal(t, id.String(), got.Value)
	}

	upper := Classify("3F2504E0-4F89-41D3-9A0C-0305E82C3301")
	assert.Equal(t, KindLedgerID, upper.Kind)
	assert.Equal(t, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", upper.Value)

	v1 := uuid.Must(uuid.NewUUID())
	assert.Equal(t, KindUnrecognized, Classify(v1.String()).Kind)
	assert.Equal(t, KindUnrecognized, Classify(uuid.Nil.String()).Kind)
}

func TestClassifyPrefixWinsOverUUIDSuffix(t *testing.T) {
	suffix := uuid.NewString()
	for prefix, want := range map[string]Kind{
		"ch_":  KindCharge,
		"pi_":  KindPaymentIntent,
		"bt_":  KindBalanceTransaction,
		"pm_":  KindPaymentMethod,
		"cus_": KindCustomer,
	} {
		assert.Equal(t, want, Classify(prefix+suffix).Kind, prefix)
	}
}

func TestMerge(t *testing.T) {
	ledgerID := uuid.NewString()
	ids, err := Merge("ch_1", "pi_1", ledgerID, "garbage", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, domain.Identifiers{
		LedgerID:        ledgerID,
		ChargeID:        "ch_1",
		PaymentIntentID: "pi_1",
		CustomerID:      "cus_1",
	}, ids)

	ids, err = Merge("ch_1", " ch_1 ")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", ids.ChargeID)
}

func TestMergeRejectsConflictsAndEmptyInput(t *testing.T) {
	_, err := Merge("ch_1", "ch_2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflictingIdentifiers))
	assert.True(t, errors.Is(err, domain.ErrInvalidIdentifier))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "charge_id", conflict.Field)

	_, err = Merge("nope", "")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = Merge()
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestValidate(t *testing.T) {
	ids, err := Validate(domain.Identifiers{ChargeID: " ch_1 ", CustomerID: "cus_9"})
	require.NoError(t, err)
	assert.Equal(t, domain.Identifiers{ChargeID: "ch_1", CustomerID: "cus_9"}, ids)

	_, err = Validate(domain.Identifiers{ChargeID: "pi_1"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = Validate(domain.Identifiers{LedgerID: "12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = Validate(domain.Identifiers{})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
	assert.NotErrorIs(t, err, domain.ErrMissingIdentifier)
	assert.True(t, domain.IsCallerError(err))
}
