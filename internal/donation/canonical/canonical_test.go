package canonical

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/donation/domain"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedID = uuid.MustParse("6f1c1d3a-8b7e-4c55-9a2f-0e1d2c3b4a59")

func fixedIDGen() uuid.UUID { return fixedID }

func sampleEvent() gatewaydomain.PaymentEvent {
	return gatewaydomain.PaymentEvent{
		Identifiers: domain.Identifiers{
			ChargeID:             "ch_abc123",
			PaymentIntentID:      "pi_abc123",
			BalanceTransactionID: "txn_abc123",
			CustomerID:           "cus_abc123",
			PaymentMethodID:      "pm_abc123",
		},
		Charge: gatewaydomain.Charge{
			ID:                   "ch_abc123",
			PaymentIntentID:      "pi_abc123",
			BalanceTransactionID: "txn_abc123",
			CustomerID:           "cus_abc123",
			PaymentMethodID:      "pm_abc123",
			AmountCaptured:       15000,
			Currency:             "CAD",
			Created:              1700000000,
			Livemode:             true,
			Metadata: map[string]string{
				MetadataFeesCovered: "450",
				MetadataCauses:      `[{"one_way":true,"label":"Water wells","region":"SO"},{"one_way":false,"label":"Orphans"}]`,
			},
		},
		BalanceTransaction: gatewaydomain.BalanceTransaction{ID: "txn_abc123", Fee: 465},
		Customer: gatewaydomain.Customer{
			ID:    "cus_abc123",
			Name:  "Mary Anne Smith",
			Email: " Mary@Example.com ",
			Phone: "+15550100",
			Address: gatewaydomain.Address{
				Line1:      "1 Main St",
				City:       "Toronto",
				State:      "ON",
				PostalCode: "M5V 1A1",
				Country:    "CA",
			},
			Metadata: map[string]string{CustomerMetadataUserID: "user-42"},
		},
		PaymentMethod: gatewaydomain.PaymentMethod{
			ID:           "pm_abc123",
			Type:         "card",
			CardBrand:    "visa",
			CardLast4:    "4242",
			CardExpMonth: 4,
			CardExpYear:  2030,
		},
	}
}

func TestFromGatewayEvent(t *testing.T) {
	d, err := FromGatewayEvent(sampleEvent(), fixedIDGen)
	require.NoError(t, err)

	assert.Equal(t, fixedID.String(), d.ID())
	assert.Equal(t, "ch_abc123", d.Identifiers.ChargeID)
	assert.Equal(t, "Mary", d.Donor.FirstName)
	assert.Equal(t, "Anne Smith", d.Donor.LastName)
	assert.Equal(t, "mary@example.com", d.Donor.Email)
	assert.Equal(t, "user-42", d.Donor.ID)
	assert.Equal(t, []string{"cus_abc123"}, d.Donor.GatewayCustomerIDs)
	assert.Equal(t, "1 Main St", d.Donor.Address.Line)
	assert.Equal(t, int64(15000), d.AmountDonatedCents)
	assert.Equal(t, int64(450), d.FeesCoveredCents)
	assert.Equal(t, int64(465), d.FeesChargedCents)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), d.DonatedAt)
	assert.True(t, d.Live)
	assert.Equal(t, "cad", d.Currency)
	assert.Equal(t, domain.DistributionProcessing, d.DistributionStatus)
	assert.Equal(t, domain.SourceGateway, d.Source)
	assert.Empty(t, d.Proofs)
	require.Len(t, d.Causes, 2)
	assert.Equal(t, domain.CauseAllocation{Label: "Water wells", OneWay: true, Region: "SO"}, d.Causes[0])
	require.NotNil(t, d.PaymentMethod)
	assert.Equal(t, "4242", d.PaymentMethod.CardLastFour)
}

func TestFromGatewayEventIsDeterministic(t *testing.T) {
	event := sampleEvent()
	first, err := FromGatewayEvent(event, uuid.New)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := FromGatewayEvent(event, uuid.New)
		require.NoError(t, err)
		assert.Equal(t, first.AmountDonatedCents, again.AmountDonatedCents)
		assert.Equal(t, first.FeesChargedCents, again.FeesChargedCents)
		assert.Equal(t, first.DonatedAt, again.DonatedAt)
	}
}

func TestFromGatewayEventPrefersMetadataNames(t *testing.T) {
	event := sampleEvent()
	event.Charge.Metadata[MetadataFirstName] = "Ada"
	event.Charge.Metadata[MetadataLastName] = "Lovelace"

	d, err := FromGatewayEvent(event, fixedIDGen)
	require.NoError(t, err)
	assert.Equal(t, "Ada", d.Donor.FirstName)
	assert.Equal(t, "Lovelace", d.Donor.LastName)
}

func TestFromGatewayEventUsesMetadataLedgerID(t *testing.T) {
	event := sampleEvent()
	ledgerID := uuid.NewString()
	event.Charge.Metadata[MetadataIdentifiers] = `{"donation_id":"` + ledgerID + `"}`

	d, err := FromGatewayEvent(event, func() uuid.UUID {
		t.Fatal("id generator must not be called")
		return uuid.Nil
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerID, d.ID())
}

func TestFromGatewayEventDefaults(t *testing.T) {
	event := sampleEvent()
	event.Charge.Metadata = map[string]string{MetadataFeesCovered: "abc"}
	event.Customer.Name = "Cher"

	d, err := FromGatewayEvent(event, fixedIDGen)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.FeesCoveredCents)
	assert.Equal(t, []domain.CauseAllocation{}, d.Causes)
	assert.Equal(t, "Cher", d.Donor.FirstName)
	assert.Equal(t, "", d.Donor.LastName)
}

func TestFromGatewayEventMalformedMetadata(t *testing.T) {
	for _, key := range []string{MetadataCauses, MetadataIdentifiers} {
		event := sampleEvent()
		event.Charge.Metadata[key] = `{not json`

		_, err := FromGatewayEvent(event, fixedIDGen)
		var malformed *domain.MalformedGatewayMetadataError
		require.ErrorAs(t, err, &malformed, key)
		assert.Equal(t, key, malformed.Key)
		assert.Equal(t, "ch_abc123", malformed.ChargeID)
		assert.True(t, domain.IsUpstreamInconsistency(err))
	}

	event := sampleEvent()
	event.Charge.Metadata[MetadataIdentifiers] = `{"donation_id":"not-a-uuid"}`
	_, err := FromGatewayEvent(event, fixedIDGen)
	assert.ErrorIs(t, err, domain.ErrMalformedGatewayMetadata)
}

func TestFromGatewayEventBelowMinimum(t *testing.T) {
	event := sampleEvent()
	event.Charge.AmountCaptured = 499

	_, err := FromGatewayEvent(event, fixedIDGen)
	var incomplete *domain.IncompleteGatewayDataError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "amount_in_cents", incomplete.Field)
	assert.Equal(t, "ch_abc123", incomplete.Identifier)
	assert.True(t, domain.IsUpstreamInconsistency(err))
	assert.False(t, domain.IsCallerError(err))
}

func TestFromGatewayEventMissingEmailIsUpstream(t *testing.T) {
	event := sampleEvent()
	event.Customer.Email = ""

	_, err := FromGatewayEvent(event, fixedIDGen)
	assert.ErrorIs(t, err, domain.ErrIncompleteGatewayData)
	assert.NotErrorIs(t, err, domain.ErrInvalidDonation)
	assert.NotErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestManualRoundTrip(t *testing.T) {
	input := domain.ManualDonationInput{
		Donor: domain.Donor{
			FirstName: "Grace",
			LastName:  "Hopper",
			Email:     "grace@example.com",
			Address:   domain.Address{Line: "2 Side Rd", City: "Ottawa", Country: "CA"},
		},
		Causes:           []domain.CauseAllocation{{Label: "Food", OneWay: false}},
		AmountCents:      12000,
		FeesCoveredCents: 0,
		Currency:         "CAD",
		DonatedAt:        time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("EST", -5*3600)),
		Live:             true,
		PaymentMethod:    &domain.PaymentMethod{Type: domain.PaymentMethodCash},
	}

	d, err := FromManualInput(input, fixedID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, d.Source)
	assert.False(t, d.Identifiers.HasPaymentReference())

	row, err := ToLedgerRow(d)
	require.NoError(t, err)
	assert.Nil(t, row.StripeChargeID)
	assert.Nil(t, row.DonorID)

	back, err := FromLedgerRow(row, nil)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestGatewayRoundTrip(t *testing.T) {
	d, err := FromGatewayEvent(sampleEvent(), fixedIDGen)
	require.NoError(t, err)

	row, err := ToLedgerRow(d)
	require.NoError(t, err)
	back, err := FromLedgerRow(row, nil)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestFromManualInputValidation(t *testing.T) {
	base := domain.ManualDonationInput{
		Donor:       domain.Donor{Email: "a@example.com"},
		AmountCents: 500,
	}

	d, err := FromManualInput(base, fixedID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d.DonatedAt)
	assert.Equal(t, DefaultCurrency, d.Currency)

	low := base
	low.AmountCents = 499
	_, err = FromManualInput(low, fixedID, time.Now())
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)

	noEmail := base
	noEmail.Donor.Email = ""
	_, err = FromManualInput(noEmail, fixedID, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	negative := base
	negative.FeesChargedCents = -1
	_, err = FromManualInput(negative, fixedID, time.Now())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fees_charged_by_stripe", verr.Field)
}

func TestFromLedgerRowDefaultsAndProofs(t *testing.T) {
	chargeID := "ch_legacy"
	msg := "Delivered in March"
	row := domain.DonationRecord{
		ID:              fixedID.String(),
		Email:           "old@example.com",
		AmountInCents:   300,
		NativeCurrency:  "cad",
		DonationCreated: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC),
		StripeChargeID:  &chargeID,
		Source:          string(domain.SourceGateway),
	}
	proofs := []domain.ProofRecord{{
		ID:                     uuid.NewString(),
		DonationID:             row.ID,
		UploadedAt:             time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		MessageToDonor:         &msg,
		AmountDistributedCents: 300,
		AttachmentURLs:         []byte(`["https://cdn.example.com/a.jpg"]`),
	}}

	d, err := FromLedgerRow(row, proofs)
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionProcessing, d.DistributionStatus)
	assert.Equal(t, int64(300), d.AmountDonatedCents)
	assert.Equal(t, []domain.CauseAllocation{}, d.Causes)
	assert.Nil(t, d.PaymentMethod)
	require.Len(t, d.Proofs, 1)
	assert.Equal(t, msg, d.Proofs[0].MessageToDonor)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, d.Proofs[0].AttachmentURLs)
	assert.True(t, d.ProofAvailable())

	bad := "lost"
	row.DistributionStatus = &bad
	_, err = FromLedgerRow(row, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidDistributionStatus)
}
