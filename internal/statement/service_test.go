package statement

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDonations struct {
	mock.Mock
}

func (m *mockDonations) ResolveOrCreate(ctx context.Context, ids domain.Identifiers) (domain.Resolution, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(domain.Resolution), args.Error(1)
}

func (m *mockDonations) ResolveRaw(ctx context.Context, raws ...string) (domain.Resolution, error) {
	args := m.Called(ctx, raws)
	return args.Get(0).(domain.Resolution), args.Error(1)
}

func (m *mockDonations) ResendReceipt(ctx context.Context, raw string) (domain.Resolution, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(domain.Resolution), args.Error(1)
}

func (m *mockDonations) CreateManual(ctx context.Context, input domain.ManualDonationInput) (domain.Donation, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(domain.Donation), args.Error(1)
}

func (m *mockDonations) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Resolution, error) {
	args := m.Called(ctx, payload, signature)
	res, _ := args.Get(0).(*domain.Resolution)
	return res, args.Error(1)
}

func (m *mockDonations) Fetch(ctx context.Context, ids domain.Identifiers) (domain.Donation, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(domain.Donation), args.Error(1)
}

func (m *mockDonations) ListForDonor(ctx context.Context, email string) ([]domain.Donation, error) {
	args := m.Called(ctx, email)
	donations, _ := args.Get(0).([]domain.Donation)
	return donations, args.Error(1)
}

func (m *mockDonations) List(ctx context.Context, req domain.ListDonationsRequest) (domain.ListDonationsResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ListDonationsResponse), args.Error(1)
}

func (m *mockDonations) UpdateDistributionStatus(ctx context.Context, id string, status domain.DistributionStatus) (domain.Donation, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(domain.Donation), args.Error(1)
}

const ledgerID = "6f1c1d3a-8b7e-4c55-9a2f-0e1d2c3b4a59"

func newService(donations domain.Service) *Service {
	return NewService(Params{
		Log:       zap.NewNop(),
		Donations: donations,
		PDF:       pdf.New(),
		Receipt:   config.NewStaticReceiptConfigHolder(config.DefaultReceiptConfig()),
		Clock:     clock.NewFakeClock(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)),
	})
}

func storedDonation() domain.Donation {
	d := donation("ada@example.com", 15000)
	d.Identifiers.LedgerID = ledgerID
	d.DonatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d.Causes = []domain.CauseAllocation{{Label: "Water", Region: "East Africa"}}
	d.DistributionStatus = domain.DistributionProcessing
	return d
}

func TestForDonor(t *testing.T) {
	donations := &mockDonations{}
	donations.On("ListForDonor", mock.Anything, "ada@example.com").Return([]domain.Donation{storedDonation()}, nil)

	s, err := newService(donations).ForDonor(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), s.TotalDonatedCents)
	assert.Equal(t, int64(3007), s.EligibleEstimateCents)
	donations.AssertExpectations(t)
}

func TestForDonorWithoutDonations(t *testing.T) {
	donations := &mockDonations{}
	donations.On("ListForDonor", mock.Anything, "nobody@example.com").Return([]domain.Donation{}, nil)

	_, err := newService(donations).ForDonor(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrEmptyDonationSet)
}

func TestRenderPDFAndReceipt(t *testing.T) {
	donations := &mockDonations{}
	donations.On("ListForDonor", mock.Anything, "ada@example.com").Return([]domain.Donation{storedDonation()}, nil)
	donations.On("Fetch", mock.Anything, domain.Identifiers{LedgerID: ledgerID}).Return(storedDonation(), nil)
	svc := newService(donations)

	r, err := svc.RenderPDF(context.Background(), "ada@example.com")
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF")))

	r, err = svc.RenderReceipt(context.Background(), ledgerID)
	require.NoError(t, err)
	b, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF")))
}

func TestRenderReceiptRequiresLedgerID(t *testing.T) {
	donations := &mockDonations{}
	_, err := newService(donations).RenderReceipt(context.Background(), "ch_1")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
	donations.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestCauseLabelsAndAddress(t *testing.T) {
	assert.Equal(t, []string{"Water (East Africa)", "Food"}, causeLabels([]domain.CauseAllocation{
		{Label: "Water", Region: "East Africa"},
		{Label: "Food"},
	}))
	assert.Equal(t, "1 Main St, Toronto, ON", formatAddress(domain.Address{Line: "1 Main St", City: "Toronto", State: "ON"}))
}
