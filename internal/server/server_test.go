package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/smallbiznis/donara/internal/observability"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"github.com/smallbiznis/donara/internal/ratelimit"
	"github.com/smallbiznis/donara/internal/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAdminToken = "s3cret"
	testLedgerID   = "6f1c1c9e-4f43-4c8f-9a55-0f7a4c2c7d11"
)

type mockDonations struct {
	mock.Mock
}

func (m *mockDonations) ResolveOrCreate(ctx context.Context, ids donationdomain.Identifiers) (donationdomain.Resolution, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(donationdomain.Resolution), args.Error(1)
}

func (m *mockDonations) ResolveRaw(ctx context.Context, raws ...string) (donationdomain.Resolution, error) {
	args := m.Called(ctx, raws)
	return args.Get(0).(donationdomain.Resolution), args.Error(1)
}

func (m *mockDonations) ResendReceipt(ctx context.Context, raw string) (donationdomain.Resolution, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(donationdomain.Resolution), args.Error(1)
}

func (m *mockDonations) CreateManual(ctx context.Context, input donationdomain.ManualDonationInput) (donationdomain.Donation, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(donationdomain.Donation), args.Error(1)
}

func (m *mockDonations) HandleWebhook(ctx context.Context, payload []byte, signature string) (*donationdomain.Resolution, error) {
	args := m.Called(ctx, payload, signature)
	res, _ := args.Get(0).(*donationdomain.Resolution)
	return res, args.Error(1)
}

func (m *mockDonations) Fetch(ctx context.Context, ids donationdomain.Identifiers) (donationdomain.Donation, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(donationdomain.Donation), args.Error(1)
}

func (m *mockDonations) ListForDonor(ctx context.Context, email string) ([]donationdomain.Donation, error) {
	args := m.Called(ctx, email)
	donations, _ := args.Get(0).([]donationdomain.Donation)
	return donations, args.Error(1)
}

func (m *mockDonations) List(ctx context.Context, req donationdomain.ListDonationsRequest) (donationdomain.ListDonationsResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(donationdomain.ListDonationsResponse), args.Error(1)
}

func (m *mockDonations) UpdateDistributionStatus(ctx context.Context, id string, status donationdomain.DistributionStatus) (donationdomain.Donation, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(donationdomain.Donation), args.Error(1)
}

func newTestServer(t *testing.T, adminToken string) (*Server, *mockDonations) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	donations := &mockDonations{}
	statements := statement.NewService(statement.Params{
		Log:       zap.NewNop(),
		Donations: donations,
		PDF:       pdf.New(),
		Receipt:   config.NewStaticReceiptConfigHolder(config.DefaultReceiptConfig()),
		Clock:     clock.NewFakeClock(time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)),
	})

	srv := NewServer(ServerParams{
		Gin:          NewEngine(observability.Config{}, nil),
		Cfg:          config.Config{AdminToken: adminToken},
		Log:          zap.NewNop(),
		DonationSvc:  donations,
		StatementSvc: statements,
	})
	return srv, donations
}

func sampleDonation() donationdomain.Donation {
	return donationdomain.Donation{
		Identifiers: donationdomain.Identifiers{
			LedgerID: testLedgerID,
			ChargeID: "ch_1",
		},
		Donor: donationdomain.Donor{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		},
		Causes:             []donationdomain.CauseAllocation{{Label: "Clean water"}},
		Currency:           "cad",
		AmountDonatedCents: 2500,
		DonatedAt:          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DistributionStatus: donationdomain.DistributionProcessing,
		Source:             donationdomain.SourceGateway,
	}
}

func doRequest(srv *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func TestResolveDonationStatusReflectsOutcome(t *testing.T) {
	srv, donations := newTestServer(t, "")
	donations.On("ResolveRaw", mock.Anything, []string{"ch_1"}).
		Return(donationdomain.Resolution{Donation: sampleDonation()}, nil).Once()
	donations.On("ResolveRaw", mock.Anything, []string{"pi_1"}).
		Return(donationdomain.Resolution{Donation: sampleDonation(), AlreadyExisted: true}, nil).Once()

	rec := doRequest(srv, http.MethodPost, "/api/donations/resolve", []byte(`{"identifiers":[" ch_1 ",""]}`), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data donationdomain.Resolution `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testLedgerID, body.Data.Donation.ID())
	assert.False(t, body.Data.AlreadyExisted)

	rec = doRequest(srv, http.MethodPost, "/api/donations/resolve", []byte(`{"identifiers":["pi_1"]}`), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	donations.AssertExpectations(t)
}

func TestResolveDonationRequiresIdentifiers(t *testing.T) {
	srv, donations := newTestServer(t, "")

	rec := doRequest(srv, http.MethodPost, "/api/donations/resolve", []byte(`{"identifiers":[]}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "missing_identifier", payload.Errors[0].Code)

	rec = doRequest(srv, http.MethodPost, "/api/donations/resolve", []byte(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	donations.AssertNotCalled(t, "ResolveRaw", mock.Anything, mock.Anything)
}

func TestResolveDonationErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "conflict",
			err:        &donationdomain.ConflictError{Field: "charge", Values: []string{"ch_1", "ch_2"}},
			wantStatus: http.StatusBadRequest,
			wantType:   "conflicting_identifiers",
		},
		{
			name:       "not found",
			err:        fmt.Errorf("lookup: %w", donationdomain.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name:       "gateway inconsistency",
			err:        &donationdomain.IncompleteGatewayDataError{Field: "balance_transaction"},
			wantStatus: http.StatusBadGateway,
			wantType:   "gateway_data_inconsistent",
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, donations := newTestServer(t, "")
			donations.On("ResolveRaw", mock.Anything, []string{"ch_1"}).
				Return(donationdomain.Resolution{}, tc.err).Once()

			rec := doRequest(srv, http.MethodPost, "/api/donations/resolve", []byte(`{"identifiers":["ch_1"]}`), nil)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantType, decodeError(t, rec).Type)
		})
	}
}

func TestGetDonationClassifiesPathIdentifier(t *testing.T) {
	srv, donations := newTestServer(t, "")
	donations.On("Fetch", mock.Anything, donationdomain.Identifiers{PaymentIntentID: "pi_9"}).
		Return(sampleDonation(), nil).Once()

	rec := doRequest(srv, http.MethodGet, "/api/donations/pi_9", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/donations/not-an-id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_identifier", decodeError(t, rec).Errors[0].Code)
	donations.AssertExpectations(t)
}

func TestResendReceiptWithoutLimiter(t *testing.T) {
	srv, donations := newTestServer(t, "")
	donations.On("ResendReceipt", mock.Anything, "ch_1").
		Return(donationdomain.Resolution{Donation: sampleDonation(), AlreadyExisted: true}, nil).Once()

	rec := doRequest(srv, http.MethodPost, "/api/donations/ch_1/resend", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	donations.AssertExpectations(t)
}

func TestStripeWebhook(t *testing.T) {
	srv, donations := newTestServer(t, "")
	payload := []byte(`{"id":"evt_1"}`)

	rec := doRequest(srv, http.MethodPost, "/webhooks/stripe", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_signature", decodeError(t, rec).Errors[0].Code)

	donations.On("HandleWebhook", mock.Anything, payload, "bad").
		Return(nil, gatewaydomain.ErrInvalidSignature).Once()
	rec = doRequest(srv, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, rec).Errors[0].Code)

	donations.On("HandleWebhook", mock.Anything, payload, "ignored").
		Return(nil, nil).Once()
	rec = doRequest(srv, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "ignored"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"ignored":true}`, rec.Body.String())

	res := &donationdomain.Resolution{Donation: sampleDonation()}
	donations.On("HandleWebhook", mock.Anything, payload, "good").
		Return(res, nil).Once()
	rec = doRequest(srv, http.MethodPost, "/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "good"})
	assert.Equal(t, http.StatusOK, rec.Code)
	donations.AssertExpectations(t)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)

	rec := doRequest(srv, http.MethodGet, "/admin/donations", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/donations", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	live := true
	donations.On("List", mock.Anything, donationdomain.ListDonationsRequest{
		PageToken: "abc",
		PageSize:  10,
		Email:     "ada@example.com",
		Livemode:  &live,
		Source:    donationdomain.SourceManual,
	}).Return(donationdomain.ListDonationsResponse{Donations: []donationdomain.Donation{sampleDonation()}}, nil).Once()

	rec = doRequest(srv, http.MethodGet, "/admin/donations?page_token=abc&page_size=10&email=ada@example.com&livemode=true&source=manual", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/donations?source=crypto", nil, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	donations.AssertExpectations(t)
}

func TestAdminRoutesHiddenWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/admin/donations", nil, map[string]string{"Authorization": "Bearer anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateManualDonation(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)

	body := []byte(`{
		"donor": {"first_name": "Grace", "last_name": "Hopper", "email": "grace@example.com"},
		"causes": [{"label": "Education", "one_way": true}],
		"amount_cents": 10000,
		"currency": "cad",
		"donated_at": "2024-02-10",
		"payment_method": {"type": "Cheque"}
	}`)

	created := sampleDonation()
	created.Source = donationdomain.SourceManual
	donations.On("CreateManual", mock.Anything, mock.MatchedBy(func(in donationdomain.ManualDonationInput) bool {
		return in.AmountCents == 10000 &&
			in.Donor.Email == "grace@example.com" &&
			in.PaymentMethod != nil && in.PaymentMethod.Type == donationdomain.PaymentMethodCheque &&
			in.DonatedAt.Equal(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)) &&
			len(in.Causes) == 1 && in.Causes[0].OneWay
	})).Return(created, nil).Once()

	rec := doRequest(srv, http.MethodPost, "/admin/donations", body, adminHeaders())
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/admin/donations", []byte(`{"amount_cents":1000,"payment_method":{"type":"bitcoin"}}`), adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_payment_method", decodeError(t, rec).Errors[0].Code)

	rec = doRequest(srv, http.MethodPost, "/admin/donations", []byte(`{"donated_at":"yesterday"}`), adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	donations.AssertExpectations(t)
}

func TestCreateManualDonationValidationError(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)
	donations.On("CreateManual", mock.Anything, mock.Anything).
		Return(donationdomain.Donation{}, &donationdomain.ValidationError{
			Field:  "amount",
			Reason: "below minimum",
			Cause:  donationdomain.ErrAmountBelowMinimum,
		}).Once()

	rec := doRequest(srv, http.MethodPost, "/admin/donations", []byte(`{"amount_cents":100}`), adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "amount", payload.Errors[0].Field)
	assert.Equal(t, "invalid_amount", payload.Errors[0].Code)
}

func TestUpdateDistributionStatus(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)
	updated := sampleDonation()
	updated.DistributionStatus = donationdomain.DistributionFullyDistributed
	donations.On("UpdateDistributionStatus", mock.Anything, testLedgerID, donationdomain.DistributionFullyDistributed).
		Return(updated, nil).Once()
	donations.On("UpdateDistributionStatus", mock.Anything, testLedgerID, donationdomain.DistributionStatus("lost")).
		Return(donationdomain.Donation{}, donationdomain.ErrInvalidDistributionStatus).Once()

	path := "/admin/donations/" + testLedgerID + "/distribution"
	rec := doRequest(srv, http.MethodPatch, path, []byte(`{"status":"Fully_Distributed"}`), adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPatch, path, []byte(`{"status":"lost"}`), adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_distribution_status", decodeError(t, rec).Errors[0].Code)
	donations.AssertExpectations(t)
}

func TestDonorStatement(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)
	donations.On("ListForDonor", mock.Anything, "ada@example.com").
		Return([]donationdomain.Donation{sampleDonation()}, nil)
	donations.On("ListForDonor", mock.Anything, "nobody@example.com").
		Return([]donationdomain.Donation{}, nil)

	rec := doRequest(srv, http.MethodGet, "/api/donors/ada@example.com/statement", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data statement.SummaryStatement `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(2500), body.Data.TotalDonatedCents)
	assert.Equal(t, int64(501), body.Data.EligibleEstimateCents)
	assert.Equal(t, "CAD", body.Data.Currency)

	rec = doRequest(srv, http.MethodGet, "/api/donors/ada@example.com/statement.pdf", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypePDF, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = doRequest(srv, http.MethodGet, "/api/donors/nobody@example.com/statement", nil, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_donation_set", decodeError(t, rec).Errors[0].Code)
}

func TestDonorRoutesRequireAdminToken(t *testing.T) {
	paths := []string{
		"/api/donors/ada@example.com/donations",
		"/api/donors/ada@example.com/statement",
		"/api/donors/ada@example.com/statement.pdf",
	}

	srv, donations := newTestServer(t, testAdminToken)
	for _, path := range paths {
		rec := doRequest(srv, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = doRequest(srv, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	hidden, _ := newTestServer(t, "")
	for _, path := range paths {
		rec := doRequest(hidden, http.MethodGet, path, nil, adminHeaders())
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	donations.AssertNotCalled(t, "ListForDonor", mock.Anything, mock.Anything)
}

func TestReceiptPDFRequiresLedgerID(t *testing.T) {
	srv, donations := newTestServer(t, testAdminToken)
	donations.On("Fetch", mock.Anything, donationdomain.Identifiers{LedgerID: testLedgerID}).
		Return(sampleDonation(), nil).Once()

	rec := doRequest(srv, http.MethodGet, "/admin/donations/"+testLedgerID+"/receipt.pdf", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt-"+testLedgerID+".pdf")

	rec = doRequest(srv, http.MethodGet, "/admin/donations/ch_1/receipt.pdf", nil, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	donations.AssertExpectations(t)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doRequest(srv, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestMapErrorRateLimiting(t *testing.T) {
	status, payload := mapError(ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", payload.Type)

	status, payload = mapError(ratelimit.ErrResendInProgress)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "resend_in_progress", payload.Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(donationdomain.ErrInvalidEmail)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_email", code)

	errType, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", errType)
	assert.Equal(t, "internal_error", code)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(nil))
	assert.Equal(t, "1", retryAfterSeconds(&ratelimit.RateLimitResult{}))
	assert.Equal(t, "20", retryAfterSeconds(&ratelimit.RateLimitResult{RetryAfter: 20 * time.Second}))
	assert.Equal(t, "3", retryAfterSeconds(&ratelimit.RateLimitResult{RetryAfter: 2100 * time.Millisecond}))
}

func TestCORSPreflightForPortalOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewEngine(observability.Config{}, nil, "https://donate.example.org")

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://donate.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://donate.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
