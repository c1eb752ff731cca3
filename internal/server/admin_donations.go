package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/pkg/db/pagination"
)

type manualDonorRequest struct {
	ID        string                 `json:"donor_id"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Email     string                 `json:"email"`
	Phone     string                 `json:"phone_number"`
	Address   donationdomain.Address `json:"address"`
}

type manualPaymentMethodRequest struct {
	Type         string `json:"type"`
	CardBrand    string `json:"card_brand"`
	CardLastFour string `json:"card_last_four"`
}

type createManualDonationRequest struct {
	Donor            manualDonorRequest               `json:"donor"`
	Causes           []donationdomain.CauseAllocation `json:"causes"`
	AmountCents      int64                            `json:"amount_cents"`
	FeesCoveredCents int64                            `json:"fees_covered_cents"`
	FeesChargedCents int64                            `json:"fees_charged_cents"`
	Currency         string                           `json:"currency"`
	DonatedAt        string                           `json:"donated_at"`
	Livemode         bool                             `json:"livemode"`
	PaymentMethod    *manualPaymentMethodRequest      `json:"payment_method"`
}

func (s *Server) CreateManualDonation(c *gin.Context) {
	var req createManualDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	donatedAt, err := parseOptionalTime(req.DonatedAt)
	if err != nil {
		AbortWithError(c, newValidationError("donated_at", "invalid_donated_at", "invalid donated_at"))
		return
	}

	input := donationdomain.ManualDonationInput{
		Donor: donationdomain.Donor{
			ID:        strings.TrimSpace(req.Donor.ID),
			FirstName: req.Donor.FirstName,
			LastName:  req.Donor.LastName,
			Email:     req.Donor.Email,
			Phone:     req.Donor.Phone,
			Address:   req.Donor.Address,
		},
		Causes:           req.Causes,
		AmountCents:      req.AmountCents,
		FeesCoveredCents: req.FeesCoveredCents,
		FeesChargedCents: req.FeesChargedCents,
		Currency:         req.Currency,
		Live:             req.Livemode,
	}
	if donatedAt != nil {
		input.DonatedAt = *donatedAt
	}
	if req.PaymentMethod != nil {
		methodType := donationdomain.PaymentMethodType(strings.ToLower(strings.TrimSpace(req.PaymentMethod.Type)))
		if !isManualPaymentMethod(methodType) {
			AbortWithError(c, newValidationError("payment_method.type", "invalid_payment_method", "invalid payment method type"))
			return
		}
		input.PaymentMethod = &donationdomain.PaymentMethod{
			Type:         methodType,
			CardBrand:    strings.TrimSpace(req.PaymentMethod.CardBrand),
			CardLastFour: strings.TrimSpace(req.PaymentMethod.CardLastFour),
		}
	}

	resp, err := s.donationSvc.CreateManual(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, resp.ID())
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDonations(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Email    string `form:"email"`
		Livemode string `form:"livemode"`
		Source   string `form:"source"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	livemode, err := parseOptionalBool(query.Livemode)
	if err != nil {
		AbortWithError(c, newValidationError("livemode", "invalid_livemode", "invalid livemode"))
		return
	}

	source := donationdomain.Source(strings.ToLower(strings.TrimSpace(query.Source)))
	switch source {
	case "", donationdomain.SourceGateway, donationdomain.SourceManual:
	default:
		AbortWithError(c, newValidationError("source", "invalid_source", "invalid source"))
		return
	}

	resp, err := s.donationSvc.List(c.Request.Context(), donationdomain.ListDonationsRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
		Email:     strings.TrimSpace(query.Email),
		Livemode:  livemode,
		Source:    source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateDistributionRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateDistributionStatus(c *gin.Context) {
	var req updateDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	status := donationdomain.DistributionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	resp, err := s.donationSvc.UpdateDistributionStatus(c.Request.Context(), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextDonationIDKey, resp.ID())
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isManualPaymentMethod(t donationdomain.PaymentMethodType) bool {
	switch t {
	case donationdomain.PaymentMethodCash,
		donationdomain.PaymentMethodWire,
		donationdomain.PaymentMethodCheque,
		donationdomain.PaymentMethodCard:
		return true
	default:
		return false
	}
}
