package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook verifies and resolves a Stripe event. Event types that
// do not describe a payment are acknowledged so Stripe stops retrying them.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	signature := strings.TrimSpace(c.GetHeader(stripeSignatureHeader))
	if signature == "" {
		AbortWithError(c, newValidationError("Stripe-Signature", "missing_signature", "missing webhook signature"))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.donationSvc.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	c.Set(contextDonationIDKey, resp.Donation.ID())
	c.JSON(http.StatusOK, gin.H{"received": true, "data": resp})
}
