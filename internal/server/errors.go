package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/smallbiznis/donara/internal/ratelimit"
	"github.com/smallbiznis/donara/internal/statement"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var donationErr *donationdomain.ValidationError
	if errors.As(err, &donationErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   donationErr.Field,
					Code:    "invalid_" + donationErr.Field,
					Message: donationErr.Reason,
				},
			},
		}
	}

	var conflictErr *donationdomain.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		return http.StatusBadRequest, errorPayload{
			Type:    "conflicting_identifiers",
			Message: conflictErr.Error(),
		}
	case errors.Is(err, donationdomain.ErrConflictingIdentifiers):
		return http.StatusBadRequest, errorPayload{
			Type:    "conflicting_identifiers",
			Message: "identifiers refer to different donations",
		}
	case isValidationError(err):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrResendInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "resend_in_progress",
			Message: "a receipt for this donation is already being sent",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case donationdomain.IsUpstreamInconsistency(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_data_inconsistent",
			Message: "payment gateway returned incomplete data",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reduces an error to the type and code written on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, gatewaydomain.ErrInvalidSignature),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, statement.ErrEmptyDonationSet),
		errors.Is(err, statement.ErrMixedDonor):
		return true
	case donationdomain.IsCallerError(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, donationdomain.ErrNotFound),
		errors.Is(err, gatewaydomain.ErrObjectNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, gatewaydomain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, statement.ErrEmptyDonationSet):
		return "empty_donation_set"
	case errors.Is(err, statement.ErrMixedDonor):
		return "mixed_donor"
	case errors.Is(err, donationdomain.ErrMissingIdentifier):
		return "missing_identifier"
	case errors.Is(err, donationdomain.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, donationdomain.ErrAmountBelowMinimum):
		return "amount_below_minimum"
	case errors.Is(err, donationdomain.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, donationdomain.ErrInvalidDistributionStatus):
		return "invalid_distribution_status"
	default:
		return "invalid_donation"
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_signature":
		return "Stripe-Signature"
	case "missing_identifier", "invalid_identifier":
		return "identifier"
	case "amount_below_minimum":
		return "amount_cents"
	case "invalid_email", "mixed_donor", "empty_donation_set":
		return "email"
	case "invalid_distribution_status":
		return "status"
	default:
		return "donation"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_signature":
		return "webhook signature could not be verified"
	case "missing_identifier":
		return "at least one identifier is required"
	case "amount_below_minimum":
		return "amount is below the minimum donation"
	case "empty_donation_set":
		return "donor has no donations"
	case "mixed_donor":
		return "donations belong to more than one donor"
	default:
		return "invalid value"
	}
}
