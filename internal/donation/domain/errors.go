package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentifier         = errors.New("invalid_identifier")
	ErrConflictingIdentifiers    = errors.New("conflicting_identifiers")
	ErrMissingIdentifier         = errors.New("missing_identifier")
	ErrIncompleteGatewayData     = errors.New("incomplete_gateway_data")
	ErrMalformedGatewayMetadata  = errors.New("malformed_gateway_metadata")
	ErrInvalidDonation           = errors.New("invalid_donation")
	ErrAmountBelowMinimum        = errors.New("amount_below_minimum")
	ErrInvalidEmail              = errors.New("invalid_email")
	ErrNotFound                  = errors.New("not_found")
	ErrInvalidDistributionStatus = errors.New("invalid_distribution_status")
)

// ConflictError reports two identifiers in one bag that resolve to different
// ledger rows, or two values supplied for the same identifier kind.
type ConflictError struct {
	Field  string
	Values []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting identifiers for %s: %v", e.Field, e.Values)
}

func (e *ConflictError) Unwrap() []error {
	return []error{ErrConflictingIdentifiers, ErrInvalidIdentifier}
}

// IncompleteGatewayDataError names the gateway object or field that was
// missing while aggregating a payment event.
type IncompleteGatewayDataError struct {
	Field      string
	Identifier string
}

func (e *IncompleteGatewayDataError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("incomplete gateway data: missing %s", e.Field)
	}
	return fmt.Sprintf("incomplete gateway data: missing %s for %s", e.Field, e.Identifier)
}

func (e *IncompleteGatewayDataError) Unwrap() error {
	return ErrIncompleteGatewayData
}

// MalformedGatewayMetadataError reports a metadata key whose value could not be parsed.
type MalformedGatewayMetadataError struct {
	Key      string
	ChargeID string
	Err      error
}

func (e *MalformedGatewayMetadataError) Error() string {
	return fmt.Sprintf("malformed gateway metadata %q on %s: %v", e.Key, e.ChargeID, e.Err)
}

func (e *MalformedGatewayMetadataError) Unwrap() []error {
	return []error{ErrMalformedGatewayMetadata, e.Err}
}

// ValidationError explains why a donation failed its creation invariants.
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid donation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidDonation, e.Cause}
	}
	return []error{ErrInvalidDonation}
}

// IsCallerError reports errors caused by bad input rather than upstream state.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrMissingIdentifier) ||
		errors.Is(err, ErrInvalidDonation) ||
		errors.Is(err, ErrAmountBelowMinimum) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidDistributionStatus)
}

// IsUpstreamInconsistency reports errors caused by a corrupt or partial gateway record.
func IsUpstreamInconsistency(err error) bool {
	return errors.Is(err, ErrIncompleteGatewayData) || errors.Is(err, ErrMalformedGatewayMetadata)
}
