package domain

import (
	"context"

	"github.com/smallbiznis/donara/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListDonationFilter struct {
	Email    string
	Livemode *bool
	Source   Source
}

type Repository interface {
	// FindDonation returns the single row matching any populated identifier,
	// nil when none matches, or a *ConflictError when the identifiers match
	// different rows.
	FindDonation(ctx context.Context, db *gorm.DB, ids Identifiers) (*DonationRecord, error)
	InsertDonation(ctx context.Context, db *gorm.DB, row *DonationRecord) error
	UpdateDistributionStatus(ctx context.Context, db *gorm.DB, id string, status DistributionStatus) (bool, error)
	ListDonationsByEmail(ctx context.Context, db *gorm.DB, email string) ([]DonationRecord, error)
	ListDonations(ctx context.Context, db *gorm.DB, filter ListDonationFilter, page pagination.Pagination) ([]DonationRecord, error)
	ListProofs(ctx context.Context, db *gorm.DB, donationIDs []string) ([]ProofRecord, error)

	FindDonor(ctx context.Context, db *gorm.DB, id, email string) (*DonorRecord, error)
	AppendDonorCustomerID(ctx context.Context, db *gorm.DB, donorID, customerID string) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *DonationEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, donationID string) ([]DonationEvent, error)
}
