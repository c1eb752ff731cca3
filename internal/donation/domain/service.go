package domain

import (
	"context"

	"github.com/smallbiznis/donara/pkg/db/pagination"
)

type ListDonationsRequest struct {
	PageToken string
	PageSize  int
	Email     string
	Livemode  *bool
	Source    Source
}

type ListDonationsResponse struct {
	pagination.PageInfo
	Donations []Donation `json:"donations"`
}

type Service interface {
	// ResolveOrCreate returns the ledger donation matching ids, creating it
	// from the payment gateway when none exists yet.
	ResolveOrCreate(ctx context.Context, ids Identifiers) (Resolution, error)
	// ResolveRaw classifies raw identifier strings and resolves them.
	ResolveRaw(ctx context.Context, raws ...string) (Resolution, error)
	// ResendReceipt resolves raw and always emails the donor a receipt.
	ResendReceipt(ctx context.Context, raw string) (Resolution, error)
	CreateManual(ctx context.Context, input ManualDonationInput) (Donation, error)
	// HandleWebhook verifies a gateway event and resolves the payment it describes.
	// A nil resolution means the event type is not one that records a donation.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*Resolution, error)

	Fetch(ctx context.Context, ids Identifiers) (Donation, error)
	ListForDonor(ctx context.Context, email string) ([]Donation, error)
	List(ctx context.Context, req ListDonationsRequest) (ListDonationsResponse, error)
	UpdateDistributionStatus(ctx context.Context, id string, status DistributionStatus) (Donation, error)
}

type NotificationType string

const (
	NotificationDonationCreated NotificationType = "donation_created"
	NotificationDonationMade    NotificationType = "donation_made"
)

// Notifier delivers donor-facing notifications about a donation.
type Notifier interface {
	Send(ctx context.Context, notificationType NotificationType, donation Donation, donor Donor) error
}
