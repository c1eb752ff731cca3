package domain

import (
	"context"
	"errors"

	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
)

var (
	ErrObjectNotFound   = errors.New("gateway_object_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
)

const (
	ObjectCharge             = "charge"
	ObjectPaymentIntent      = "payment_intent"
	ObjectBalanceTransaction = "balance_transaction"
	ObjectCustomer           = "customer"
	ObjectPaymentMethod      = "payment_method"
)

// Charge carries the charge fields the canonicalizer reads. Related object
// ids are denormalized onto the charge by the gateway.
type Charge struct {
	ID                   string
	PaymentIntentID      string
	BalanceTransactionID string
	CustomerID           string
	PaymentMethodID      string
	AmountCaptured       int64
	Currency             string
	Created              int64
	Livemode             bool
	Metadata             map[string]string
}

type PaymentIntent struct {
	ID             string
	LatestChargeID string
	CustomerID     string
	Livemode       bool
	Metadata       map[string]string
}

type BalanceTransaction struct {
	ID       string
	Fee      int64
	Currency string
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type Customer struct {
	ID       string
	Name     string
	Email    string
	Phone    string
	Address  Address
	Metadata map[string]string
}

type PaymentMethod struct {
	ID           string
	Type         string
	CardBrand    string
	CardLast4    string
	CardExpMonth int64
	CardExpYear  int64
}

// PaymentEvent bundles every gateway object describing one payment, plus the
// identifier bag populated from them.
type PaymentEvent struct {
	Identifiers        donationdomain.Identifiers
	Charge             Charge
	PaymentIntent      PaymentIntent
	BalanceTransaction BalanceTransaction
	Customer           Customer
	PaymentMethod      PaymentMethod
}

// Client reads payment objects from the gateway. Implementations return an
// error wrapping ErrObjectNotFound when the object does not exist.
type Client interface {
	GetCharge(ctx context.Context, id string) (*Charge, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetBalanceTransaction(ctx context.Context, id string) (*BalanceTransaction, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}

type Aggregator interface {
	Aggregate(ctx context.Context, ids donationdomain.Identifiers) (*PaymentEvent, error)
}

// WebhookEvent is a verified gateway notification about a successful payment.
type WebhookEvent struct {
	ID          string
	Type        string
	Livemode    bool
	Identifiers donationdomain.Identifiers
}

type WebhookParser interface {
	// Parse verifies the signature header and extracts the payment
	// identifiers. Event types that do not record a donation return
	// ErrEventIgnored.
	Parse(payload []byte, signature string) (WebhookEvent, error)
}
