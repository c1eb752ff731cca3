package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/donara/internal/config"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	stripego "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Client reads payment objects through the Stripe API.
type Client struct {
	api *client.API
	log *zap.Logger
}

func NewClient(p Params) (*Client, error) {
	key := strings.TrimSpace(p.Cfg.Stripe.SecretKey)
	if key == "" && p.Cfg.IsProduction() {
		return nil, errors.New("STRIPE_SECRET_KEY is required in production")
	}

	retries := p.Cfg.Stripe.MaxNetworkRetry
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		MaxNetworkRetries: stripego.Int64(retries),
		LeveledLogger:     &leveledLogger{log: p.Log.Named("gateway.stripe.http")},
	})
	api := client.New(key, &stripego.Backends{
		API:     backend,
		Connect: stripego.GetBackend(stripego.ConnectBackend),
		Uploads: stripego.GetBackend(stripego.UploadsBackend),
	})

	return &Client{api: api, log: p.Log.Named("gateway.stripe")}, nil
}

func (c *Client) GetCharge(ctx context.Context, id string) (*gatewaydomain.Charge, error) {
	params := &stripego.ChargeParams{}
	params.Context = ctx
	ch, err := c.api.Charges.Get(id, params)
	if err != nil {
		return nil, wrapError(gatewaydomain.ObjectCharge, id, err)
	}
	return toCharge(ch), nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*gatewaydomain.PaymentIntent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapError(gatewaydomain.ObjectPaymentIntent, id, err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) GetBalanceTransaction(ctx context.Context, id string) (*gatewaydomain.BalanceTransaction, error) {
	params := &stripego.BalanceTransactionParams{}
	params.Context = ctx
	bt, err := c.api.BalanceTransactions.Get(id, params)
	if err != nil {
		return nil, wrapError(gatewaydomain.ObjectBalanceTransaction, id, err)
	}
	return &gatewaydomain.BalanceTransaction{
		ID:       bt.ID,
		Fee:      bt.Fee,
		Currency: string(bt.Currency),
	}, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*gatewaydomain.Customer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx
	cus, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, wrapError(gatewaydomain.ObjectCustomer, id, err)
	}
	if cus.Deleted {
		return nil, fmt.Errorf("%s %s deleted: %w", gatewaydomain.ObjectCustomer, id, gatewaydomain.ErrObjectNotFound)
	}
	return toCustomer(cus), nil
}

func (c *Client) GetPaymentMethod(ctx context.Context, id string) (*gatewaydomain.PaymentMethod, error) {
	params := &stripego.PaymentMethodParams{}
	params.Context = ctx
	pm, err := c.api.PaymentMethods.Get(id, params)
	if err != nil {
		return nil, wrapError(gatewaydomain.ObjectPaymentMethod, id, err)
	}
	return toPaymentMethod(pm), nil
}

func toCharge(ch *stripego.Charge) *gatewaydomain.Charge {
	out := &gatewaydomain.Charge{
		ID:              ch.ID,
		PaymentMethodID: ch.PaymentMethod,
		AmountCaptured:  ch.AmountCaptured,
		Currency:        string(ch.Currency),
		Created:         ch.Created,
		Livemode:        ch.Livemode,
		Metadata:        ch.Metadata,
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	if ch.BalanceTransaction != nil {
		out.BalanceTransactionID = ch.BalanceTransaction.ID
	}
	if ch.Customer != nil {
		out.CustomerID = ch.Customer.ID
	}
	return out
}

func toPaymentIntent(pi *stripego.PaymentIntent) *gatewaydomain.PaymentIntent {
	out := &gatewaydomain.PaymentIntent{
		ID:       pi.ID,
		Livemode: pi.Livemode,
		Metadata: pi.Metadata,
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

func toCustomer(cus *stripego.Customer) *gatewaydomain.Customer {
	out := &gatewaydomain.Customer{
		ID:       cus.ID,
		Name:     cus.Name,
		Email:    cus.Email,
		Phone:    cus.Phone,
		Metadata: cus.Metadata,
	}
	if cus.Address != nil {
		out.Address = gatewaydomain.Address{
			Line1:      cus.Address.Line1,
			Line2:      cus.Address.Line2,
			City:       cus.Address.City,
			State:      cus.Address.State,
			PostalCode: cus.Address.PostalCode,
			Country:    cus.Address.Country,
		}
	}
	return out
}

func toPaymentMethod(pm *stripego.PaymentMethod) *gatewaydomain.PaymentMethod {
	out := &gatewaydomain.PaymentMethod{
		ID:   pm.ID,
		Type: string(pm.Type),
	}
	if pm.Card != nil {
		out.CardBrand = string(pm.Card.Brand)
		out.CardLast4 = pm.Card.Last4
		out.CardExpMonth = int64(pm.Card.ExpMonth)
		out.CardExpYear = int64(pm.Card.ExpYear)
	}
	return out
}

func wrapError(object, id string, err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripego.ErrorCodeResourceMissing {
			return fmt.Errorf("%s %s: %w", object, id, gatewaydomain.ErrObjectNotFound)
		}
	}
	return fmt.Errorf("fetch %s %s: %w", object, id, err)
}

type leveledLogger struct {
	log *zap.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}
