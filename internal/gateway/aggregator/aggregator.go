package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/smallbiznis/donara/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Params struct {
	fx.In

	Client  gatewaydomain.Client
	Log     *zap.Logger
	Metrics *metrics.ReconcileMetrics `optional:"true"`
}

type Aggregator struct {
	client  gatewaydomain.Client
	log     *zap.Logger
	metrics *metrics.ReconcileMetrics
}

func New(p Params) gatewaydomain.Aggregator {
	return &Aggregator{
		client:  p.Client,
		log:     p.Log.Named("gateway.aggregator"),
		metrics: p.Metrics,
	}
}

// Aggregate collects the charge, payment intent, balance transaction,
// customer and payment method describing one payment.
func (a *Aggregator) Aggregate(ctx context.Context, ids donationdomain.Identifiers) (*gatewaydomain.PaymentEvent, error) {
	ctx, span := otel.Tracer("donara/gateway").Start(ctx, "gateway.aggregate")
	defer span.End()

	if !ids.HasPaymentReference() {
		span.SetStatus(codes.Error, "missing identifier")
		return nil, donationdomain.ErrMissingIdentifier
	}

	event := &gatewaydomain.PaymentEvent{Identifiers: ids}

	charge, intent, err := a.resolveCharge(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve charge")
		return nil, err
	}
	event.Charge = *charge
	event.PaymentIntent = *intent
	event.Identifiers.ChargeID = charge.ID
	event.Identifiers.PaymentIntentID = intent.ID
	span.SetAttributes(attribute.String("gateway.charge_id", charge.ID))

	if charge.BalanceTransactionID == "" {
		return nil, &donationdomain.IncompleteGatewayDataError{Field: gatewaydomain.ObjectBalanceTransaction, Identifier: charge.ID}
	}
	if charge.PaymentMethodID == "" {
		return nil, &donationdomain.IncompleteGatewayDataError{Field: gatewaydomain.ObjectPaymentMethod, Identifier: charge.ID}
	}
	if charge.CustomerID == "" {
		return nil, &donationdomain.IncompleteGatewayDataError{Field: gatewaydomain.ObjectCustomer, Identifier: charge.ID}
	}
	event.Identifiers.BalanceTransactionID = charge.BalanceTransactionID
	event.Identifiers.PaymentMethodID = charge.PaymentMethodID
	event.Identifiers.CustomerID = charge.CustomerID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bt, err := observe(a, gatewaydomain.ObjectBalanceTransaction, func() (*gatewaydomain.BalanceTransaction, error) {
			return a.client.GetBalanceTransaction(gctx, charge.BalanceTransactionID)
		})
		if err != nil {
			return missingAs(err, gatewaydomain.ObjectBalanceTransaction, charge.BalanceTransactionID)
		}
		event.BalanceTransaction = *bt
		return nil
	})
	g.Go(func() error {
		pm, err := observe(a, gatewaydomain.ObjectPaymentMethod, func() (*gatewaydomain.PaymentMethod, error) {
			return a.client.GetPaymentMethod(gctx, charge.PaymentMethodID)
		})
		if err != nil {
			return missingAs(err, gatewaydomain.ObjectPaymentMethod, charge.PaymentMethodID)
		}
		event.PaymentMethod = *pm
		return nil
	})
	g.Go(func() error {
		cus, err := observe(a, gatewaydomain.ObjectCustomer, func() (*gatewaydomain.Customer, error) {
			return a.client.GetCustomer(gctx, charge.CustomerID)
		})
		if err != nil {
			return missingAs(err, gatewaydomain.ObjectCustomer, charge.CustomerID)
		}
		event.Customer = *cus
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch related objects")
		a.log.Warn("gateway aggregation failed",
			zap.String("charge_id", charge.ID),
			zap.Error(err),
		)
		return nil, err
	}

	return event, nil
}

// resolveCharge fetches the charge through the payment intent when one is
// known, otherwise directly, and backfills the missing side.
func (a *Aggregator) resolveCharge(ctx context.Context, ids donationdomain.Identifiers) (*gatewaydomain.Charge, *gatewaydomain.PaymentIntent, error) {
	var intent *gatewaydomain.PaymentIntent
	chargeID := ids.ChargeID

	if ids.PaymentIntentID != "" {
		pi, err := observe(a, gatewaydomain.ObjectPaymentIntent, func() (*gatewaydomain.PaymentIntent, error) {
			return a.client.GetPaymentIntent(ctx, ids.PaymentIntentID)
		})
		if err != nil {
			return nil, nil, unknownAs(err, gatewaydomain.ObjectPaymentIntent, ids.PaymentIntentID)
		}
		if pi.LatestChargeID == "" {
			return nil, nil, &donationdomain.IncompleteGatewayDataError{Field: gatewaydomain.ObjectCharge, Identifier: pi.ID}
		}
		if chargeID != "" && chargeID != pi.LatestChargeID {
			return nil, nil, &donationdomain.ConflictError{
				Field:  "charge_id",
				Values: []string{chargeID, pi.LatestChargeID},
			}
		}
		intent = pi
		chargeID = pi.LatestChargeID
	}

	charge, err := observe(a, gatewaydomain.ObjectCharge, func() (*gatewaydomain.Charge, error) {
		return a.client.GetCharge(ctx, chargeID)
	})
	if err != nil {
		if intent == nil {
			return nil, nil, unknownAs(err, gatewaydomain.ObjectCharge, chargeID)
		}
		return nil, nil, missingAs(err, gatewaydomain.ObjectCharge, chargeID)
	}

	if intent == nil {
		if charge.PaymentIntentID == "" {
			return nil, nil, &donationdomain.IncompleteGatewayDataError{Field: gatewaydomain.ObjectPaymentIntent, Identifier: charge.ID}
		}
		pi, err := observe(a, gatewaydomain.ObjectPaymentIntent, func() (*gatewaydomain.PaymentIntent, error) {
			return a.client.GetPaymentIntent(ctx, charge.PaymentIntentID)
		})
		if err != nil {
			return nil, nil, missingAs(err, gatewaydomain.ObjectPaymentIntent, charge.PaymentIntentID)
		}
		intent = pi
	}

	return charge, intent, nil
}

func observe[T any](a *Aggregator, object string, fetch func() (*T, error)) (*T, error) {
	start := time.Now()
	out, err := fetch()
	a.metrics.ObserveGatewayFetch(object, time.Since(start), err)
	if err == nil && out == nil {
		err = gatewaydomain.ErrObjectNotFound
	}
	return out, err
}

// missingAs converts a not-found gateway error into an incomplete data error
// naming the object; other errors pass through.
func missingAs(err error, object, id string) error {
	if errors.Is(err, gatewaydomain.ErrObjectNotFound) {
		return &donationdomain.IncompleteGatewayDataError{Field: object, Identifier: id}
	}
	return err
}

// unknownAs converts a not-found error for an object the caller named into
// ErrNotFound.
func unknownAs(err error, object, id string) error {
	if errors.Is(err, gatewaydomain.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s %s", donationdomain.ErrNotFound, object, id)
	}
	return err
}
