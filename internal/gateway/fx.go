package gateway

import (
	"github.com/smallbiznis/donara/internal/gateway/aggregator"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	"github.com/smallbiznis/donara/internal/gateway/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(
		fx.Annotate(stripe.NewClient, fx.As(new(gatewaydomain.Client))),
		fx.Annotate(stripe.NewWebhookParser, fx.As(new(gatewaydomain.WebhookParser))),
		aggregator.New,
	),
)
