package providers

import (
	"github.com/smallbiznis/donara/internal/providers/email"
	"github.com/smallbiznis/donara/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module wires the outbound document and delivery providers used by receipts.
var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
