package pdf

import (
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/fx"
)

var ErrEmptyStatement = errors.New("statement has no lines")

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Provider renders donor-facing documents.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
	GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

// Issuer is the organization printed in the document header.
type Issuer struct {
	Name               string
	AddressLines       []string
	Email              string
	RegistrationNumber string
	Signatory          string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func documentConfig(title string) *entity.Config {
	return config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		WithTitle(title, true).
		Build()
}
