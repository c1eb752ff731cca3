package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type StatementData struct {
	Issuer Issuer

	IssuedOn         string
	DonorName        string
	DonorEmail       string
	Currency         string
	Lines            []StatementLine
	Total            string
	EligibleEstimate string
}

type StatementLine struct {
	DonatedOn     string
	ReceiptNumber string
	Causes        string
	Amount        string
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, statement StatementData) (io.Reader, error) {
	if len(statement.Lines) == 0 {
		return nil, ErrEmptyStatement
	}

	m := maroto.New(documentConfig("Donation statement"))

	m.AddRow(15,
		text.NewCol(8, "Donation statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Issued "+statement.IssuedOn, props.Text{Size: 8, Align: align.Right, Top: 4}),
	)

	addIssuerRow(m, statement.Issuer, col.New(6).Add(
		text.New("Donor", props.Text{Style: fontstyle.Bold}),
		text.New(statement.DonorName, props.Text{Top: 5}),
		text.New(statement.DonorEmail, props.Text{Top: 9}),
	))

	m.AddRow(10,
		text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Receipt", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Causes", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, l := range statement.Lines {
		m.AddRow(8,
			text.NewCol(3, l.DonatedOn, props.Text{Size: 9}),
			text.NewCol(4, l.ReceiptNumber, props.Text{Size: 7}),
			text.NewCol(3, l.Causes, props.Text{Size: 9}),
			text.NewCol(2, l.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(8,
		col.New(7),
		text.NewCol(3, "Total ("+statement.Currency+")", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, statement.Total, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(7),
		text.NewCol(3, "Estimated tax credit", props.Text{Size: 9}),
		text.NewCol(2, statement.EligibleEstimate, props.Text{Size: 9, Align: align.Right}),
	)

	addSignatureRow(m, statement.Issuer)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
