package pdf

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	Issuer Issuer

	ReceiptNumber  string
	IssuedOn       string
	DonatedOn      string
	DonorName      string
	DonorEmail     string
	DonorAddress   string
	Amount         string
	FeesCovered    string
	Currency       string
	PaymentSummary string
	Causes         []string
	Status         string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	m := maroto.New(documentConfig("Donation receipt " + receipt.ReceiptNumber))

	m.AddRow(15,
		text.NewCol(8, "Donation receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.ReceiptNumber, props.Text{Size: 8, Align: align.Right, Top: 4}),
	)

	addIssuerRow(m, receipt.Issuer, col.New(6).Add(
		text.New("Donor", props.Text{Style: fontstyle.Bold}),
		text.New(receipt.DonorName, props.Text{Top: 5}),
		text.New(receipt.DonorAddress, props.Text{Top: 9}),
		text.New(receipt.DonorEmail, props.Text{Top: 17}),
	))

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" "+strings.ToUpper(receipt.Currency)+" received on "+receipt.DonatedOn, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)
	m.AddRow(2, line.NewCol(12))

	details := [][2]string{
		{"Date issued", receipt.IssuedOn},
		{"Date received", receipt.DonatedOn},
		{"Amount", receipt.Amount},
		{"Fees covered by donor", receipt.FeesCovered},
		{"Payment method", receipt.PaymentSummary},
		{"Causes", strings.Join(receipt.Causes, ", ")},
		{"Distribution status", receipt.Status},
	}
	for _, d := range details {
		if d[1] == "" {
			continue
		}
		m.AddRow(7,
			text.NewCol(4, d[0], props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(8, d[1], props.Text{Size: 9}),
		)
	}

	addSignatureRow(m, receipt.Issuer)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func addIssuerRow(m core.Maroto, issuer Issuer, counterpart core.Col) {
	issuerCol := col.New(6).Add(
		text.New(issuer.Name, props.Text{Style: fontstyle.Bold}),
	)
	top := 5.0
	for _, l := range issuer.AddressLines {
		issuerCol = issuerCol.Add(text.New(l, props.Text{Top: top}))
		top += 4
	}
	if issuer.Email != "" {
		issuerCol = issuerCol.Add(text.New(issuer.Email, props.Text{Top: top}))
		top += 4
	}
	if issuer.RegistrationNumber != "" {
		issuerCol = issuerCol.Add(text.New("Registration no. "+issuer.RegistrationNumber, props.Text{Top: top, Size: 8}))
	}
	m.AddRow(35, issuerCol, counterpart)
}

func addSignatureRow(m core.Maroto, issuer Issuer) {
	if issuer.Signatory == "" {
		return
	}
	m.AddRow(20,
		col.New(6),
		col.New(6).Add(
			text.New("Authorized signature", props.Text{Size: 8, Top: 10, Align: align.Right}),
			text.New(issuer.Signatory, props.Text{Size: 9, Top: 14, Align: align.Right, Style: fontstyle.Bold}),
		),
	)
}
