package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuer = Issuer{
	Name:               "Donara Foundation",
	AddressLines:       []string{"1 Main St", "Toronto ON"},
	Email:              "support@donara.local",
	RegistrationNumber: "12345 RR0001",
	Signatory:          "J. Doe",
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func TestGenerateReceipt(t *testing.T) {
	r, err := New().GenerateReceipt(context.Background(), ReceiptData{
		Issuer:         issuer,
		ReceiptNumber:  "6f1c1d3a-8b7e-4c55-9a2f-0e1d2c3b4a59",
		IssuedOn:       "March 2, 2024",
		DonatedOn:      "March 1, 2024",
		DonorName:      "Ada Lovelace",
		DonorEmail:     "ada@example.com",
		Amount:         "25.00",
		Currency:       "cad",
		PaymentSummary: "VISA ending in 4242",
		Causes:         []string{"Clean water"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(readAll(t, r), []byte("%PDF")))
}

func TestGenerateStatement(t *testing.T) {
	r, err := New().GenerateStatement(context.Background(), StatementData{
		Issuer:     issuer,
		IssuedOn:   "March 2, 2024",
		DonorName:  "Ada Lovelace",
		DonorEmail: "ada@example.com",
		Currency:   "CAD",
		Lines: []StatementLine{
			{DonatedOn: "March 1, 2024", ReceiptNumber: "6f1c1d3a", Causes: "Clean water", Amount: "150.00"},
		},
		Total:            "150.00",
		EligibleEstimate: "30.07",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(readAll(t, r), []byte("%PDF")))
}

func TestGenerateStatementRequiresLines(t *testing.T) {
	_, err := New().GenerateStatement(context.Background(), StatementData{Issuer: issuer})
	assert.ErrorIs(t, err, ErrEmptyStatement)
}
