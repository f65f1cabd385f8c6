package docproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsInvoiceLayout(t *testing.T) {
	text := `INVOICE
Vendor: Acme Supplies
Date: 2026-03-01

Paper  10  25.00  250.00
Toner  2  199.99

Grand Total: $649.98`

	result := parseFields(text)

	assert.Equal(t, "Acme Supplies", result.Vendor)
	require.NotNil(t, result.Total)
	assert.Equal(t, "649.98", result.Total.StringFixed(2))

	require.Len(t, result.Items, 2)
	assert.Equal(t, "Paper", result.Items[0].Name)
	assert.Equal(t, "10", result.Items[0].Quantity)
	assert.Equal(t, "25.00", result.Items[0].Price)
	assert.Equal(t, "Toner", result.Items[1].Name)
}

func TestParseFieldsTotalPrecedence(t *testing.T) {
	// "grand total" outranks a bare "total" appearing earlier.
	result := parseFields("Total: 10.00\nGrand Total: 12.50")
	require.NotNil(t, result.Total)
	assert.Equal(t, "12.50", result.Total.StringFixed(2))
}

func TestParseFieldsMalformedTotalFallsThrough(t *testing.T) {
	// The "total" match captures only commas; the amount line still counts.
	result := parseFields("Total: ,,\nAmount: 50.00")
	require.NotNil(t, result.Total)
	assert.Equal(t, "50.00", result.Total.StringFixed(2))
}

func TestParseFieldsThousandsSeparators(t *testing.T) {
	result := parseFields("TOTAL: $1,234.56")
	require.NotNil(t, result.Total)
	assert.Equal(t, "1234.56", result.Total.StringFixed(2))
}

func TestParseFieldsNothingRecognized(t *testing.T) {
	result := parseFields("just some prose without any figures")
	assert.Empty(t, result.Vendor)
	assert.Nil(t, result.Total)
	assert.Empty(t, result.Items)
	assert.False(t, result.Empty())

	assert.True(t, parseFields("").Empty())
}
