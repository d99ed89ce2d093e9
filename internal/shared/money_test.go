package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name      string
		qty       string
		unitPrice string
		discount  string
		tax       string
		want      string
	}{
		{"plain", "3", "10.00", "0", "0", "30.00"},
		{"with discount", "2", "25.50", "5.00", "0", "46.00"},
		{"with tax", "1", "100.00", "0", "8.25", "108.25"},
		{"discount and tax", "4", "9.99", "2.96", "3.00", "40.00"},
		{"fractional quantity", "2.5", "4.00", "0", "0", "10.00"},
		{"rounds to two digits", "3", "0.333", "0", "0", "1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LineTotal(dec(tt.qty), dec(tt.unitPrice), dec(tt.discount), dec(tt.tax))
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestLineTotalRejectsNegativeInputs(t *testing.T) {
	_, err := LineTotal(dec("-1"), dec("10"), dec("0"), dec("0"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = LineTotal(dec("1"), dec("-10"), dec("0"), dec("0"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = LineTotal(dec("1"), dec("10"), dec("-1"), dec("0"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = LineTotal(dec("1"), dec("10"), dec("0"), dec("-1"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestLineTotalRejectsDiscountAboveGross(t *testing.T) {
	_, err := LineTotal(dec("2"), dec("5.00"), dec("10.01"), dec("0"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestSumLines(t *testing.T) {
	total := SumLines([]decimal.Decimal{dec("10.00"), dec("0.01"), dec("89.99")})
	assert.True(t, dec("100.00").Equal(total))

	assert.True(t, decimal.Zero.Equal(SumLines(nil)))
}
