package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitInstallments(t *testing.T) {
	tests := []struct {
		name     string
		total    Kobo
		percent  int
		first    Kobo
		second   Kobo
	}{
		{
			name:    "even split of 500000",
			total:   500000,
			percent: 50,
			first:   250000,
			second:  250000,
		},
		{
			name:    "odd amount leaves remainder in second",
			total:   100001,
			percent: 50,
			first:   50000,
			second:  50001,
		},
		{
			name:    "sixty percent first",
			total:   300000,
			percent: 60,
			first:   180000,
			second:  120000,
		},
		{
			name:    "zero total",
			total:   0,
			percent: 50,
			first:   0,
			second:  0,
		},
		{
			name:    "invalid percent falls back to half",
			total:   200000,
			percent: 0,
			first:   100000,
			second:  100000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := SplitInstallments(tt.total, tt.percent)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.second, second)
			assert.Equal(t, tt.total, first+second, "installments must sum to the total")
		})
	}
}

func TestFormatNaira(t *testing.T) {
	tests := []struct {
		amount   Kobo
		expected string
	}{
		{0, "₦0.00"},
		{50, "₦0.50"},
		{250000, "₦2,500.00"},
		{500000, "₦5,000.00"},
		{123456789, "₦1,234,567.89"},
		{-150000, "-₦1,500.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatNaira(tt.amount))
	}
}
