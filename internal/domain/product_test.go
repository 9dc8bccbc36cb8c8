package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		price string
		ok    bool
	}{
		{"0", true},
		{"19.99", true},
		{"1.50000", true},
		{"9999999999.99", true},
		{"1.005", false},
		{"10000000000", false},
		{"-0.01", false},
	}

	for _, tc := range tests {
		err := ValidatePrice(decimal.RequireFromString(tc.price))
		if tc.ok {
			assert.NoError(t, err, tc.price)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPrice, tc.price)
		}
	}
}

func TestValidateStock(t *testing.T) {
	assert.NoError(t, ValidateStock(0))
	assert.NoError(t, ValidateStock(MaxStock))
	assert.ErrorIs(t, ValidateStock(-1), ErrValidation)
	assert.ErrorIs(t, ValidateStock(MaxStock+1), ErrValidation)
}
