package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleLine struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int64 `json:"quantity" validate:"gte=1"`
}

type sampleRequest struct {
	ShiftID int64           `json:"shift_id" validate:"required"`
	Method  string          `json:"payment_method" validate:"oneof=cash card"`
	Tax     decimal.Decimal `json:"tax_total" validate:"money_nonnegative"`
	Lines   []sampleLine    `json:"lines" validate:"min=1,dive"`
}

func TestValidateStructFieldPaths(t *testing.T) {
	err := ValidateStruct(sampleRequest{
		Method: "cheque",
		Tax:    decimal.NewFromInt(-1),
		Lines:  []sampleLine{{ProductID: 1, Quantity: 1}, {ProductID: 0, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)
	fields := FieldErrors(err)
	assert.Equal(t, "is required", fields["shift_id"])
	assert.Equal(t, "must be one of: cash, card", fields["payment_method"])
	assert.Equal(t, "must not be negative", fields["tax_total"])
	assert.Equal(t, "must be greater than 0", fields["lines[1].product_id"])
	assert.Equal(t, "must be at least 1", fields["lines[1].quantity"])
	assert.NotContains(t, fields, "lines[0].quantity")
}

func TestValidateStructEmptyLines(t *testing.T) {
	err := ValidateStruct(sampleRequest{ShiftID: 1, Method: "cash", Tax: decimal.Zero})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "must contain at least 1 item(s)", FieldErrors(err)["lines"])
}

func TestValidateStructPasses(t *testing.T) {
	require.NoError(t, ValidateStruct(sampleRequest{
		ShiftID: 1, Method: "card", Tax: decimal.Zero,
		Lines: []sampleLine{{ProductID: 1, Quantity: 2}},
	}))
}
