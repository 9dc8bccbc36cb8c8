package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxStock is the largest stock level every store can hold.
	MaxStock = math.MaxInt32
	// PriceScale is the number of decimal places a price may carry.
	PriceScale = 2
)

// MaxPrice is the exclusive upper bound for a price.
var MaxPrice = decimal.New(1, 10)

// ValidatePrice rejects prices the stores cannot hold exactly.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() || price.GreaterThanOrEqual(MaxPrice) || !price.Equal(price.Truncate(PriceScale)) {
		return ErrInvalidPrice
	}
	return nil
}

func ValidateStock(stock int) error {
	if stock < 0 || stock > MaxStock {
		return Validation(fmt.Sprintf("stock must be between 0 and %d", MaxStock))
	}
	return nil
}

type Product struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreateProductRequest struct {
	ProductID string           `json:"id"`
	Name      string           `json:"name"     binding:"required"`
	Category  string           `json:"category" binding:"required"`
	Price     *decimal.Decimal `json:"price"    binding:"required"`
	Stock     *int             `json:"stock"    binding:"required,min=0"`
}

// UpdateProductRequest never touches stock: stock moves only through order
// placement and restocking.
type UpdateProductRequest struct {
	Name     *string          `json:"name"     binding:"omitempty,min=1"`
	Category *string          `json:"category" binding:"omitempty,min=1"`
	Price    *decimal.Decimal `json:"price"`
}

func (r UpdateProductRequest) Empty() bool {
	return r.Name == nil && r.Category == nil && r.Price == nil
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type ProductFilter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     Page
}

type ProductPage struct {
	Items      []Product `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}
