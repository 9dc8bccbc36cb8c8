package service

import (
	"context"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

// StockVerifier checks a placement request against a snapshot of current stock.
// The result is advisory: stock can move between this read and the commit, so
// the conditional decrement inside the placement unit remains the real guard.
type StockVerifier struct {
	products ProductReader
}

func NewStockVerifier(products ProductReader) *StockVerifier {
	return &StockVerifier{products: products}
}

// Verify rejects duplicate products, then reads every referenced product once
// and fails on the first item, in request order, that is unknown or short.
// The snapshot is returned so callers can capture prices from the same read.
func (v *StockVerifier) Verify(ctx context.Context, items []domain.LineItem) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return nil, domain.DuplicateLineItem(item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	snapshot, err := v.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, domain.Storage("read stock", err)
	}

	for _, item := range items {
		product, ok := snapshot[item.ProductID]
		if !ok {
			return nil, domain.ProductNotFound(item.ProductID)
		}
		if product.Stock < item.Quantity {
			return nil, domain.InsufficientStock(item.ProductID)
		}
	}
	return snapshot, nil
}
