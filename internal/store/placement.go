// Package store declares the atomic unit of work used by order placement.
package store

import (
	"context"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
)

// PlacementStore opens atomic units of work.
type PlacementStore interface {
	BeginPlacement(ctx context.Context) (Placement, error)
}

// Placement groups the writes of one order placement. Either every call made
// on it takes effect at Commit, or none does.
//
// Backends with interactive transactions may report a failed condition from
// the call that caused it; batched backends report it from Commit. In both
// cases the error names the offending product or user.
type Placement interface {
	// RequireUser fails with domain.ErrUserNotFound if the user does not exist
	// at commit time.
	RequireUser(ctx context.Context, userID string) error
	// DecrementIfSufficient lowers stock by quantity only if the result stays
	// non-negative; otherwise the unit fails with domain.InsufficientStock.
	DecrementIfSufficient(ctx context.Context, productID string, quantity int) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	AppendEvent(ctx context.Context, event events.OutboxEvent) error
	Commit(ctx context.Context) error
	// Rollback discards the unit. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}
