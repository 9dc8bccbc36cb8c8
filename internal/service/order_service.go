package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/store"
)

type OrderService struct {
	verifier   *StockVerifier
	placements store.PlacementStore
	orders     OrderRepository
	cache      ProductCache
	emitEvents bool
	logger     *zap.Logger
}

func NewOrderService(placements store.PlacementStore, products ProductReader, orders OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{
		verifier:   NewStockVerifier(products),
		placements: placements,
		orders:     orders,
		logger:     logger,
	}
}

// SetCache makes placements evict the products they touched.
func (s *OrderService) SetCache(cache ProductCache) {
	s.cache = cache
}

// EnableEvents writes an order.placed outbox event inside every placement.
func (s *OrderService) EnableEvents() {
	s.emitEvents = true
}

// PlaceOrder converts a request into a committed order while consuming stock.
// It returns either the complete order or a tagged error with nothing persisted.
// Calls are not idempotent: repeating one places a second order.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, items []domain.LineItem) (*domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Validation("userId is required")
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, domain.Validation("productId is required")
		}
		if item.Quantity <= 0 || item.Quantity > domain.MaxStock {
			return nil, domain.InvalidQuantity(item.ProductID)
		}
	}

	snapshot, err := s.verifier.Verify(ctx, items)
	if err != nil {
		s.logRejected(userID, err)
		return nil, err
	}

	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		orderItems = append(orderItems, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: snapshot[item.ProductID].Price,
		})
	}
	order := domain.NewOrder(uuid.NewString(), userID, orderItems)

	if err := s.commit(ctx, &order); err != nil {
		s.logRejected(userID, err)
		return nil, err
	}

	s.evict(ctx, order.Items)

	s.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", order.UserID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total().StringFixed(2)))

	return &order, nil
}

// commit runs the atomic unit. Decrements are issued in product id order so
// concurrent placements over the same products lock rows in the same order.
func (s *OrderService) commit(ctx context.Context, order *domain.Order) error {
	p, err := s.placements.BeginPlacement(ctx)
	if err != nil {
		return domain.Storage("begin placement", err)
	}
	defer func() {
		_ = p.Rollback(ctx)
	}()

	if err := p.RequireUser(ctx, order.UserID); err != nil {
		return domain.Storage("require user", err)
	}

	sorted := make([]domain.OrderItem, len(order.Items))
	copy(sorted, order.Items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, item := range sorted {
		if err := p.DecrementIfSufficient(ctx, item.ProductID, item.Quantity); err != nil {
			return domain.Storage("decrement stock", err)
		}
	}

	if err := p.CreateOrder(ctx, order); err != nil {
		return domain.Storage("create order", err)
	}

	if s.emitEvents {
		ev, err := events.NewOrderPlaced(*order)
		if err != nil {
			return domain.Storage("encode order event", err)
		}
		if err := p.AppendEvent(ctx, ev); err != nil {
			return domain.Storage("append order event", err)
		}
	}

	if err := p.Commit(ctx); err != nil {
		return domain.Storage("commit placement", err)
	}
	return nil
}

func (s *OrderService) evict(ctx context.Context, items []domain.OrderItem) {
	if s.cache == nil {
		return
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Strings("product_ids", ids), zap.Error(err))
	}
}

func (s *OrderService) logRejected(userID string, err error) {
	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("kind", domain.KindOf(err).String()),
		zap.Error(err),
	}
	if pid := domain.ProductIDOf(err); pid != "" {
		fields = append(fields, zap.String("product_id", pid))
	}
	switch domain.KindOf(err) {
	case domain.KindStorage, domain.KindInternal:
		s.logger.Error("Order placement failed", fields...)
	default:
		s.logger.Info("Order placement rejected", fields...)
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, domain.Storage("get order", err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	filter.Page = filter.Page.Normalize()
	page, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return domain.OrderPage{}, domain.Storage("list orders", err)
	}
	return page, nil
}

// UpdateStatus changes order-level metadata only; items and stock are untouched.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	order, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, domain.Storage("update order status", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(status)))

	return order, nil
}
