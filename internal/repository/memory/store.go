// Package memory is a single-process storage backend for local runs and tests.
// Its placement unit applies queued writes all-or-nothing under one mutex, so
// it provides the same guarantees as the database backends within one
// process only.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/store"
)

type outboxEntry struct {
	event      events.OutboxEvent
	relayID    string
	leaseUntil time.Time
}

type Store struct {
	mu       sync.Mutex
	products map[string]domain.Product
	users    map[string]domain.User
	orders   map[string]domain.Order
	outbox   map[string]*outboxEntry
	// outboxSeq keeps relay order stable.
	outboxSeq []string
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.User),
		orders:   make(map[string]domain.Order),
		outbox:   make(map[string]*outboxEntry),
	}
}

func copyOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Products

func (s *Store) CreateProduct(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ProductID]; ok {
		return domain.ErrProductExists
	}
	s.products[product.ProductID] = *product
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := filter.Page.Normalize()
	var res domain.ProductPage
	for _, id := range sortedKeys(s.products) {
		if page.Cursor != "" && id <= page.Cursor {
			continue
		}
		p := s.products[id]
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		if len(res.Items) == page.Limit {
			res.NextCursor = res.Items[len(res.Items)-1].ProductID
			break
		}
		res.Items = append(res.Items, p)
	}
	return res, nil
}

func (s *Store) UpdateProduct(_ context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return &p, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return domain.ErrProductNotFound
	}
	delete(s.products, productID)
	return nil
}

func (s *Store) Restock(_ context.Context, productID string, quantity int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if quantity > domain.MaxStock-p.Stock {
		return nil, domain.StockOverflow(productID)
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return &p, nil
}

// Users

func (s *Store) emailTaken(email, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTaken(user.Email, "") {
		return domain.ErrUserExists
	}
	s.users[user.UserID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context, page domain.Page) (domain.UserPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page = page.Normalize()
	var res domain.UserPage
	for _, id := range sortedKeys(s.users) {
		if page.Cursor != "" && id <= page.Cursor {
			continue
		}
		if len(res.Items) == page.Limit {
			res.NextCursor = res.Items[len(res.Items)-1].UserID
			break
		}
		res.Items = append(res.Items, s.users[id])
	}
	return res, nil
}

func (s *Store) UpdateUser(_ context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if req.Email != nil {
		if s.emailTaken(*req.Email, userID) {
			return nil, domain.ErrUserExists
		}
		u.Email = *req.Email
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return &u, nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	for _, o := range s.orders {
		if o.UserID == userID {
			return domain.ErrUserHasOrders
		}
	}
	delete(s.users, userID)
	return nil
}

// Orders

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := filter.Page.Normalize()
	var res domain.OrderPage
	for _, id := range sortedKeys(s.orders) {
		if page.Cursor != "" && id <= page.Cursor {
			continue
		}
		o := s.orders[id]
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if len(res.Items) == page.Limit {
			res.NextCursor = res.Items[len(res.Items)-1].OrderID
			break
		}
		res.Items = append(res.Items, copyOrder(o))
	}
	return res, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = o
	o = copyOrder(o)
	return &o, nil
}

// Placement

type decrement struct {
	productID string
	quantity  int
}

type placement struct {
	s          *Store
	userID     string
	decrements []decrement
	order      *domain.Order
	events     []events.OutboxEvent
	done       bool
}

func (s *Store) BeginPlacement(ctx context.Context) (store.Placement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &placement{s: s}, nil
}

func (p *placement) RequireUser(_ context.Context, userID string) error {
	p.userID = userID
	return nil
}

func (p *placement) DecrementIfSufficient(_ context.Context, productID string, quantity int) error {
	p.decrements = append(p.decrements, decrement{productID: productID, quantity: quantity})
	return nil
}

func (p *placement) CreateOrder(_ context.Context, order *domain.Order) error {
	o := copyOrder(*order)
	p.order = &o
	return nil
}

func (p *placement) AppendEvent(_ context.Context, event events.OutboxEvent) error {
	p.events = append(p.events, event)
	return nil
}

// Commit validates every queued condition against current state and applies
// all writes, or none of them.
func (p *placement) Commit(ctx context.Context) error {
	if p.done {
		return nil
	}
	p.done = true

	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if p.userID != "" {
		if _, ok := s.users[p.userID]; !ok {
			return domain.ErrUserNotFound
		}
	}

	remaining := make(map[string]int, len(p.decrements))
	for _, d := range p.decrements {
		stock, seen := remaining[d.productID]
		if !seen {
			prod, ok := s.products[d.productID]
			if !ok {
				return domain.ProductNotFound(d.productID)
			}
			stock = prod.Stock
		}
		if stock < d.quantity {
			return domain.InsufficientStock(d.productID)
		}
		remaining[d.productID] = stock - d.quantity
	}

	if p.order != nil {
		if _, exists := s.orders[p.order.OrderID]; exists {
			return domain.Validation("order id already used")
		}
	}

	now := time.Now().UTC()
	for id, stock := range remaining {
		prod := s.products[id]
		prod.Stock = stock
		prod.UpdatedAt = now
		s.products[id] = prod
	}
	if p.order != nil {
		s.orders[p.order.OrderID] = *p.order
	}
	for _, ev := range p.events {
		ev.Status = events.StatusPending
		s.outbox[ev.EventID] = &outboxEntry{event: ev}
		s.outboxSeq = append(s.outboxSeq, ev.EventID)
	}
	return nil
}

func (p *placement) Rollback(context.Context) error {
	p.done = true
	return nil
}

// Outbox

func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]events.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var batch []events.OutboxEvent
	for _, id := range s.outboxSeq {
		if len(batch) == batchSize {
			break
		}
		e := s.outbox[id]
		claimable := e.event.Status == events.StatusPending ||
			(e.event.Status == events.StatusInProgress && now.After(e.leaseUntil))
		if !claimable {
			continue
		}
		e.event.Status = events.StatusInProgress
		e.relayID = relayID
		e.leaseUntil = now.Add(lease)
		batch = append(batch, e.event)
	}
	return batch, nil
}

func (s *Store) MarkSent(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.outbox[id]; ok {
			e.event.Status = events.StatusSent
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, errMsg string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.outbox[id]
	if !ok {
		return nil
	}
	e.event.Attempts++
	e.event.LastError = errMsg
	if e.event.Attempts >= maxAttempts {
		e.event.Status = events.StatusFailed
	} else {
		e.event.Status = events.StatusPending
	}
	return nil
}

// OutboxEvents returns a snapshot of the outbox in insertion order.
func (s *Store) OutboxEvents() []events.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]events.OutboxEvent, 0, len(s.outboxSeq))
	for _, id := range s.outboxSeq {
		out = append(out, s.outbox[id].event)
	}
	return out
}
