package service

import (
	"context"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

// ProductReader performs the single snapshot read used by the stock verifier.
type ProductReader interface {
	// GetProducts returns the products that exist among ids, keyed by id.
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type ProductRepository interface {
	ProductReader
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error)
	UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	// Restock atomically increases stock.
	Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context, page domain.Page) (domain.UserPage, error)
	UpdateUser(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)
}

// ProductCache is a read-through cache for single product lookups. Get returns
// nil, nil on a miss. Set must not overwrite an entry Invalidate has just
// replaced, so a lookup racing a write cannot restore the old product.
type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Invalidate(ctx context.Context, productIDs ...string) error
}
