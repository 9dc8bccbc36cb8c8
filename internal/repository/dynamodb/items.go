package dynamodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
)

const (
	keyProduct = "product_id"
	keyUser    = "user_id"
	keyOrder   = "order_id"
	keyEvent   = "event_id"

	// Email ownership markers share the users table under this key prefix.
	emailMarkerPrefix = "email#"
)

// Prices are stored as DynamoDB numbers so range filters compare numerically.
type productItem struct {
	ProductID   string                `dynamodbav:"product_id"`
	Name        string                `dynamodbav:"name"`
	Category    string                `dynamodbav:"category"`
	CategoryKey string                `dynamodbav:"category_key"`
	Price       attributevalue.Number `dynamodbav:"price"`
	Stock       int                   `dynamodbav:"stock"`
	CreatedAt   time.Time             `dynamodbav:"created_at"`
	UpdatedAt   time.Time             `dynamodbav:"updated_at"`
}

func newProductItem(p *domain.Product) productItem {
	return productItem{
		ProductID:   p.ProductID,
		Name:        p.Name,
		Category:    p.Category,
		CategoryKey: strings.ToLower(p.Category),
		Price:       attributevalue.Number(p.Price.String()),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (it productItem) toDomain() (domain.Product, error) {
	price, err := decimal.NewFromString(string(it.Price))
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", it.ProductID, err)
	}
	return domain.Product{
		ProductID: it.ProductID,
		Name:      it.Name,
		Category:  it.Category,
		Price:     price,
		Stock:     it.Stock,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}, nil
}

func unmarshalProduct(av map[string]types.AttributeValue) (domain.Product, error) {
	var it productItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return domain.Product{}, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return it.toDomain()
}

// OrderCount lets DeleteUser refuse users that still own orders without a scan.
type userItem struct {
	UserID     string    `dynamodbav:"user_id"`
	Name       string    `dynamodbav:"name"`
	Email      string    `dynamodbav:"email"`
	OrderCount int       `dynamodbav:"order_count"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
}

func (it userItem) toDomain() domain.User {
	return domain.User{
		UserID:    it.UserID,
		Name:      it.Name,
		Email:     it.Email,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func emailMarkerKey(email string) string {
	return emailMarkerPrefix + email
}

type orderLineItem struct {
	ProductID string                `dynamodbav:"product_id"`
	Quantity  int                   `dynamodbav:"quantity"`
	UnitPrice attributevalue.Number `dynamodbav:"unit_price"`
}

type orderItem struct {
	OrderID   string          `dynamodbav:"order_id"`
	UserID    string          `dynamodbav:"user_id"`
	Status    string          `dynamodbav:"status"`
	Items     []orderLineItem `dynamodbav:"items"`
	CreatedAt time.Time       `dynamodbav:"created_at"`
	UpdatedAt time.Time       `dynamodbav:"updated_at"`
}

func newOrderItem(o *domain.Order) orderItem {
	lines := make([]orderLineItem, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, orderLineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: attributevalue.Number(it.UnitPrice.String()),
		})
	}
	return orderItem{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Items:     lines,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (it orderItem) toDomain() (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(it.Items))
	for _, line := range it.Items {
		price, err := decimal.NewFromString(string(line.UnitPrice))
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s unit price: %w", it.OrderID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
	}
	return domain.Order{
		OrderID:   it.OrderID,
		UserID:    it.UserID,
		Status:    domain.OrderStatus(it.Status),
		Items:     items,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}, nil
}

func unmarshalOrder(av map[string]types.AttributeValue) (domain.Order, error) {
	var it orderItem
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return domain.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return it.toDomain()
}

type outboxItem struct {
	EventID       string    `dynamodbav:"event_id"`
	AggregateType string    `dynamodbav:"aggregate_type"`
	AggregateID   string    `dynamodbav:"aggregate_id"`
	EventType     string    `dynamodbav:"event_type"`
	Payload       []byte    `dynamodbav:"payload"`
	Status        string    `dynamodbav:"status"`
	Attempts      int       `dynamodbav:"attempts"`
	LastError     string    `dynamodbav:"last_error,omitempty"`
	RelayID       string    `dynamodbav:"relay_id,omitempty"`
	LeaseUntil    int64     `dynamodbav:"lease_until"` // unix millis
	CreatedAt     time.Time `dynamodbav:"created_at"`
}

func newOutboxItem(e events.OutboxEvent) outboxItem {
	return outboxItem{
		EventID:       e.EventID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.Type,
		Payload:       e.Payload,
		Status:        string(events.StatusPending),
		CreatedAt:     e.CreatedAt,
	}
}

func (it outboxItem) toEvent() events.OutboxEvent {
	return events.OutboxEvent{
		EventID:       it.EventID,
		AggregateType: it.AggregateType,
		AggregateID:   it.AggregateID,
		Type:          it.EventType,
		Payload:       it.Payload,
		Status:        events.Status(it.Status),
		Attempts:      it.Attempts,
		LastError:     it.LastError,
		CreatedAt:     it.CreatedAt,
	}
}

// scanPage walks a filtered Scan starting after cursor and hands at most limit
// items to visit. It returns the key of the last visited item when the table
// may hold more matches.
func scanPage(ctx context.Context, api API, in *dynamodb.ScanInput, keyName string, page domain.Page, visit func(map[string]types.AttributeValue) error) (string, error) {
	if page.Cursor != "" {
		in.ExclusiveStartKey = stringKey(keyName, page.Cursor)
	}

	visited := 0
	var last string
	for {
		in.Limit = aws.Int32(int32(page.Limit - visited))
		out, err := api.Scan(ctx, in)
		if err != nil {
			return "", fmt.Errorf("failed to scan: %w", err)
		}

		for _, av := range out.Items {
			if err := visit(av); err != nil {
				return "", err
			}
			if s, ok := av[keyName].(*types.AttributeValueMemberS); ok {
				last = s.Value
			}
			visited++
			if visited == page.Limit {
				break
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return "", nil
		}
		if visited == page.Limit {
			return last, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
