package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/store"
)

type OrderRepository struct {
	client API
	tables Tables
}

func NewOrderRepository(client API, tables Tables) *OrderRepository {
	return &OrderRepository{client: client, tables: tables}
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tables.Orders),
		Key:            stringKey(keyOrder, orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return nil, domain.ErrOrderNotFound
	}

	o, err := unmarshalOrder(result.Item)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	page := filter.Page.Normalize()

	in := &dynamodb.ScanInput{
		TableName:      aws.String(r.tables.Orders),
		ConsistentRead: aws.Bool(true),
	}
	if filter.UserID != "" {
		expr, err := expression.NewBuilder().
			WithFilter(expression.Name("user_id").Equal(expression.Value(filter.UserID))).
			Build()
		if err != nil {
			return domain.OrderPage{}, err
		}
		in.FilterExpression = expr.Filter()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}

	var res domain.OrderPage
	next, err := scanPage(ctx, r.client, in, keyOrder, page, func(av map[string]types.AttributeValue) error {
		o, err := unmarshalOrder(av)
		if err != nil {
			return err
		}
		res.Items = append(res.Items, o)
		return nil
	})
	if err != nil {
		return domain.OrderPage{}, err
	}
	res.NextCursor = next
	return res, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	update := expression.Set(expression.Name("status"), expression.Value(string(status))).
		Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(keyOrder))).
		Build()
	if err != nil {
		return nil, err
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tables.Orders),
		Key:                       stringKey(keyOrder, orderID),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	o, err := unmarshalOrder(result.Attributes)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// BeginPlacement returns a unit that buffers its writes and submits them as
// one TransactWriteItems call at Commit.
func (r *OrderRepository) BeginPlacement(ctx context.Context) (store.Placement, error) {
	return &placement{client: r.client, tables: r.tables}, nil
}

type actionKind int

const (
	actionUser actionKind = iota
	actionDecrement
	actionOrder
	actionEvent
)

// action records what each transaction item guards, by index, so that
// cancellation reasons can be mapped back to the offending entity.
type action struct {
	kind actionKind
	id   string
}

type placement struct {
	client    API
	tables    Tables
	items     []types.TransactWriteItem
	actions   []action
	err       error
	committed bool
}

func (p *placement) add(a action, item types.TransactWriteItem, err error) error {
	if err != nil {
		p.err = err
		return err
	}
	p.items = append(p.items, item)
	p.actions = append(p.actions, a)
	return nil
}

// RequireUser bumps the user's order count so a concurrent DeleteUser cannot
// remove a user that is about to own an order.
func (p *placement) RequireUser(_ context.Context, userID string) error {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("order_count"), expression.Value(1))).
		WithCondition(expression.AttributeExists(expression.Name(keyUser)).
			And(expression.AttributeExists(expression.Name("email")))).
		Build()
	return p.add(action{kind: actionUser, id: userID}, types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(p.tables.Users),
		Key:                       stringKey(keyUser, userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, err)
}

func (p *placement) DecrementIfSufficient(_ context.Context, productID string, quantity int) error {
	update := expression.Set(
		expression.Name("stock"),
		expression.Minus(expression.Name("stock"), expression.Value(quantity)),
	).Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))

	condition := expression.AttributeExists(expression.Name(keyProduct)).
		And(expression.GreaterThanEqual(expression.Name("stock"), expression.Value(quantity)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	return p.add(action{kind: actionDecrement, id: productID}, types.TransactWriteItem{Update: &types.Update{
		TableName:                           aws.String(p.tables.Products),
		Key:                                 stringKey(keyProduct, productID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}}, err)
}

func (p *placement) CreateOrder(_ context.Context, order *domain.Order) error {
	av, err := attributevalue.MarshalMap(newOrderItem(order))
	if err != nil {
		p.err = fmt.Errorf("failed to marshal order: %w", err)
		return p.err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(keyOrder))).
		Build()
	return p.add(action{kind: actionOrder, id: order.OrderID}, types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(p.tables.Orders),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	}}, err)
}

func (p *placement) AppendEvent(_ context.Context, event events.OutboxEvent) error {
	av, err := attributevalue.MarshalMap(newOutboxItem(event))
	if err != nil {
		p.err = fmt.Errorf("failed to marshal outbox event: %w", err)
		return p.err
	}
	return p.add(action{kind: actionEvent, id: event.EventID}, types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(p.tables.Outbox),
		Item:      av,
	}}, nil)
}

func (p *placement) Commit(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}
	if len(p.items) > maxTransactItems {
		return domain.Validation(fmt.Sprintf("an order may touch at most %d items", maxTransactItems-3))
	}

	err := transactWrite(ctx, p.client, p.items, func(reasons []types.CancellationReason) error {
		return placementError(p.actions, reasons)
	})
	if err != nil {
		return err
	}
	p.committed = true
	return nil
}

// Rollback drops the buffered writes; nothing reached the table before Commit.
func (p *placement) Rollback(context.Context) error {
	if !p.committed {
		p.items, p.actions = nil, nil
	}
	return nil
}

// placementError maps the first failed condition to the domain error naming
// the user or product that caused it.
func placementError(actions []action, reasons []types.CancellationReason) error {
	idx, reason, ok := failedAt(reasons)
	if !ok || idx >= len(actions) {
		return nil
	}

	a := actions[idx]
	switch a.kind {
	case actionUser:
		return domain.ErrUserNotFound
	case actionDecrement:
		if len(reason.Item) == 0 {
			return domain.ProductNotFound(a.id)
		}
		return domain.InsufficientStock(a.id)
	case actionOrder:
		return fmt.Errorf("order %s already exists", a.id)
	}
	return nil
}
