package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

// BatchGetItem accepts at most this many keys per call.
const batchGetLimit = 100

type ProductRepository struct {
	client    API
	tableName string
}

func NewProductRepository(client API, tableName string) *ProductRepository {
	return &ProductRepository{
		client:    client,
		tableName: tableName,
	}
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	av, err := attributevalue.MarshalMap(newProductItem(product))
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(keyProduct))).
		Build()
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.ErrProductExists
		}
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            stringKey(keyProduct, productID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return nil, domain.ErrProductNotFound
	}

	product, err := unmarshalProduct(result.Item)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *ProductRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for start := 0; start < len(ids); start += batchGetLimit {
		end := min(start+batchGetLimit, len(ids))

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, stringKey(keyProduct, id))
		}

		request := map[string]types.KeysAndAttributes{
			r.tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
		}
		for len(request) > 0 {
			result, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get items: %w", err)
			}
			for _, av := range result.Responses[r.tableName] {
				p, err := unmarshalProduct(av)
				if err != nil {
					return nil, err
				}
				out[p.ProductID] = p
			}
			request = result.UnprocessedKeys
		}
	}
	return out, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	page := filter.Page.Normalize()

	in := &dynamodb.ScanInput{
		TableName:      aws.String(r.tableName),
		ConsistentRead: aws.Bool(true),
	}

	var conds []expression.ConditionBuilder
	if filter.Category != "" {
		conds = append(conds, expression.Name("category_key").Equal(expression.Value(strings.ToLower(filter.Category))))
	}
	if filter.MinPrice != nil {
		conds = append(conds, expression.Name("price").GreaterThanEqual(expression.Value(attributevalue.Number(filter.MinPrice.String()))))
	}
	if filter.MaxPrice != nil {
		conds = append(conds, expression.Name("price").LessThanEqual(expression.Value(attributevalue.Number(filter.MaxPrice.String()))))
	}
	if len(conds) > 0 {
		cond := conds[0]
		for _, c := range conds[1:] {
			cond = cond.And(c)
		}
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return domain.ProductPage{}, err
		}
		in.FilterExpression = expr.Filter()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}

	var res domain.ProductPage
	next, err := scanPage(ctx, r.client, in, keyProduct, page, func(av map[string]types.AttributeValue) error {
		p, err := unmarshalProduct(av)
		if err != nil {
			return err
		}
		res.Items = append(res.Items, p)
		return nil
	})
	if err != nil {
		return domain.ProductPage{}, err
	}
	res.NextCursor = next
	return res, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	update := expression.Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))
	if req.Name != nil {
		update = update.Set(expression.Name("name"), expression.Value(*req.Name))
	}
	if req.Category != nil {
		update = update.Set(expression.Name("category"), expression.Value(*req.Category)).
			Set(expression.Name("category_key"), expression.Value(strings.ToLower(*req.Category)))
	}
	if req.Price != nil {
		update = update.Set(expression.Name("price"), expression.Value(attributevalue.Number(req.Price.String())))
	}

	return r.updateExisting(ctx, productID, update, nil, nil)
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, productID string) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(keyProduct))).
		Build()
	if err != nil {
		return err
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      stringKey(keyProduct, productID),
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Restock adds quantity with an atomic ADD, guarded so the result never
// exceeds domain.MaxStock.
func (r *ProductRepository) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	update := expression.Add(expression.Name("stock"), expression.Value(quantity)).
		Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))
	guard := expression.Name("stock").LessThanEqual(expression.Value(domain.MaxStock - quantity))

	return r.updateExisting(ctx, productID, update, &guard, domain.StockOverflow(productID))
}

// updateExisting applies update to an existing product. When guard is set and
// fails on an existing item, guardErr is returned instead of not found.
func (r *ProductRepository) updateExisting(ctx context.Context, productID string, update expression.UpdateBuilder, guard *expression.ConditionBuilder, guardErr error) (*domain.Product, error) {
	cond := expression.AttributeExists(expression.Name(keyProduct))
	if guard != nil {
		cond = cond.And(*guard)
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(cond).
		Build()
	if err != nil {
		return nil, err
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 stringKey(keyProduct, productID),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) > 0 && guardErr != nil {
				return nil, guardErr
			}
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	product, err := unmarshalProduct(result.Attributes)
	if err != nil {
		return nil, err
	}
	return &product, nil
}
