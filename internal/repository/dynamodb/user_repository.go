package dynamodb

import (
	"context"
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

// UserRepository keeps emails unique with marker items in the same table:
// the user and its marker are always written in one transaction.
type UserRepository struct {
	client    API
	tableName string
}

func NewUserRepository(client API, tableName string) *UserRepository {
	return &UserRepository{client: client, tableName: tableName}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	userAV, err := attributevalue.MarshalMap(userItem{
		UserID:    user.UserID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	notExists, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(keyUser))).
		Build()
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:                aws.String(r.tableName),
			Item:                     userAV,
			ConditionExpression:      notExists.Condition(),
			ExpressionAttributeNames: notExists.Names(),
		}},
		r.putMarker(user.Email, user.UserID, notExists),
	}
	return transactWrite(ctx, r.client, items, func([]types.CancellationReason) error {
		return domain.ErrUserExists
	})
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	it, err := r.getItem(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := it.toDomain()
	return &u, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, page domain.Page) (domain.UserPage, error) {
	page = page.Normalize()

	expr, err := expression.NewBuilder().
		WithFilter(expression.AttributeExists(expression.Name("email"))).
		Build()
	if err != nil {
		return domain.UserPage{}, err
	}

	in := &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		ConsistentRead:            aws.Bool(true),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var res domain.UserPage
	next, err := scanPage(ctx, r.client, in, keyUser, page, func(av map[string]types.AttributeValue) error {
		var it userItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}
		res.Items = append(res.Items, it.toDomain())
		return nil
	})
	if err != nil {
		return domain.UserPage{}, err
	}
	res.NextCursor = next
	return res, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	current, err := r.getItem(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := expression.Set(expression.Name("updated_at"), expression.Value(now))
	if req.Name != nil {
		update = update.Set(expression.Name("name"), expression.Value(*req.Name))
		current.Name = *req.Name
	}
	emailChanged := req.Email != nil && *req.Email != current.Email
	if emailChanged {
		update = update.Set(expression.Name("email"), expression.Value(*req.Email))
	}

	// The email guard fails the write if another update moved the email
	// between the read above and this transaction.
	cond := expression.AttributeExists(expression.Name(keyUser)).
		And(expression.Name("email").Equal(expression.Value(current.Email)))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, err
	}

	items := []types.TransactWriteItem{{Update: &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       stringKey(keyUser, userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}}
	if emailChanged {
		notExists, err := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name(keyUser))).
			Build()
		if err != nil {
			return nil, err
		}
		items = append(items,
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       stringKey(keyUser, emailMarkerKey(current.Email)),
			}},
			r.putMarker(*req.Email, userID, notExists),
		)
	}

	err = transactWrite(ctx, r.client, items, func(reasons []types.CancellationReason) error {
		idx, _, _ := failedAt(reasons)
		if idx == len(items)-1 && emailChanged {
			return domain.ErrUserExists
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if emailChanged {
		current.Email = *req.Email
	}
	current.UpdatedAt = now
	u := current.toDomain()
	return &u, nil
}

// DeleteUser refuses users with orders through the order_count condition, so
// a placement racing with the delete either lands first and blocks it or
// fails its own user check.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	current, err := r.getItem(ctx, userID)
	if err != nil {
		return err
	}

	cond := expression.AttributeExists(expression.Name(keyUser)).
		And(expression.Name("order_count").Equal(expression.Value(0)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:                           aws.String(r.tableName),
			Key:                                 stringKey(keyUser, userID),
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}},
		{Delete: &types.Delete{
			TableName: aws.String(r.tableName),
			Key:       stringKey(keyUser, emailMarkerKey(current.Email)),
		}},
	}
	return transactWrite(ctx, r.client, items, func(reasons []types.CancellationReason) error {
		idx, reason, ok := failedAt(reasons)
		if !ok || idx != 0 {
			return nil
		}
		if len(reason.Item) == 0 {
			return domain.ErrUserNotFound
		}
		return domain.ErrUserHasOrders
	})
}

func (r *UserRepository) getItem(ctx context.Context, userID string) (userItem, error) {
	if strings.HasPrefix(userID, emailMarkerPrefix) {
		return userItem{}, domain.ErrUserNotFound
	}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            stringKey(keyUser, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return userItem{}, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return userItem{}, domain.ErrUserNotFound
	}

	var it userItem
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return userItem{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return it, nil
}

func (r *UserRepository) putMarker(email, owner string, notExists expression.Expression) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			keyUser: &types.AttributeValueMemberS{Value: emailMarkerKey(email)},
			"owner": &types.AttributeValueMemberS{Value: owner},
		},
		ConditionExpression:      notExists.Condition(),
		ExpressionAttributeNames: notExists.Names(),
	}}
}
