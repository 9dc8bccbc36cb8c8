package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
)

type OutboxStore struct {
	client    API
	tableName string
}

func NewOutboxStore(client API, tableName string) *OutboxStore {
	return &OutboxStore{client: client, tableName: tableName}
}

func claimable(now int64) expression.ConditionBuilder {
	return expression.Name("status").Equal(expression.Value(string(events.StatusPending))).
		Or(expression.Name("status").Equal(expression.Value(string(events.StatusInProgress))).
			And(expression.Name("lease_until").LessThan(expression.Value(now))))
}

// LockBatch scans for claimable events and claims each one with a
// conditional update; an event another relay claimed first is skipped.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]events.OutboxEvent, error) {
	now := time.Now()
	filter, err := expression.NewBuilder().WithFilter(claimable(now.UnixMilli())).Build()
	if err != nil {
		return nil, err
	}

	var candidates []outboxItem
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          filter.Filter(),
		ExpressionAttributeNames:  filter.Names(),
		ExpressionAttributeValues: filter.Values(),
		ConsistentRead:            aws.Bool(true),
	}
	for len(candidates) < batchSize {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox: %w", err)
		}
		for _, av := range out.Items {
			var it outboxItem
			if err := attributevalue.UnmarshalMap(av, &it); err != nil {
				return nil, fmt.Errorf("failed to unmarshal outbox event: %w", err)
			}
			candidates = append(candidates, it)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}

	update := expression.Set(expression.Name("status"), expression.Value(string(events.StatusInProgress))).
		Set(expression.Name("relay_id"), expression.Value(relayID)).
		Set(expression.Name("lease_until"), expression.Value(now.Add(lease).UnixMilli()))
	claim, err := expression.NewBuilder().WithUpdate(update).WithCondition(claimable(now.UnixMilli())).Build()
	if err != nil {
		return nil, err
	}

	batch := make([]events.OutboxEvent, 0, len(candidates))
	for _, it := range candidates {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       stringKey(keyEvent, it.EventID),
			UpdateExpression:          claim.Update(),
			ConditionExpression:       claim.Condition(),
			ExpressionAttributeNames:  claim.Names(),
			ExpressionAttributeValues: claim.Values(),
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		ev := it.toEvent()
		ev.Status = events.StatusInProgress
		batch = append(batch, ev)
	}
	return batch, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []string) error {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("status"), expression.Value(string(events.StatusSent))).
			Remove(expression.Name("lease_until"))).
		Build()
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       stringKey(keyEvent, id),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return fmt.Errorf("failed to mark outbox event %s sent: %w", id, err)
		}
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, errMsg string, maxAttempts int) error {
	update := expression.Add(expression.Name("attempts"), expression.Value(1)).
		Set(expression.Name("last_error"), expression.Value(errMsg)).
		Set(expression.Name("status"), expression.Value(string(events.StatusPending))).
		Set(expression.Name("lease_until"), expression.Value(int64(0)))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return err
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       stringKey(keyEvent, id),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s failed: %w", id, err)
	}

	var it outboxItem
	if err := attributevalue.UnmarshalMap(result.Attributes, &it); err != nil {
		return fmt.Errorf("failed to unmarshal outbox event: %w", err)
	}
	if it.Attempts < maxAttempts {
		return nil
	}

	park, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("status"), expression.Value(string(events.StatusFailed)))).
		Build()
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       stringKey(keyEvent, id),
		UpdateExpression:          park.Update(),
		ExpressionAttributeNames:  park.Names(),
		ExpressionAttributeValues: park.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to park outbox event %s: %w", id, err)
	}
	return nil
}
