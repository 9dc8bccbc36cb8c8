package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// TransactWriteItems accepts at most this many actions.
	maxTransactItems = 100

	maxTransactAttempts = 5
	transactBackoff     = 25 * time.Millisecond

	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
)

// decodeFunc maps the cancellation reasons of a failed condition to a domain
// error. It returns nil when it does not recognise them.
type decodeFunc func(reasons []types.CancellationReason) error

// transactWrite runs items as one transaction. A cancellation caused only by
// contention with another transaction is retried: a cancelled transaction
// applied nothing.
func transactWrite(ctx context.Context, api API, items []types.TransactWriteItem, decode decodeFunc) error {
	for attempt := 1; ; attempt++ {
		_, err := api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:      items,
			ClientRequestToken: aws.String(uuid.NewString()),
		})
		if err == nil {
			return nil
		}

		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return fmt.Errorf("failed to write transaction: %w", err)
		}

		switch {
		case hasReason(tce.CancellationReasons, reasonConditionalCheckFailed):
			if derr := decode(tce.CancellationReasons); derr != nil {
				return derr
			}
			return fmt.Errorf("transaction cancelled: %w", err)
		case hasReason(tce.CancellationReasons, reasonTransactionConflict):
			if attempt == maxTransactAttempts {
				return fmt.Errorf("transaction conflict after %d attempts: %w", attempt, err)
			}
		default:
			return fmt.Errorf("transaction cancelled: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * transactBackoff):
		}
	}
}

func hasReason(reasons []types.CancellationReason, code string) bool {
	for _, r := range reasons {
		if aws.ToString(r.Code) == code {
			return true
		}
	}
	return false
}

// failedAt returns the index of the first action whose condition failed.
func failedAt(reasons []types.CancellationReason) (int, types.CancellationReason, bool) {
	for i, r := range reasons {
		if aws.ToString(r.Code) == reasonConditionalCheckFailed {
			return i, r, true
		}
	}
	return -1, types.CancellationReason{}, false
}
