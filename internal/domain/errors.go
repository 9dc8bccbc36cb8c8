package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer. Mapping a Kind to a
// status code must not depend on which storage backend produced the error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidQuantity
	KindInsufficientStock
	KindConflict
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidQuantity:
		return "invalid_quantity"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is the tagged error returned by services and repositories.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.ProductID != "" {
		msg = fmt.Sprintf("%s: product %s", msg, e.ProductID)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that errors carrying a product id still satisfy
// errors.Is against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Code: "validation_failed", Message: "validation failed"}
	ErrEmptyOrder        = &Error{Kind: KindValidation, Code: "empty_order", Message: "order must contain at least one item"}
	ErrDuplicateLineItem = &Error{Kind: KindValidation, Code: "duplicate_line_item", Message: "product listed more than once"}
	ErrInvalidQuantity   = &Error{Kind: KindInvalidQuantity, Code: "invalid_quantity", Message: "quantity must be a positive integer"}
	ErrInvalidPrice      = &Error{Kind: KindValidation, Code: "invalid_price", Message: "price must be between 0 and 9999999999.99 with at most two decimal places"}
	ErrInvalidStatus     = &Error{Kind: KindValidation, Code: "invalid_status", Message: "unknown order status"}

	ErrProductNotFound = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "product not found"}
	ErrUserNotFound    = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "user not found"}
	ErrOrderNotFound   = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}

	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Code: "insufficient_stock", Message: "insufficient stock"}

	ErrProductExists = &Error{Kind: KindConflict, Code: "product_exists", Message: "product already exists"}
	ErrUserExists    = &Error{Kind: KindConflict, Code: "user_exists", Message: "user with this email already exists"}
	ErrUserHasOrders = &Error{Kind: KindConflict, Code: "user_has_orders", Message: "user still owns orders"}

	ErrStorage = &Error{Kind: KindStorage, Code: "storage_failure", Message: "storage failure"}
)

func withProduct(base *Error, productID string) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, ProductID: productID}
}

// InsufficientStock reports the product whose stock could not cover the request.
func InsufficientStock(productID string) error { return withProduct(ErrInsufficientStock, productID) }

func ProductNotFound(productID string) error { return withProduct(ErrProductNotFound, productID) }

func InvalidQuantity(productID string) error { return withProduct(ErrInvalidQuantity, productID) }

func DuplicateLineItem(productID string) error { return withProduct(ErrDuplicateLineItem, productID) }

// StockOverflow rejects a restock that would lift stock above MaxStock.
func StockOverflow(productID string) error {
	e := withProduct(ErrInvalidQuantity, productID)
	e.Message = fmt.Sprintf("restock would exceed the maximum stock of %d", MaxStock)
	return e
}

// Validation wraps a malformed-input failure.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: msg}
}

// Storage tags an infrastructure failure. Domain errors pass through untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorage, Code: ErrStorage.Code, Message: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// ProductIDOf returns the product an error refers to, if any.
func ProductIDOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.ProductID
	}
	return ""
}
