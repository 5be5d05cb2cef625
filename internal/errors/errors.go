// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrMarketClosed        = errors.New("market is closed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient sellable shares")
	ErrLiquidityExhausted  = errors.New("daily liquidity exhausted")
	ErrStockNotFound       = errors.New("stock not found")
	ErrStockExists         = errors.New("ticker already listed")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidValue        = errors.New("invalid value")
	ErrNotListed           = errors.New("stock is not a listed issue")
	ErrLedgerFailure       = errors.New("ledger failure")
	ErrTickFailure         = errors.New("simulation tick failure")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDataNotFound        = errors.New("data not found")
	ErrDatabaseError       = errors.New("database error")
	ErrNotificationFailure = errors.New("notification failure")
)

// OrderError represents an error related to order operations.
type OrderError struct {
	UserID string
	Ticker string
	Side   string
	Reason string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.UserID, e.Side, e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.UserID, e.Side, e.Ticker, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(userID, ticker, side, reason string, err error) *OrderError {
	return &OrderError{
		UserID: userID,
		Ticker: ticker,
		Side:   side,
		Reason: reason,
		Err:    err,
	}
}

// TickError reports a failure while advancing the simulation.
type TickError struct {
	Ticker string
	Stage  string
	Err    error
}

func (e *TickError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("tick error [%s]: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("tick error [%s] %s: %v", e.Stage, e.Ticker, e.Err)
}

func (e *TickError) Unwrap() []error {
	return []error{ErrTickFailure, e.Err}
}

// NewTickError creates a new TickError.
func NewTickError(ticker, stage string, err error) *TickError {
	return &TickError{
		Ticker: ticker,
		Stage:  stage,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError wrapping the sentinel err.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// DataError represents a persistence error.
type DataError struct {
	DataType string
	Ticker   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, ticker, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Ticker:   ticker,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
