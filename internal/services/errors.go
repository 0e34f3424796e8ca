package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("amount must not be negative")
	ErrInvalidRequest   = errors.New("invalid wager request")
	ErrWagerAlreadyOpen = errors.New("wager already open for this task")
	ErrWagerNotFound    = errors.New("no wager found for this task")
	ErrStakeMismatch    = errors.New("stake does not match the open wager")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// InsufficientFundsError reports a stake the account cannot cover. Callers
// may retry with a stake no larger than Balance.
type InsufficientFundsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient Mana: balance %d, required %d", e.Balance, e.Required)
}

func (e *InsufficientFundsError) Shortfall() int64 {
	return e.Required - e.Balance
}

// StorageError wraps any failure talking to the account store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// OracleError is any failure to obtain a usable answer from the model. It
// never reaches HTTP callers; it selects the deterministic fallback.
type OracleError struct {
	Op  string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s failed: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
