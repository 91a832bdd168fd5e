package model

import (
	"errors"
	"fmt"
)

// Таксономия ошибок ядра бронирования
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrCapacityExceeded  = errors.New("session capacity exceeded")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrBelowMinimum      = errors.New("charge amount below processor minimum")
	ErrConflict          = errors.New("conflict")
	ErrUnavailable       = errors.New("service unavailable")
	ErrProcessorDeclined = errors.New("payment declined by processor")
)

// ValidationError описывает некорректное входное поле
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создаёт ошибку валидации для поля
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BelowMinimumError несёт минимальную сумму, которую принимает процессор
type BelowMinimumError struct {
	Amount   int64
	Floor    int64
	Currency string
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("charge amount %d %s is below minimum %d %s", e.Amount, e.Currency, e.Floor, e.Currency)
}

func (e *BelowMinimumError) Is(target error) bool {
	return target == ErrBelowMinimum
}
