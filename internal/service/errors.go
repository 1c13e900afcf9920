package service

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Error kinds surfaced to the calling layer. Match them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyDecided  = errors.New("approval step already decided")
	ErrOutOfOrder      = errors.New("approval step is not yet due")
	ErrAlreadyTerminal = errors.New("request is already closed")
	ErrTimeout         = errors.New("storage timeout")
	ErrEffectExecution = errors.New("downstream effect failed")
)

// ValidationError describes a rejected input field. It is never worth retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// EffectError reports that the downstream resource for a request could not be created.
// The approval that triggered it was rolled back.
type EffectError struct {
	RequestID  uuid.UUID
	EffectType model.EffectType
	Err        error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("%s effect for request %s: %v", e.EffectType, e.RequestID, e.Err)
}

func (e *EffectError) Is(target error) bool { return target == ErrEffectExecution }

func (e *EffectError) Unwrap() error { return e.Err }

// storeErr classifies a storage error: missing rows become ErrNotFound and an
// exceeded deadline becomes ErrTimeout, whatever the driver reported. Typed
// workflow errors pass through.
func storeErr(ctx context.Context, err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isWorkflowError(err):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", what, ErrTimeout, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isWorkflowError(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrAlreadyDecided, ErrOutOfOrder, ErrAlreadyTerminal, ErrTimeout, ErrEffectExecution} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
