package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("aggregate validation")
	// ErrInvariant indicates a lifecycle rule violation.
	ErrInvariant = errors.New("aggregate invariant violation")
	// ErrConflict indicates optimistic/concurrency conflict.
	ErrConflict = errors.New("aggregate conflict")
	// ErrRetryable indicates transient retryable failure.
	ErrRetryable = errors.New("aggregate retryable")
)

// ValidationError tags an error as validation failure.
func ValidationError(msg string) error {
	return errors.Join(ErrValidation, errors.New(strings.TrimSpace(msg)))
}

// InvariantError tags an error as invariant violation.
func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

// ConflictError tags an error as conflict failure.
func ConflictError(msg string) error {
	return errors.Join(ErrConflict, errors.New(strings.TrimSpace(msg)))
}

// RetryableError tags an error as retryable failure.
func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

// MapError maps infrastructure failures into assessment error codes.
// Transient failures map to persistence_failure and keep ErrRetryable in the chain.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*assessment.Error); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return assessment.Wrap(assessment.CodeValidation, op, err)
	case errors.Is(err, ErrInvariant):
		return assessment.Wrap(assessment.CodeInvalidTransition, op, err)
	case errors.Is(err, ErrConflict):
		return assessment.Wrap(assessment.CodeConcurrentModification, op, err)
	case errors.Is(err, ErrRetryable):
		return assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return assessment.Wrap(assessment.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retryable(op, err)
	}
	var domErr *assessment.Error
	if errors.As(err, &domErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return assessment.Wrap(assessment.CodeConcurrentModification, op, err) // unique_violation
		case "40001", "40P01", "55P03":
			return retryable(op, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "already exists"):
		return assessment.Wrap(assessment.CodeConcurrentModification, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"):
		return retryable(op, err)
	default:
		return assessment.Wrap(assessment.CodePersistenceFailure, op, err)
	}
}

func retryable(op string, err error) error {
	return assessment.NewError(assessment.CodePersistenceFailure, op, err.Error(), errors.Join(ErrRetryable, err))
}

// IsRetryable reports whether err is a transient storage failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
