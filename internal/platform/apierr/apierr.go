// Package apierr maps domain failures onto HTTP statuses and wire codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// StatusFor is the HTTP status for a domain error code.
func StatusFor(code assessment.ErrorCode) int {
	switch code {
	case assessment.CodeValidation:
		return http.StatusBadRequest
	case assessment.CodeNotFound:
		return http.StatusNotFound
	case assessment.CodeInvalidTransition, assessment.CodeConcurrentModification:
		return http.StatusConflict
	case assessment.CodeCollaboratorTimeout:
		return http.StatusGatewayTimeout
	case assessment.CodePersistenceFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts any error into an *Error. Unclassified errors become
// internal failures with their message hidden.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	code := assessment.CodeOf(err)
	if code == "" {
		return New(http.StatusInternalServerError, string(assessment.CodeInternal), errors.New("internal error"))
	}
	out := New(StatusFor(code), string(code), err)
	switch code {
	case assessment.CodeInternal, assessment.CodePersistenceFailure:
		out.Err = errors.New(http.StatusText(out.Status))
	default:
		var de *assessment.Error
		if errors.As(err, &de) && de.Message != "" {
			out.Err = errors.New(de.Message)
		}
	}
	return out
}
