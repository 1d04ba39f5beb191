package services

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Domain error taxonomy. Handlers map these to HTTP statuses; anything not
// matched is reported as an internal storage error and must not be assumed
// transient by callers.

// NotFoundError means a referenced master or ledger row does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// InvalidInputError means a required field is missing or malformed.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError means an outflow transaction exceeds the parent's
// current balance. Current and Requested are preformatted for display.
type InsufficientBalanceError struct {
	Current   string
	Requested string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: current %s, requested %s", e.Current, e.Requested)
}

// ConflictError means a unique natural key already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func httpStatus(err error) int {
	var (
		notFound     *NotFoundError
		invalid      *InvalidInputError
		insufficient *InsufficientBalanceError
		conflict     *ConflictError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &insufficient):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
