package finality

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vietddude/finality/internal/core/domain"
)

// ErrTransactionNotFound marks a query for a transaction the node does not know yet.
var ErrTransactionNotFound = errors.New("transaction not found")

// QueryError is a status query failure carrying an optional HTTP status code.
type QueryError struct {
	Code int // 0 when the failure never reached the node
	Body string
	Err  error
}

func (e *QueryError) Error() string {
	switch {
	case e.Code != 0 && e.Err != nil:
		return fmt.Sprintf("status query: http %d: %v", e.Code, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("status query: http %d: %s", e.Code, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("status query: %v", e.Err)
	default:
		return "status query failed"
	}
}

func (e *QueryError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status code of the failed query.
func (e *QueryError) StatusCode() int { return e.Code }

// FatalError terminates a wait session.
type FatalError struct {
	Ref       domain.TransactionRef
	Queries   int
	Exhausted bool // not-found retry budget ran out
	Err       error
}

func (e *FatalError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("transaction %s still not found after %d queries: %v", e.Ref, e.Queries, e.Err)
	}
	return fmt.Sprintf("finality check for %s failed at query %d: %v", e.Ref, e.Queries, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ErrorAction determines how the waiter handles a query failure.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError determines the action for a given query error.
// Only not-found failures are retried; everything else is fatal.
func ClassifyError(err error) ErrorAction {
	if IsNotFound(err) {
		return ActionRetry
	}
	return ActionFatal
}

// IsNotFound reports whether err means the node has not indexed the transaction yet.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransactionNotFound) {
		return true
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode() == http.StatusNotFound
	}
	return false
}
