package engine

import "fmt"

// RejectionError is a domain-level rejection of a mutating request (bad
// symbol, insufficient balance, duplicate token id, ...). The HTTP layer
// maps it to 400 with Reason as the detail message.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func reject(format string, args ...interface{}) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError means the referenced order does not exist. The HTTP layer
// maps it to 404.
type NotFoundError struct {
	TokenID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("order %q not found", e.TokenID) }
