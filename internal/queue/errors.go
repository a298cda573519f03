package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations invoked before Connect.
	ErrNotConnected = errors.New("queue client not connected")
	// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
	ErrAlreadySettled = errors.New("delivery already settled")
)

// ConnectionError reports a transport failure while connecting to the broker.
// Callers decide whether to retry.
type ConnectionError struct {
	Address string
	Cause   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to queue broker %s: %v", e.Address, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }
