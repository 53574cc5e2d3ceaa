package application

import "fmt"

// PersistenceError wraps a failure of the OrderStore.
type PersistenceError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PublishError wraps a failure of the EventPublisher for one command.
type PublishError struct {
	Command string
	OrderID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s for order %s: %v", e.Command, e.OrderID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
