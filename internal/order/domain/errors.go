package domain

import (
	"errors"
	"strings"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	// ErrConflict is returned by stores when an update was computed from a stale snapshot.
	ErrConflict = errors.New("order was modified concurrently")
)

// ValidationError carries every violated field rule, not only the first one.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, ", ")
}
