package input

import "context"

// Source delivers raw sensor records one at a time.
type Source interface {
	// Next blocks until a record arrives or ctx ends. A nil record with a
	// nil error means nothing arrived in this poll.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}
