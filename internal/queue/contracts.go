package queue

import (
	"context"

	"github.com/iago/studyhub-back/internal/domain"
)

// Handler processes one message. A non-nil error asks the backend to
// redeliver the message until its attempt budget is spent.
type Handler func(context.Context, domain.QueueMessage) error

// Producer sends async jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives async jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
