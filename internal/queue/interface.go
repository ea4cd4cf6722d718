package queue

import (
	"context"
	"time"
)

// MessageInterface is one consumed job awaiting settlement
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue carries analysis and summary jobs from the API to the worker
type JobQueue interface {
	Enqueuer

	// Consume streams due jobs, at most prefetchCount unsettled at a time.
	// The message channel closes when ctx ends or the connection drops.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error
	HealthCheck(ctx context.Context) error
}

// Enqueuer is the producer half of JobQueue, all the API and thread service need
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// DLQPurger drops dead-lettered jobs older than retention and reports how many it dropped
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
