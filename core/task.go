package core

import (
	"context"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskID identifies one scheduled unit of work.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero TaskID.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// Context Helper
// =============================================================================
type queueKeyType struct{}

var queueKey queueKeyType

// CurrentQueue returns the Queue executing the task that owns ctx, or nil
// when ctx was not produced by a queue worker.
func CurrentQueue(ctx context.Context) Queue {
	if v := ctx.Value(queueKey); v != nil {
		return v.(Queue)
	}
	return nil
}

func withQueue(ctx context.Context, q Queue) context.Context {
	return context.WithValue(ctx, queueKey, q)
}
