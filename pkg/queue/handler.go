package queue

import (
	"context"
	"encoding/json"
)

type (
	// Handler executes jobs of a single named type. Name is the job-type
	// identifier used for registry lookup; the payload contract is defined
	// by the handler, not by the queue.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	JobHandlerFunc[T any]   func(ctx context.Context, payload T) error
	PeriodicJobHandlerFunc  func(ctx context.Context) error
)

// NewJobHandler wraps a typed function into a Handler. The handler name is
// derived from the payload type, matching the name Enqueue derives for the
// same payload.
func NewJobHandler[T any](handler JobHandlerFunc[T]) Handler {
	var payload T
	return &jobHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewNamedJobHandler wraps a typed function into a Handler with an explicit
// name, for job types enqueued under a custom name.
func NewNamedJobHandler[T any](name string, handler JobHandlerFunc[T]) Handler {
	return &jobHandler[T]{
		name:    name,
		handler: handler,
	}
}

// NewPeriodicJobHandler wraps a payload-less function for scheduler-generated jobs.
func NewPeriodicJobHandler(name string, handler PeriodicJobHandlerFunc) Handler {
	return &periodicJobHandler{
		name:    name,
		handler: handler,
	}
}

type jobHandler[T any] struct {
	name    string
	handler JobHandlerFunc[T]
}

func (h *jobHandler[T]) Name() string {
	return h.name
}

func (h *jobHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		// A payload that cannot be decoded will not decode on retry either.
		return Fatal(err)
	}
	return h.handler(ctx, t)
}

type periodicJobHandler struct {
	name    string
	handler PeriodicJobHandlerFunc
}

func (h *periodicJobHandler) Name() string {
	return h.name
}

func (h *periodicJobHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
