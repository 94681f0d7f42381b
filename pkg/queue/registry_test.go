package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

type registryTestPayload struct {
	Value int `json:"value"`
}

func noopHandler(name string) queue.Handler {
	return queue.NewNamedJobHandler(name, func(ctx context.Context, payload registryTestPayload) error {
		return nil
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("register and get", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()
		r.Register(noopHandler("send-email"))

		h, err := r.Get("send-email")
		require.NoError(t, err)
		assert.Equal(t, "send-email", h.Name())
	})

	t.Run("last write wins on duplicate name", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()

		var called string
		r.Register(queue.NewNamedJobHandler("job", func(ctx context.Context, payload registryTestPayload) error {
			called = "first"
			return nil
		}))
		r.Register(queue.NewNamedJobHandler("job", func(ctx context.Context, payload registryTestPayload) error {
			called = "second"
			return nil
		}))

		assert.Equal(t, 1, r.Len())

		h, err := r.Get("job")
		require.NoError(t, err)
		require.NoError(t, h.Handle(context.Background(), []byte(`{"value":1}`)))
		assert.Equal(t, "second", called)
	})

	t.Run("nil handlers are skipped", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()
		r.Register(nil, noopHandler("real"))

		assert.Equal(t, 1, r.Len())
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()

	h, err := r.Get("missing")
	assert.Nil(t, h)
	assert.ErrorIs(t, err, queue.ErrHandlerNotFound)
}

func TestRegistry_Has(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()
	r.Register(noopHandler("present"))

	assert.True(t, r.Has("present"))
	assert.False(t, r.Has("absent"))
}

func TestRegistry_List(t *testing.T) {
	t.Parallel()

	r := queue.NewRegistry()
	r.Register(noopHandler("charlie"), noopHandler("alpha"), noopHandler("bravo"))

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, r.List())
}

func TestRegistry_ValidateRequired(t *testing.T) {
	t.Parallel()

	t.Run("all present", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()
		r.Register(noopHandler("a"), noopHandler("b"))

		assert.NoError(t, r.ValidateRequired("a", "b"))
	})

	t.Run("missing names listed in error", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()
		r.Register(noopHandler("a"))

		err := r.ValidateRequired("a", "b", "c")
		require.ErrorIs(t, err, queue.ErrHandlerNotFound)
		assert.Contains(t, err.Error(), "b")
		assert.Contains(t, err.Error(), "c")
	})

	t.Run("empty requirement passes", func(t *testing.T) {
		t.Parallel()

		r := queue.NewRegistry()
		assert.NoError(t, r.ValidateRequired())
	})
}
