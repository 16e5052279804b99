package jobqueue

import (
	"errors"

	"github.com/samber/lo"

	"github.com/photonqc/scheduler/internal/common"
	"github.com/photonqc/scheduler/internal/services/priority"
)

// ErrUnknownBackend reports a queue lookup for a backend the container
// does not manage.
var ErrUnknownBackend = errors.New("unknown backend")

// unifiedQueueName is the virtual backend name used when all backends
// share one queue.
const unifiedQueueName = "all"

// Container holds one queue per backend, or a single shared queue when
// backend unification is on. All queues share one priority factory so
// burst scores are process-wide.
type Container struct {
	unify  bool
	queues map[string]*Queue
}

// NewContainer creates the per-backend queues. With unify set, every
// lookup resolves to one shared queue regardless of backend name.
func NewContainer(backends []string, opts Options, clock common.Clock, unify bool) *Container {
	factory := priority.NewDefaultFactory()

	if unify {
		return &Container{
			unify:  true,
			queues: map[string]*Queue{unifiedQueueName: NewQueue(opts, clock, factory)},
		}
	}

	return &Container{
		queues: lo.SliceToMap(backends, func(backend string) (string, *Queue) {
			return backend, NewQueue(opts, clock, factory)
		}),
	}
}

// Contains reports whether the backend resolves to a queue. Always
// true under unification.
func (c *Container) Contains(backend string) bool {
	if c.unify {
		return true
	}
	_, ok := c.queues[backend]
	return ok
}

// Get returns the queue for a backend.
func (c *Container) Get(backend string) (*Queue, error) {
	if c.unify {
		return c.queues[unifiedQueueName], nil
	}
	q, ok := c.queues[backend]
	if !ok {
		return nil, ErrUnknownBackend
	}
	return q, nil
}

// Backends returns the managed queue names.
func (c *Container) Backends() []string {
	return lo.Keys(c.queues)
}
