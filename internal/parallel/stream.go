package parallel

import (
	"context"
	"fmt"
	"iter"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/vk/gridfleet/internal/ctxlog"
)

// DefaultPollInterval is how long the coordinator waits for an outcome before
// running admission again.
const DefaultPollInterval = 100 * time.Millisecond

// WorkFunc is the operation run once for each object.
type WorkFunc[T comparable, R any] func(ctx context.Context, obj T) (R, error)

// NameFunc returns the display name of an object. Names must be unique within
// a run.
type NameFunc[T comparable] func(obj T) string

// DepsFunc returns the objects that must finish before obj may start.
// Dependencies that are not part of the run are treated as already finished.
type DepsFunc[T comparable] func(obj T) []T

// NoDeps is the DepsFunc used when none is given.
func NoDeps[T comparable](T) []T { return nil }

// Event is the outcome of one object. Exactly one of Result and Err is
// meaningful: Err is nil on success.
type Event[T comparable, R any] struct {
	Object T
	Result R
	Err    error
}

// message is what travels on the outcome channel: either an event or the
// marker that ends the run.
type message[T comparable, R any] struct {
	event Event[T, R]
	stop  bool
}

// Stream schedules work over a set of objects and exposes the outcomes as a
// sequence. A Stream can be consumed only once.
type Stream[T comparable, R any] struct {
	objects []T
	work    WorkFunc[T, R]
	deps    map[T][]T
	poll    time.Duration

	state    *state[T]
	results  chan message[T, R]
	stopped  bool
	consumed atomic.Bool
	err      error
}

// NewStream prepares a run over objects. Duplicate objects are ignored. deps
// may be nil; it is called once per object. A poll of zero or less selects
// DefaultPollInterval.
//
// NewStream does not check for dependency cycles. Objects on a cycle are never
// admitted and the stream only ends when its context is cancelled; use
// FindCycle first to reject such input.
func NewStream[T comparable, R any](objects []T, work WorkFunc[T, R], deps DepsFunc[T], poll time.Duration) *Stream[T, R] {
	if deps == nil {
		deps = NoDeps[T]
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	objects = unique(objects)
	depMap := make(map[T][]T, len(objects))
	for _, obj := range objects {
		depMap[obj] = deps(obj)
	}

	return &Stream[T, R]{
		objects: objects,
		work:    work,
		deps:    depMap,
		poll:    poll,
		state:   newState(objects),
		// One event per object plus the stop marker: sends never block, so
		// workers abandoned after a shutdown can still exit.
		results: make(chan message[T, R], len(objects)+1),
	}
}

// Events returns the outcomes in the order they are observed, one per object.
// Workers are started lazily as the sequence is consumed. Breaking out of the
// loop early abandons running workers.
//
// If the context is cancelled before the run completes, the sequence ends and
// Err reports ErrShutdown. Ranging over Events a second time yields nothing.
func (s *Stream[T, R]) Events(ctx context.Context) iter.Seq[Event[T, R]] {
	return func(yield func(Event[T, R]) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			return
		}
		logger := ctxlog.FromContext(ctx)

		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		for {
			s.feed(ctx)

			select {
			case <-ctx.Done():
				logger.Warn("Run interrupted before all objects finished.", "cause", context.Cause(ctx))
				s.err = fmt.Errorf("%w: %w", ErrShutdown, context.Cause(ctx))
				return
			case <-ticker.C:
				continue
			case msg := <-s.results:
				if msg.stop {
					logger.Debug("All objects processed.")
					return
				}

				ev := msg.event
				if ev.Err == nil {
					logger.Debug("Finished processing.", "object", ev.Object)
					s.state.finish(ev.Object)
				} else {
					logger.Debug("Failed.", "object", ev.Object, "error", ev.Err)
					s.state.fail(ev.Object)
				}

				if !yield(ev) {
					return
				}
			}
		}
	}
}

// Err returns ErrShutdown (wrapping the context's cause) if the sequence ended
// because its context was cancelled, and nil otherwise.
func (s *Stream[T, R]) Err() error {
	return s.err
}

// feed starts a worker for every pending object whose dependencies have all
// finished, and fails every pending object with a failed dependency. Once the
// run is done it publishes the stop marker, exactly once.
func (s *Stream[T, R]) feed(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	pending := s.state.pending()
	if len(pending) > 0 {
		logger.Debug("Admission pass.", "pending", len(pending))
	}

	for _, obj := range pending {
		deps := s.deps[obj]

		if dep, ok := s.failedDependency(deps); ok {
			logger.Debug("Upstream failure, not processing.", "object", obj, "dependency", dep)
			s.state.fail(obj)
			s.results <- message[T, R]{event: Event[T, R]{Object: obj, Err: &UpstreamError{Dependency: dep}}}
			continue
		}

		if s.satisfied(deps) {
			logger.Debug("Starting worker.", "object", obj)
			s.state.start(obj)
			go s.produce(ctx, obj)
		}
	}

	if !s.stopped && s.state.isDone() {
		s.stopped = true
		s.results <- message[T, R]{stop: true}
	}
}

func (s *Stream[T, R]) failedDependency(deps []T) (T, bool) {
	for _, dep := range deps {
		if s.state.isFailed(dep) {
			return dep, true
		}
	}
	var zero T
	return zero, false
}

func (s *Stream[T, R]) satisfied(deps []T) bool {
	for _, dep := range deps {
		if _, inRun := s.deps[dep]; !inRun {
			continue
		}
		if !s.state.isFinished(dep) {
			return false
		}
	}
	return true
}

// produce runs the work function for a single object on its own goroutine and
// publishes the outcome. A panic in the work function becomes a *PanicError.
func (s *Stream[T, R]) produce(ctx context.Context, obj T) {
	var (
		result R
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			var zero R
			result = zero
		}
		s.results <- message[T, R]{event: Event[T, R]{Object: obj, Result: result, Err: err}}
	}()

	result, err = s.work(ctx, obj)
}

func unique[T comparable](objects []T) []T {
	seen := make(map[T]struct{}, len(objects))
	out := make([]T, 0, len(objects))
	for _, obj := range objects {
		if _, ok := seen[obj]; ok {
			continue
		}
		seen[obj] = struct{}{}
		out = append(out, obj)
	}
	return out
}
