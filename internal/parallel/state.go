package parallel

// state holds the progress of a partially complete run.
//
//	started:  objects handed to a worker
//	finished: objects whose work succeeded
//	failed:   objects whose work failed, or whose dependencies failed
//
// It is owned by the coordinator goroutine and needs no locking. Objects are
// only ever added to a set, never removed.
type state[T comparable] struct {
	objects  []T
	started  map[T]struct{}
	finished map[T]struct{}
	failed   map[T]struct{}
}

func newState[T comparable](objects []T) *state[T] {
	return &state[T]{
		objects:  objects,
		started:  make(map[T]struct{}),
		finished: make(map[T]struct{}),
		failed:   make(map[T]struct{}),
	}
}

// pending returns the objects that are neither started nor terminal, in the
// order the run was given them.
func (s *state[T]) pending() []T {
	var out []T
	for _, obj := range s.objects {
		if s.isStarted(obj) || s.isFinished(obj) || s.isFailed(obj) {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// isDone reports whether every object has reached a terminal state.
func (s *state[T]) isDone() bool {
	return len(s.finished)+len(s.failed) >= len(s.objects)
}

func (s *state[T]) start(obj T)  { s.started[obj] = struct{}{} }
func (s *state[T]) finish(obj T) { s.finished[obj] = struct{}{} }
func (s *state[T]) fail(obj T)   { s.failed[obj] = struct{}{} }

func (s *state[T]) isStarted(obj T) bool {
	_, ok := s.started[obj]
	return ok
}

func (s *state[T]) isFinished(obj T) bool {
	_, ok := s.finished[obj]
	return ok
}

func (s *state[T]) isFailed(obj T) bool {
	_, ok := s.failed[obj]
	return ok
}
