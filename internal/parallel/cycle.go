package parallel

import "github.com/vk/gridfleet/internal/dag"

// FindCycle returns the objects of one dependency cycle, in dependency order,
// or nil if there is none. Only dependencies inside objects are considered; an
// object listing itself as a dependency is a cycle of one.
func FindCycle[T comparable](objects []T, deps DepsFunc[T]) []T {
	if deps == nil {
		return nil
	}

	g := dag.New[T]()
	for _, obj := range objects {
		g.AddNode(obj)
	}
	for _, obj := range objects {
		for _, dep := range deps(obj) {
			if dep == obj {
				return []T{obj}
			}
			if !g.Has(dep) {
				continue
			}
			// Both nodes exist and differ, so the edge is always accepted.
			_ = g.AddEdge(dep, obj)
		}
	}
	return g.FindCycle()
}
