package dag

import (
	"fmt"
	"sort"
)

// New creates and returns an initialized, empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]*node[K]),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph[K]) AddNode(id K) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node[K]{
		id:         id,
		index:      len(g.order),
		deps:       make(map[K]*node[K]),
		dependents: make(map[K]*node[K]),
	}
	g.order = append(g.order, id)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph[K]) AddEdge(fromID, toID K) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %v -> %v", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %v", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %v", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Has reports whether a node with the given ID exists.
func (g *Graph[K]) Has(id K) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Dependencies returns the IDs the given node depends on, in insertion order.
func (g *Graph[K]) Dependencies(id K) ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %v", id)
	}
	return ids(sorted(n.deps)), nil
}

// Dependents returns the IDs that depend on the given node, in insertion order.
func (g *Graph[K]) Dependents(id K) ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %v", id)
	}
	return ids(sorted(n.dependents)), nil
}

// Reverse returns a new graph with the same nodes and every edge flipped, so
// that dependents become dependencies. Node order is preserved.
func (g *Graph[K]) Reverse() *Graph[K] {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	r := New[K]()
	for _, id := range g.order {
		r.AddNode(id)
	}
	for _, id := range g.order {
		for depID := range g.nodes[id].deps {
			// Both endpoints exist and differ, so this cannot fail.
			_ = r.AddEdge(id, depID)
		}
	}
	return r
}

// FindCycle returns the nodes of one cycle in dependency order (each node
// depends on the one before it, and the first depends on the last), or nil if
// the graph is acyclic. Traversal follows insertion order, so the result is
// stable for a given graph.
func (g *Graph[K]) FindCycle() []K {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: nodes fully visited and known not to lead into a cycle.
	// onPath: nodes in the current recursion stack, mapped to their position.
	// unvisited: all other nodes.
	permanent := make(map[K]bool)
	onPath := make(map[K]int)
	var path []K

	var visit func(n *node[K]) []K
	visit = func(n *node[K]) []K {
		if permanent[n.id] {
			return nil
		}
		if pos, ok := onPath[n.id]; ok {
			cycle := make([]K, len(path)-pos)
			copy(cycle, path[pos:])
			return cycle
		}

		onPath[n.id] = len(path)
		path = append(path, n.id)

		for _, dependent := range sorted(n.dependents) {
			if cycle := visit(dependent); cycle != nil {
				return cycle
			}
		}

		path = path[:len(path)-1]
		delete(onPath, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range g.order {
		if cycle := visit(g.nodes[id]); cycle != nil {
			return cycle
		}
	}
	return nil
}

// sorted returns the nodes of m ordered by insertion index.
func sorted[K comparable](m map[K]*node[K]) []*node[K] {
	out := make([]*node[K], 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

func ids[K comparable](nodes []*node[K]) []K {
	out := make([]K, len(nodes))
	for i, n := range nodes {
		out[i] = n.id
	}
	return out
}
