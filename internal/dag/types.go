package dag

import "sync"

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph[K comparable] struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[K]*node[K]
	// order records insertion order so traversals are deterministic.
	order []K
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using IDs),
// not by direct struct manipulation.
type node[K comparable] struct {
	// id is the unique identifier for the node.
	id K
	// index is the node's position in Graph.order.
	index int
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[K]*node[K]
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[K]*node[K]
}
