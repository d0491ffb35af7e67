// Package dag holds a generic dependency graph. Nodes are keyed by any
// comparable identifier; an edge from A to B records that B depends on A.
//
// The graph is a validation and lookup aid: the parallel package uses it to
// reject dependency cycles before anything runs, and the fleet package uses it
// to answer "what does this service depend on" and "what depends on it".
// Scheduling itself consults the caller's dependency function directly.
package dag
