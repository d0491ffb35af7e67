// Package fleet applies lifecycle operations (start, stop, restart, pause,
// unpause, kill, remove) to the containers of a project, all at once and in
// dependency order, using the parallel engine.
//
// A Project couples a loaded config.Model with a Backend that talks to the
// container runtime. Operations that bring containers up honour depends_on;
// operations that bring them down walk the same relation in reverse so that
// dependents go first.
package fleet
