// Package parallel runs an operation over a set of objects concurrently while
// respecting the dependencies between them.
//
// # How It Works
//
// A single coordinator owns the scheduling state. On every tick it runs an
// admission pass over the pending objects:
//
//  1. If any dependency of an object has failed, the object fails immediately
//     with an *UpstreamError and its work function is never called.
//  2. If every dependency has finished (or is not part of the run at all), a
//     worker goroutine is started for the object.
//  3. Otherwise the object stays pending until a later tick.
//
// Workers report back by sending an immutable Event on a channel; they never
// touch the scheduling state. The coordinator waits on that channel with a
// short timeout so admission is re-evaluated even when nothing arrives, and it
// gives up with ErrShutdown when the context is cancelled.
//
// Execute builds on the event stream: it renders a progress line per object,
// sorts failures into reportable and unexpected ones, and prints a summary.
//
// There is no concurrency cap. Every object whose dependencies are satisfied
// runs at once.
package parallel
