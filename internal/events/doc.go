// Package events carries progress and status reports from running workers
// to presentation sinks.
//
// Workers never block on a slow sink: Emit hands the event to a buffered
// channel drained by a single dispatcher goroutine that fans it out to
// every registered Sink in registration order. Sinks therefore see the
// events of one device in the order they were emitted.
package events
