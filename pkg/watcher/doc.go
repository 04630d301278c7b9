// Package watcher drives a lock signal backend for the lifetime of the process and
// delivers every lock state transition to the registered sink.
//
// A Watcher is either Running or Stopped. It stops for good when the backend is
// exhausted and no retry is configured, when a transition is detected while no sink
// is registered, or when its context is cancelled. Emit failures are discarded.
package watcher
