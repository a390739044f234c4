// Package state holds the daemon's application snapshot and fans changes out
// to subscribers.
//
// Holder owns the authoritative AppState behind a read/write lock. Every
// Update stamps a strictly increasing LastUpdate and publishes a deep copy to
// the Hub, a bounded ring buffer that never blocks the publisher. Slow
// subscribers skip ahead and are told how many snapshots they missed.
package state
