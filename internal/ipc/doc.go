// Package ipc carries the daemon protocol over a Unix domain socket: the
// multiplexing server the daemon runs, and the client session the CLI uses.
//
// Both sides exchange wire.Envelope frames. The server runs one session per
// connection; a session handles inbound frames strictly in arrival order and,
// once the client subscribes, forwards state snapshots published on the
// daemon's state.Hub. The client correlates requests with responses by
// envelope uuid, caches the latest broadcast snapshot, and exposes it to
// watchers through a change channel.
//
// Protocol errors are fatal to the connection that caused them and nothing
// else. Business errors travel inside well-formed Response envelopes.
package ipc
