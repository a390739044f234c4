// Package daemon coordinates the long-running dball process.
//
// It wires configuration and the service façade into a single lifecycle with
// flock-based locking to prevent multiple instances. On start it publishes an
// initial snapshot, optionally pulls the latest draw result, and runs the
// periodic refresh loop when one is configured.
//
// Keep orchestration logic here: business operations live in the service
// package and the socket protocol in ipc, while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
