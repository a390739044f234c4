// Package logging assembles the structured slog loggers used by the daemon
// and the CLI.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// attribute helpers that keep log lines uniform: every component logger
// carries a component attribute, WARN lines carry event_type, error_hint and
// impact, and request-scoped lines carry the correlation id of the IPC
// request that triggered them. NewNop serves tests and wiring code that has
// no logger to hand.
package logging
