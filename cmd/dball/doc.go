// Package main hosts the dball CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into socket
// requests against the daemon: lifecycle control, record and entry
// operations, batch generation, a live state watch, and configuration
// scaffolding. It centralizes configuration resolution and socket discovery
// so subcommands can focus on presentation.
//
// Keep this package lean: add new functionality to the service package first,
// then surface it through a dedicated command or flag here.
package main
