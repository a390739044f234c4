// Package config loads, normalizes, and validates dball configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the DBALL_APP_ID and DBALL_APP_SECRET environment
// fallbacks for provider credentials. The Config type centralizes every knob
// the daemon and CLI need so socket, database and log locations are
// discovered in one pass.
package config
