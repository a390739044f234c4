// Package store persists draw records and generated entries in SQLite.
//
// The database lives at paths.database_path and is opened in WAL mode. A
// schema_version table guards against opening a database written by an
// incompatible build; there are no migrations, a mismatched database has to
// be removed.
package store
