// Package database manages the SQLite connection and schema migrations
// for the gateway's reference backend.
//
// SQLite is opened with WAL mode and a busy timeout, a single writer
// connection, and embedded migrations applied at startup.
package database
