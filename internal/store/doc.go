// Package store provides SQLite-backed durable storage for the local mirror.
//
// One database file holds two logical stores:
//   - snapshot: a single-slot table (key "current") holding the latest
//     snapshot envelope as JSON together with its hash
//   - outbox: an auto-keyed FIFO of pending write intents, with their form
//     fields in outbox_fields
//
// # Guarantees
//
// Every exported method runs in its own transaction. A snapshot write or an
// outbox delete either fully commits or leaves the database as if it never
// happened; readers never observe a half-written snapshot or an intent with
// only some of its fields.
//
// Outbox ids come from AUTOINCREMENT and are never reused, so listing by id
// is insertion order.
//
// # Migrations
//
// The schema version lives in PRAGMA user_version. Migrations are additive
// only: they add tables, columns and indexes and never drop queued intents.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The store assumes a single process. Two processes sharing one database
// file each see atomic calls but no ordering between them.
package store
