// Package store keeps a SQLite history of scenario runs.
//
// Each run row records the verdict of one scenario execution; its events are
// the warning-and-above records the run's monitor saw, in the order they were
// logged.
//
// # Ordering
//
//   - Runs are listed newest first by started_at, then id. Run ids are
//     UUIDv7, so id order matches creation order within a timestamp.
//   - Events are read ORDER BY seq ASC. Several events may share a
//     simulated time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events are deleted with their run
package store
