// Package domain holds the types shared by every unit of a capture session:
// the error taxonomy, stats snapshots and session metadata.
//
// It depends on nothing but the standard library.
//
// # Errors
//
//   - [ErrFrameCorrupt]: handled by parser resync, counted only
//   - [ErrDevice]: serial or audio failure, ends the session
//   - [ErrConfig]: rejected before any unit starts
//   - [ErrPersistence]: disk write failure, ends the session, never retried
//   - [ErrWorkerDied], [ErrShutdownTimeout]: reported by the controller
package domain
