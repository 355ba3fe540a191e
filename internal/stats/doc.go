// Package stats collects unit snapshots into the session's live view.
//
// Units report through their own Reporter onto a one-way queue. The
// Aggregator drains that queue without blocking, keeps the latest snapshot
// per unit, renders the status line and flags dead units. Metrics mirrors
// the same snapshots into Prometheus collectors.
package stats
