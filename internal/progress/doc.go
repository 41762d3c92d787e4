// Package progress provides the events a harvest run reports as targets start,
// pages are fetched, and targets finish. A non-blocking Hub batches events on
// a background goroutine and fans them out to sinks: logs, Prometheus, the
// outcome ledger, and completion notifications.
package progress
