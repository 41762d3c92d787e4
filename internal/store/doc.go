// Package store owns everything a harvest run persists: it loads the target
// list, decides which targets are already complete, writes one workbook per
// finished target, and accumulates the failure report written at the end of
// the run. It also declares the outcome ledger interface implemented by the
// Postgres storage package; this package must not import database drivers.
package store
