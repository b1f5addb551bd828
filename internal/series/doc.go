// Package series holds the per-channel reading archive: a deduplicating,
// retention-bounded time series keyed by timestamp.
//
// # Data Source
//
// Readings arrive from the Environment Agency flood-monitoring API in two
// forms: live readings.json responses and daily archive CSV rows. Both carry
// an ISO-8601 UTC timestamp and a scalar value. Arrival order and duplication
// are not guaranteed; the archive endpoint occasionally emits sentinel values
// such as "1.25|1.30" for disputed readings.
//
// # Merge Semantics
//
// A channel's series is a map from canonical RFC3339 UTC timestamp to value.
// Merge upserts batch entries by timestamp with last-applied-wins semantics,
// so merging the same batch twice is a no-op and batches with disjoint
// timestamp sets can be merged in any order. Entries whose timestamp or value
// fail to parse are dropped, not raised: a malformed row in a 365-day archive
// must never abort a run.
//
// # Ordering Contract
//
// Series are ascending by timestamp everywhere inside the module. The
// newest-first ordering wanted by some artifacts is produced only at the
// artifact boundary via Trim with Descending.
package series
