// Package aggregates owns the transaction boundaries for assessment writes.
//
// Aggregates compose the table-level repos from internal/data/repos and guard
// every record mutation with a version compare-and-set.
package aggregates
