// Package aggregates defines domain-facing aggregate contracts.
//
// Contracts avoid persistence details and mark the write boundaries where
// assessment invariants must be enforced atomically.
package aggregates
