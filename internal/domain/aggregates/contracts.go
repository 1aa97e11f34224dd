package aggregates

import (
	"fmt"
	"strings"
)

// WriteTxOwnership says who opens the transaction around an assessment write.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate: each write method runs in its own transaction.
	// Callers (engine, control surface) never open one.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
	// WriteTxOwnedByCaller is declared by stores that expect an ambient transaction.
	WriteTxOwnedByCaller WriteTxOwnership = "caller_owned"
)

// ReadPolicy bounds which reads an aggregate performs inside its writes.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped allows only reads needed to decide a transition.
	// History, summary and detection listings stay on the table repos.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
)

// Contract is the policy an assessment store declares about itself.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is implemented by every store the engine writes through.
type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}

// Validate rejects a contract the engine cannot run on: the engine commits
// answers and cancels records without opening transactions of its own.
func (c Contract) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("aggregate contract has no name")
	}
	if !c.RequiresAggregateOwnedTx() {
		return fmt.Errorf("aggregate %s: write transactions must be aggregate-owned, got %q", name, c.WriteTxOwnership)
	}
	if c.ReadPolicy != ReadPolicyInvariantScoped {
		return fmt.Errorf("aggregate %s: unsupported read policy %q", name, c.ReadPolicy)
	}
	return nil
}
