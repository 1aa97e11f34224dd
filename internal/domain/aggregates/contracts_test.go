package aggregates

import (
	"strings"
	"testing"
)

func TestAssessmentContractIsValid(t *testing.T) {
	if err := AssessmentAggregateContract.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !AssessmentAggregateContract.RequiresAggregateOwnedTx() {
		t.Fatalf("assessment aggregate must own its write transactions")
	}
}

func TestContractValidateRejects(t *testing.T) {
	cases := []struct {
		name     string
		contract Contract
		want     string
	}{
		{name: "unnamed", contract: Contract{WriteTxOwnership: WriteTxOwnedByAggregate, ReadPolicy: ReadPolicyInvariantScoped}, want: "no name"},
		{name: "caller owned", contract: Contract{Name: "x", WriteTxOwnership: WriteTxOwnedByCaller, ReadPolicy: ReadPolicyInvariantScoped}, want: "aggregate-owned"},
		{name: "unknown read policy", contract: Contract{Name: "x", WriteTxOwnership: WriteTxOwnedByAggregate, ReadPolicy: "anything"}, want: "read policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.contract.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate()=%v want error containing %q", err, tc.want)
			}
		})
	}
}
