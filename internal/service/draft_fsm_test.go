package service

import (
	"testing"

	"council/internal/reason"
)

func TestBundleStateAcceptable(t *testing.T) {
	cases := []struct {
		state BundleState
		ok    bool
	}{
		{BundleState{}, true},
		{BundleState{State: StateDone}, true},
		{BundleState{State: StateDone, RepairCycles: 2}, true},
		{BundleState{State: StateDegraded, RepairCycles: 2}, true},
		{BundleState{State: StateDegraded, RepairCycles: 1}, false},
		{BundleState{State: StateDrafting}, false},
		{BundleState{State: StateValidating}, false},
		{BundleState{State: StateRepairing, RepairCycles: 1}, false},
		{BundleState{State: StateDone, RepairCycles: 3}, false},
		{BundleState{State: "panicking"}, false},
	}
	for _, c := range cases {
		err := c.state.acceptable()
		if c.ok && err != nil {
			t.Fatalf("%+v rejected: %v", c.state, err)
		}
		if !c.ok {
			if !reason.IsCode(err, reason.CodeValidationFailed) {
				t.Fatalf("%+v: err = %v, want validation failure", c.state, err)
			}
		}
	}
}

func TestBundleStateDegraded(t *testing.T) {
	if (BundleState{State: StateDone}).Degraded() {
		t.Fatalf("done state reported degraded")
	}
	if !(BundleState{State: StateDegraded, RepairCycles: 2}).Degraded() {
		t.Fatalf("degraded state not reported")
	}
}
