package service

import "council/internal/reason"

// Drafting-agent lifecycle states as reported on incoming bundles. The
// draft, critique and repair loop runs outside this engine; ingest only
// classifies the state it is handed and enforces the terminal rules.
const (
	StateDrafting   = "drafting"
	StateValidating = "validating"
	StateRepairing  = "repairing"
	StateDegraded   = "degraded"
	StateDone       = "done"
)

// MaxRepairCycles caps how many repair rounds a bundle may report before it
// must arrive degraded instead.
const MaxRepairCycles = 2

// BundleState is the FSM snapshot a drafting agent attaches to a bundle.
type BundleState struct {
	State        string `json:"state"`
	RepairCycles int    `json:"repair_cycles"`
}

// acceptable reports whether a bundle in this state may be ingested. Only
// terminal states carry submittable assertions; degraded bundles are the
// deterministic fallback after the repair budget runs out.
func (s BundleState) acceptable() error {
	switch s.State {
	case "", StateDone:
	case StateDegraded:
		if s.RepairCycles < MaxRepairCycles {
			return reason.Validation("degraded bundle after %d repair cycles, budget is %d", s.RepairCycles, MaxRepairCycles)
		}
	case StateDrafting, StateValidating, StateRepairing:
		return reason.Validation("bundle still %s, only terminal states are ingestable", s.State)
	default:
		return reason.Validation("unknown bundle state %q", s.State)
	}
	if s.RepairCycles > MaxRepairCycles {
		return reason.Validation("bundle reports %d repair cycles, budget is %d", s.RepairCycles, MaxRepairCycles)
	}
	return nil
}

// Degraded reports whether the bundle arrived through the fallback path.
// Degraded bundles are accepted but logged for operator review.
func (s BundleState) Degraded() bool {
	return s.State == StateDegraded
}
