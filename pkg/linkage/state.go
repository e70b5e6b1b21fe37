package linkage

import "fmt"

// State is where one linking identifier stands across the two stores.
type State string

const (
	StateAbsent       State = "absent"
	StatePIIOnly      State = "pii_only"
	StateLinked       State = "linked"
	StateClinicalOnly State = "clinical_only"
	StateDeleted      State = "deleted"

	// StateUnknown is reported when a store failed mid-operation and its side
	// cannot be observed.
	StateUnknown State = "unknown"
)

var transitions = map[State][]State{
	StateAbsent:       {StatePIIOnly},
	StatePIIOnly:      {StateLinked, StateDeleted},
	StateLinked:       {StatePIIOnly, StateClinicalOnly, StateDeleted},
	StateClinicalOnly: {StateDeleted},
}

// CanMoveTo reports whether the saga allows a step from s to next.
func (s State) CanMoveTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) moveTo(next State) (State, error) {
	if !s.CanMoveTo(next) {
		return s, fmt.Errorf("illegal linkage transition %s -> %s", s, next)
	}
	return next, nil
}

// heldState is the state implied by which stores held the identifier.
func heldState(inPII, inClinical bool) State {
	switch {
	case inPII && inClinical:
		return StateLinked
	case inPII:
		return StatePIIOnly
	case inClinical:
		return StateClinicalOnly
	default:
		return StateAbsent
	}
}

// stateAfterDelete settles a delete fan-out. A store that errored leaves its
// side unknown. An identifier neither store held stays absent.
func stateAfterDelete(piiDeleted, clinicalDeleted bool, piiErr, clinicalErr error) (State, error) {
	if piiErr != nil || clinicalErr != nil {
		return StateUnknown, nil
	}
	prior := heldState(piiDeleted, clinicalDeleted)
	if prior == StateAbsent {
		return StateAbsent, nil
	}
	return prior.moveTo(StateDeleted)
}
