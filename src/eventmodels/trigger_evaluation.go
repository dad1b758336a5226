package eventmodels

// TriggerEvaluation reports the outcome of one trigger check. Each
// sub-condition is reported independently of the overall verdict so guardrail
// and notification messages can reference which condition passed, not just a
// single boolean.
type TriggerEvaluation struct {
	ShouldFire bool

	TimeChecked     bool
	TimeSatisfied   bool
	PointsChecked   bool
	PointsSatisfied bool

	// Reason is set when ShouldFire is false.
	Reason string
}

func (e TriggerEvaluation) String() string {
	if e.ShouldFire {
		return "fire"
	}

	return "wait: " + e.Reason
}
