package eventconsumers

import (
	"github.com/kataras/go-events"
	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// The executor boundary rides on the go-events emitter: the scheduler emits
// fire decisions, the external executor listens for them and emits results
// back whenever the purchase or donation attempt completes.
const (
	FireDecisionEvent    events.EventName = "perkwatch.fire_decision"
	ExecutionResultEvent events.EventName = "perkwatch.execution_result"
)

func EmitFireDecision(decision *eventmodels.FireDecision) {
	events.Emit(FireDecisionEvent, decision)
}

func OnFireDecision(fn func(decision *eventmodels.FireDecision)) {
	events.On(FireDecisionEvent, func(payload ...interface{}) {
		decision, ok := payload[0].(*eventmodels.FireDecision)
		if !ok {
			log.Errorf("OnFireDecision: unexpected payload type %T", payload[0])
			return
		}

		fn(decision)
	})
}

func EmitExecutionResult(result eventmodels.ExecutionResult) {
	events.Emit(ExecutionResultEvent, result)
}

func OnExecutionResult(fn func(result eventmodels.ExecutionResult)) {
	events.On(ExecutionResultEvent, func(payload ...interface{}) {
		result, ok := payload[0].(eventmodels.ExecutionResult)
		if !ok {
			log.Errorf("OnExecutionResult: unexpected payload type %T", payload[0])
			return
		}

		fn(result)
	})
}
