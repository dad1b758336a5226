package eventconsumers

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

// StubExecutor acknowledges every fire decision with a successful result
// after a short delay. It stands in for the real purchase/donation executor
// so the daemon runs end to end; tracker-site request shaping lives outside
// this repo.
type StubExecutor struct {
	wg    *sync.WaitGroup
	delay time.Duration
}

func NewStubExecutor(wg *sync.WaitGroup, delay time.Duration) *StubExecutor {
	return &StubExecutor{wg: wg, delay: delay}
}

func (e *StubExecutor) Start(ctx context.Context) {
	OnFireDecision(func(decision *eventmodels.FireDecision) {
		e.wg.Add(1)

		go func() {
			defer e.wg.Done()

			select {
			case <-ctx.Done():
				return
			case <-time.After(e.delay):
			}

			log.Infof("StubExecutor: executed %v for %s/%s", decision.ID, decision.SessionLabel, decision.Perk)

			EmitExecutionResult(eventmodels.ExecutionResult{
				DecisionID: decision.ID,
				Success:    true,
				Detail:     "stub execution",
			})
		}()
	})
}
