package propagate

import "github.com/flagkit/flagkit/pkg/statemachine"

// Cycle states, strictly linear.
const (
	StateQueued       = statemachine.StringState("queued")
	StateGenerating   = statemachine.StringState("generating")
	StateCacheUpdated = statemachine.StringState("cache-updated")
	StateFannedOut    = statemachine.StringState("fanned-out")
	StateDone         = statemachine.StringState("done")
)

const (
	eventStart     = statemachine.StringEvent("start")
	eventCacheDone = statemachine.StringEvent("cache-done")
	eventFanOut    = statemachine.StringEvent("fan-out")
	eventFinish    = statemachine.StringEvent("finish")
)

// newCycleMachine builds the per-cycle state machine. Transitions carry no
// guards or actions; the machine exists to make the cycle's progress
// observable on the Result.
func newCycleMachine() statemachine.StateMachine {
	return statemachine.MustNew(StateQueued,
		statemachine.WithTransitions([]statemachine.TransitionDef{
			{From: StateQueued, To: StateGenerating, Event: eventStart},
			{From: StateGenerating, To: StateCacheUpdated, Event: eventCacheDone},
			{From: StateCacheUpdated, To: StateFannedOut, Event: eventFanOut},
			{From: StateFannedOut, To: StateDone, Event: eventFinish},
		}),
	)
}
