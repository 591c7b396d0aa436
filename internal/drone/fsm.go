package drone

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/tellolink/tellolink/pkg/log"
)

// Flight status values reported to callers.
const (
	StatusLanded    = "landed"
	StatusFlying    = "flying"
	StatusEmergency = "emergency"
)

// State machine events. Transitions fire only on confirmed command
// outcomes, never on command issuance.
const (
	// eventTakeoff (landed -> flying) on a confirmed takeoff.
	eventTakeoff = "takeoff"
	// eventLand (flying -> landed) on a confirmed land.
	eventLand = "land"
	// eventEmergency (any -> emergency) on a confirmed emergency stop.
	eventEmergency = "emergency"
	// eventAutoLand (flying -> landed) when the drone reports it landed
	// itself, detected from response text rather than a caller command.
	eventAutoLand = "auto_land"
	// eventReset (emergency -> landed) is the administrative recovery
	// action; the physical state must be confirmed out-of-band first.
	eventReset = "reset"
)

// flightState tracks landed/flying/emergency. It is consulted by the
// controller's guards before any command is sent and mutated only after
// the command channel has resolved an outcome.
type flightState struct {
	*fsm.FSM
	logger log.Logger
}

func newFlightState(logger log.Logger) *flightState {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	f := &flightState{logger: logger.WithName("fsm")}

	events := fsm.Events{
		{Name: eventTakeoff, Src: []string{StatusLanded}, Dst: StatusFlying},
		{Name: eventLand, Src: []string{StatusFlying}, Dst: StatusLanded},
		{Name: eventEmergency, Src: []string{StatusLanded, StatusFlying, StatusEmergency}, Dst: StatusEmergency},
		{Name: eventAutoLand, Src: []string{StatusFlying}, Dst: StatusLanded},
		{Name: eventReset, Src: []string{StatusEmergency}, Dst: StatusLanded},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			f.logger.Info("flight status changed", "from", e.Src, "to", e.Dst, "event", e.Event)
		},
	}

	f.FSM = fsm.NewFSM(StatusLanded, events, callbacks)
	return f
}

// Status returns the current flight status string.
func (f *flightState) Status() string {
	return f.Current()
}

// Flying reports whether movement, rotation and landing are permitted.
func (f *flightState) Flying() bool {
	return f.Is(StatusFlying)
}

// fire applies a confirmed outcome to the machine. An impossible
// transition is logged and otherwise ignored: guards run before any
// command is sent, so a rejection here means the device and our model
// disagreed and the model keeps its last consistent state.
func (f *flightState) fire(event string) {
	if err := f.Event(context.Background(), event); err != nil {
		f.logger.Warn("ignoring impossible flight state transition", "event", event, "state", f.Current(), err)
	}
}
