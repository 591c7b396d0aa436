package drone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlightStateTransitions(t *testing.T) {
	f := newFlightState(nil)
	assert.Equal(t, StatusLanded, f.Status())
	assert.False(t, f.Flying())

	f.fire(eventTakeoff)
	assert.Equal(t, StatusFlying, f.Status())
	assert.True(t, f.Flying())

	f.fire(eventLand)
	assert.Equal(t, StatusLanded, f.Status())

	f.fire(eventTakeoff)
	f.fire(eventAutoLand)
	assert.Equal(t, StatusLanded, f.Status())
}

func TestFlightStateEmergency(t *testing.T) {
	f := newFlightState(nil)

	// Emergency works from any state.
	f.fire(eventEmergency)
	assert.Equal(t, StatusEmergency, f.Status())

	// Only reset leaves it.
	f.fire(eventTakeoff)
	assert.Equal(t, StatusEmergency, f.Status())
	f.fire(eventLand)
	assert.Equal(t, StatusEmergency, f.Status())

	f.fire(eventReset)
	assert.Equal(t, StatusLanded, f.Status())
}

func TestFlightStateImpossibleTransitionIgnored(t *testing.T) {
	f := newFlightState(nil)

	// Landing while landed keeps the model consistent instead of panicking.
	f.fire(eventLand)
	assert.Equal(t, StatusLanded, f.Status())

	f.fire(eventAutoLand)
	assert.Equal(t, StatusLanded, f.Status())

	f.fire(eventReset)
	assert.Equal(t, StatusLanded, f.Status())
}
