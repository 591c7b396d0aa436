package drone

import "time"

// AutoLandDetails carries the diagnosis attached to an autonomous
// landing event: the drone landed itself and reported it in response
// text, a semi-expected safety behavior rather than a bug.
type AutoLandDetails struct {
	Reason          string   `json:"reason"`
	Battery         int      `json:"battery"`
	FlightStatus    string   `json:"flight_status"`
	Recommendations []string `json:"recommendations"`
}

// autoLandRecommendations is the remediation advice attached to every
// auto-land outcome.
var autoLandRecommendations = []string{
	"check the remaining battery level (30% or more is recommended)",
	"check that the drone is not too far away",
	"check for obstacles around the drone",
	"wait a moment before attempting another takeoff",
}

// Outcome is the structured result of every controller operation. The
// controller boundary always returns an outcome, never a panic or a
// raw error: validation failures, transport errors, timeouts and device
// rejections are all folded into it.
type Outcome struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Connected    *bool            `json:"connected,omitempty"`
	FlightStatus string           `json:"flight_status,omitempty"`
	Battery      *int             `json:"battery,omitempty"`
	Reconnected  *bool            `json:"reconnected,omitempty"`
	Details      *AutoLandDetails `json:"details,omitempty"`
	RawResponse  string           `json:"raw_response,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

func succeed(message string) Outcome {
	return Outcome{Success: true, Message: message, Timestamp: time.Now()}
}

func fail(message string) Outcome {
	return Outcome{Success: false, Message: message, Timestamp: time.Now()}
}

func boolPtr(b bool) *bool  { return &b }
func intPtr(n int) *int     { return &n }
