package drone

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tellolink/tellolink/internal/pkg/metrics"
	"github.com/tellolink/tellolink/pkg/log"
	"github.com/tellolink/tellolink/pkg/options"
)

// Parameter validation bounds of the text SDK.
const (
	minDistanceCm = 20
	maxDistanceCm = 500
	minDegrees    = 1
	maxDegrees    = 360

	// batteryTakeoffThreshold is the minimum battery percentage required
	// before a takeoff command is sent at all.
	batteryTakeoffThreshold = 20
)

var moveDirections = map[string]bool{
	"up": true, "down": true, "left": true,
	"right": true, "forward": true, "back": true,
}

var rotateDirections = map[string]bool{
	"cw": true, "ccw": true,
}

// Config carries the collaborators of a Controller.
type Config struct {
	Options *options.DroneOptions
	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Controller is the composition root of the control core: it validates
// caller parameters, drives the command channel, applies outcomes to
// the flight state machine, and records every operation. Exactly one
// Controller is meaningful per process; it is constructed once at
// startup and handed to every caller.
type Controller struct {
	opts    *options.DroneOptions
	logger  log.Logger
	metrics *metrics.Metrics

	ch    *channel
	state *flightState
	oplog *operationLog

	stateMu     sync.RWMutex
	connected   bool
	lastBattery int
	streaming   bool
}

// NewController creates a disconnected controller.
func NewController(cfg Config) *Controller {
	if cfg.Options == nil {
		cfg.Options = options.NewDroneOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	logger := cfg.Logger.WithName("drone")
	return &Controller{
		opts:    cfg.Options,
		logger:  logger,
		metrics: cfg.Metrics,
		ch:      newChannel(logger),
		state:   newFlightState(logger),
		oplog:   newOperationLog(opLogCapacity),
	}
}

// Snapshot is a point-in-time view of the session for status reporting.
type Snapshot struct {
	Connected    bool   `json:"connected"`
	FlightStatus string `json:"flight_status"`
	Battery      int    `json:"battery"`
	Streaming    bool   `json:"streaming"`
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return Snapshot{
		Connected:    c.connected,
		FlightStatus: c.state.Status(),
		Battery:      c.lastBattery,
		Streaming:    c.streaming,
	}
}

// Connect opens the transport and performs the mode-switch handshake,
// retrying up to the configured attempt count with a pause between
// timeouts. Connecting while already connected is a no-op success.
func (c *Controller) Connect() Outcome {
	if c.isConnected() {
		snap := c.Snapshot()
		out := succeed("already connected")
		out.Connected = boolPtr(true)
		out.Battery = intPtr(snap.Battery)
		out.FlightStatus = snap.FlightStatus
		return out
	}

	// A receive-loop death leaves a dead transport attached; release its
	// socket before opening a fresh one.
	if stale := c.ch.detach(); stale != nil {
		stale.Close()
	}

	tr, err := c.openTransport()
	if err != nil {
		c.logger.Error(err, "failed to open drone transport")
		c.oplog.append("connect", map[string]any{"status": "error", "error": err.Error()})
		out := fail(fmt.Sprintf("failed to open drone link: %v", err))
		out.Connected = boolPtr(false)
		return out
	}
	c.ch.attach(tr)

	attempts := c.opts.ConnectAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("connecting to drone", "attempt", attempt, "attempts", attempts)

		res := c.command(modeSwitchCommand, c.opts.ModeSwitchTimeout, nil)
		if res.ok() && containsOK(res.text) {
			c.setConnected(true)
			c.metrics.Connectivity.Set(1)

			battery, known := c.queryBattery()
			if !known {
				c.logger.Warn("could not read battery level after connect")
			}

			c.oplog.append("connect", map[string]any{"status": "success", "battery": battery})
			c.logger.Info("connected to drone", "battery", battery)

			out := succeed("connected to drone")
			out.Connected = boolPtr(true)
			out.Battery = intPtr(battery)
			out.FlightStatus = c.state.Status()
			return out
		}

		if res.timedOut {
			c.logger.Info("handshake timed out", "attempt", attempt)
		} else if res.err != nil {
			c.logger.Error(res.err, "handshake failed", "attempt", attempt)
		} else {
			c.logger.Debug("unexpected handshake response", "response", res.text)
		}

		if attempt < attempts {
			time.Sleep(c.opts.ConnectRetryPause)
		}
	}

	if tr := c.ch.detach(); tr != nil {
		tr.Close()
	}
	c.metrics.Connectivity.Set(0)
	c.oplog.append("connect", map[string]any{"status": "failed", "reason": "timeout"})

	out := fail("failed to connect to drone")
	out.Connected = boolPtr(false)
	return out
}

// Disconnect tears the session down. Idempotent.
func (c *Controller) Disconnect() Outcome {
	tr := c.ch.detach()
	if tr == nil && !c.isConnected() {
		out := succeed("already disconnected")
		out.Connected = boolPtr(false)
		return out
	}
	if tr != nil {
		tr.Close()
	}

	c.stateMu.Lock()
	c.connected = false
	c.streaming = false
	c.stateMu.Unlock()
	c.state.SetState(StatusLanded)
	c.metrics.Connectivity.Set(0)

	c.oplog.append("disconnect", map[string]any{"status": "success"})
	c.logger.Info("disconnected from drone")

	out := succeed("disconnected")
	out.Connected = boolPtr(false)
	return out
}

// Status reports the session state without touching the wire.
func (c *Controller) Status() Outcome {
	snap := c.Snapshot()
	out := succeed("status")
	out.Connected = boolPtr(snap.Connected)
	out.FlightStatus = snap.FlightStatus
	out.Battery = intPtr(snap.Battery)
	return out
}

// Battery queries the battery level.
func (c *Controller) Battery() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}

	res := c.command("battery?", c.opts.BatteryTimeout, nil)
	switch {
	case res.err != nil:
		return fail(fmt.Sprintf("battery query failed: %v", res.err))
	case res.timedOut:
		return fail("battery query timed out")
	}

	battery, err := strconv.Atoi(res.text)
	if err != nil {
		out := fail("failed to read battery level")
		out.RawResponse = res.text
		return out
	}
	c.setBattery(battery)

	out := succeed("battery level read")
	out.Battery = intPtr(battery)
	return out
}

// Takeoff lifts off after checking the state guard and the battery
// gate. A battery below the threshold refuses without sending takeoff.
func (c *Controller) Takeoff() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}
	if c.state.Flying() {
		return fail("already flying")
	}
	if c.state.Is(StatusEmergency) {
		return fail("emergency stop active; reset required before takeoff")
	}

	battery, known := c.queryBattery()
	if !known || battery < batteryTakeoffThreshold {
		c.oplog.append("takeoff", map[string]any{"status": "refused", "battery": battery})
		out := fail(fmt.Sprintf("battery too low for takeoff (%d%%)", battery))
		out.Battery = intPtr(battery)
		return out
	}

	res := c.command("takeoff", c.opts.TakeoffTimeout, nil)
	if res.ok() && containsOK(res.text) {
		c.state.fire(eventTakeoff)
		c.oplog.append("takeoff", map[string]any{"status": "success"})
		out := succeed("takeoff successful")
		out.FlightStatus = c.state.Status()
		return out
	}

	c.oplog.append("takeoff", map[string]any{"status": "failed", "response": res.text})
	return c.commandFailure("takeoff", res)
}

// Land touches down. Requires the flying state.
func (c *Controller) Land() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}
	if !c.state.Flying() {
		return fail("not flying")
	}

	res := c.command("land", c.opts.LandTimeout, nil)
	if res.ok() && containsOK(res.text) {
		c.state.fire(eventLand)
		c.oplog.append("land", map[string]any{"status": "success"})
		out := succeed("landing successful")
		out.FlightStatus = c.state.Status()
		return out
	}

	c.oplog.append("land", map[string]any{"status": "failed", "response": res.text})
	return c.commandFailure("land", res)
}

// Emergency stops all motors immediately. No state guard: it must work
// from anywhere.
func (c *Controller) Emergency() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}

	c.logger.Warn("emergency stop requested")
	res := c.command("emergency", c.opts.DefaultTimeout, nil)
	if res.ok() && containsOK(res.text) {
		c.state.fire(eventEmergency)
		c.oplog.append("emergency", map[string]any{"status": "success"})
		out := succeed("emergency stop executed")
		out.FlightStatus = c.state.Status()
		return out
	}

	c.oplog.append("emergency", map[string]any{"status": "failed", "response": res.text})
	return c.commandFailure("emergency stop", res)
}

// ResetEmergency is the administrative recovery action after an
// emergency stop. It touches only the state model, never the wire: the
// drone's physical state must be confirmed out-of-band first.
func (c *Controller) ResetEmergency() Outcome {
	if !c.state.Is(StatusEmergency) {
		return fail("no emergency stop active")
	}

	c.state.fire(eventReset)
	c.oplog.append("reset", map[string]any{"status": "success"})
	out := succeed("emergency state cleared")
	out.FlightStatus = c.state.Status()
	return out
}

// Move translates the drone. direction must be one of
// up/down/left/right/forward/back and distanceCm within [20,500].
func (c *Controller) Move(direction string, distanceCm int) Outcome {
	if !moveDirections[direction] {
		return fail(fmt.Sprintf("invalid direction: %s", direction))
	}
	if distanceCm < minDistanceCm || distanceCm > maxDistanceCm {
		return fail(fmt.Sprintf("distance must be within %d-%d cm", minDistanceCm, maxDistanceCm))
	}
	if !c.isConnected() {
		return fail("not connected to drone")
	}
	if !c.state.Flying() {
		return fail("not flying")
	}

	cmd := fmt.Sprintf("%s %d", direction, distanceCm)
	res := c.command(cmd, c.opts.MoveTimeout, c.reconnectLocked)
	return c.maneuverOutcome("move", cmd, res, map[string]any{
		"direction": direction,
		"distance":  distanceCm,
	})
}

// Rotate turns the drone. direction must be cw or ccw and degrees
// within [1,360].
func (c *Controller) Rotate(direction string, degrees int) Outcome {
	if !rotateDirections[direction] {
		return fail(fmt.Sprintf("invalid rotation direction: %s", direction))
	}
	if degrees < minDegrees || degrees > maxDegrees {
		return fail(fmt.Sprintf("degrees must be within %d-%d", minDegrees, maxDegrees))
	}
	if !c.isConnected() {
		return fail("not connected to drone")
	}
	if !c.state.Flying() {
		return fail("not flying")
	}

	cmd := fmt.Sprintf("%s %d", direction, degrees)
	res := c.command(cmd, c.opts.MoveTimeout, c.reconnectLocked)
	return c.maneuverOutcome("rotate", cmd, res, map[string]any{
		"direction": direction,
		"degrees":   degrees,
	})
}

// StartStream asks the drone to start pushing video onto the video
// port. Frame acquisition itself is outside this core.
func (c *Controller) StartStream() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}

	res := c.command("streamon", c.opts.DefaultTimeout, nil)
	if res.ok() && containsOK(res.text) {
		c.setStreaming(true)
		c.oplog.append("stream_start", map[string]any{"status": "success"})
		return succeed(fmt.Sprintf("video stream started on udp port %d", c.opts.VideoPort))
	}

	c.oplog.append("stream_start", map[string]any{"status": "failed", "response": res.text})
	return c.commandFailure("stream start", res)
}

// StopStream stops the video stream.
func (c *Controller) StopStream() Outcome {
	if !c.isConnected() {
		return fail("not connected to drone")
	}

	res := c.command("streamoff", c.opts.DefaultTimeout, nil)
	if res.ok() && containsOK(res.text) {
		c.setStreaming(false)
		c.oplog.append("stream_stop", map[string]any{"status": "success"})
		return succeed("video stream stopped")
	}

	c.oplog.append("stream_stop", map[string]any{"status": "failed", "response": res.text})
	return c.commandFailure("stream stop", res)
}

// OperationLog returns the diagnostic operation log, oldest first.
func (c *Controller) OperationLog() []OperationLogEntry {
	return c.oplog.snapshot()
}

// maneuverOutcome maps a movement/rotation exchange to an outcome,
// applied in priority order: ok, timeout (reconnect-and-retry already
// ran inside the channel), auto land, motor stop, generic rejection.
func (c *Controller) maneuverOutcome(op, cmd string, res response, details map[string]any) Outcome {
	if res.err != nil {
		details["status"] = "error"
		c.oplog.append(op, details)
		return fail(fmt.Sprintf("%s failed: %v", op, res.err))
	}

	if res.ok() && containsOK(res.text) {
		status := "success"
		if res.reconnectAttempted {
			status = "success_after_reconnect"
		}
		details["status"] = status
		c.oplog.append(op, details)

		out := succeed(fmt.Sprintf("%s successful", op))
		out.FlightStatus = c.state.Status()
		if res.reconnectAttempted {
			out.Reconnected = boolPtr(res.reconnected)
		}
		return out
	}

	if res.timedOut {
		details["status"] = "timeout"
		c.oplog.append(op, details)

		if res.reconnectAttempted && !res.reconnected {
			out := fail(fmt.Sprintf("%s timed out and automatic reconnection failed; check the drone", op))
			out.Reconnected = boolPtr(false)
			return out
		}
		out := fail(fmt.Sprintf("%s timed out again after reconnecting", op))
		out.Reconnected = boolPtr(res.reconnected)
		return out
	}

	lower := strings.ToLower(res.text)

	if strings.Contains(lower, "auto land") {
		return c.autoLandOutcome(op, res, details)
	}

	if strings.Contains(lower, "motor stop") {
		details["status"] = "motor_stop"
		details["response"] = res.text
		c.oplog.append(op, details)

		out := fail(fmt.Sprintf("%s failed: motors stopped; the drone may already be on the ground or detected an obstruction", op))
		out.RawResponse = res.text
		if res.reconnectAttempted {
			out.Reconnected = boolPtr(res.reconnected)
		}
		return out
	}

	details["status"] = "failed"
	details["response"] = res.text
	c.oplog.append(op, details)

	out := fail(fmt.Sprintf("%s failed: %s", op, res.text))
	out.RawResponse = res.text
	if res.reconnectAttempted {
		out.Reconnected = boolPtr(res.reconnected)
	}
	return out
}

// autoLandOutcome handles the drone landing itself mid-maneuver: the
// state model is corrected, the battery is re-queried, and remediation
// advice is attached.
func (c *Controller) autoLandOutcome(op string, res response, details map[string]any) Outcome {
	c.logger.Warn("drone performed an autonomous landing", "response", res.text)
	c.state.fire(eventAutoLand)

	battery, _ := c.queryBattery()

	details["status"] = "auto_land"
	details["response"] = res.text
	c.oplog.append(op, details)

	out := fail(fmt.Sprintf("drone landed itself: %s", res.text))
	out.FlightStatus = c.state.Status()
	out.Battery = intPtr(battery)
	out.RawResponse = res.text
	out.Details = &AutoLandDetails{
		Reason:          "auto_land",
		Battery:         battery,
		FlightStatus:    c.state.Status(),
		Recommendations: autoLandRecommendations,
	}
	return out
}

// commandFailure maps a non-maneuver exchange failure to an outcome.
func (c *Controller) commandFailure(what string, res response) Outcome {
	switch {
	case res.err != nil:
		return fail(fmt.Sprintf("%s failed: %v", what, res.err))
	case res.timedOut:
		return fail(fmt.Sprintf("%s timed out", what))
	default:
		out := fail(fmt.Sprintf("%s failed: %s", what, res.text))
		out.RawResponse = res.text
		return out
	}
}

// command wraps a channel exchange with metrics.
func (c *Controller) command(cmd string, timeout time.Duration, reconnect func() bool) response {
	name := commandName(cmd)
	start := time.Now()
	res := c.ch.execute(cmd, timeout, reconnect)
	c.metrics.CommandLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	status := "ok"
	switch {
	case res.err != nil:
		status = "transport_error"
	case res.timedOut:
		status = "timeout"
	case !containsOK(res.text) && !isDigits(res.text):
		status = "rejected"
	}
	c.metrics.CommandsTotal.WithLabelValues(name, status).Inc()
	return res
}

// queryBattery performs a fresh battery exchange and caches the result.
// known is false when the query failed or the reply was not numeric.
func (c *Controller) queryBattery() (battery int, known bool) {
	res := c.command("battery?", c.opts.BatteryTimeout, nil)
	if !res.ok() {
		return c.battery(), false
	}
	b, err := strconv.Atoi(res.text)
	if err != nil {
		return c.battery(), false
	}
	c.setBattery(b)
	return b, true
}

// reconnectLocked recovers the control channel after a timeout: close
// and reopen the transport, settle, redo the handshake once, refresh
// the battery. It runs while the channel lock is held, so it uses the
// lock-free channel internals and must not re-enter execute.
func (c *Controller) reconnectLocked() bool {
	c.logger.Info("starting automatic reconnection")
	c.setConnected(false)
	c.metrics.Connectivity.Set(0)

	if c.ch.tr != nil {
		c.ch.tr.Close()
		c.ch.tr = nil
	}

	time.Sleep(c.opts.SettleDelay)

	tr, err := c.openTransport()
	if err != nil {
		c.logger.Error(err, "reconnect failed to reopen drone link")
		c.metrics.ReconnectsTotal.WithLabelValues("failed").Inc()
		return false
	}
	c.ch.tr = tr

	// Single handshake attempt; no nested reconnection.
	text, err := c.ch.exchangeLocked(modeSwitchCommand, c.opts.ModeSwitchTimeout)
	if err != nil || !containsOK(text) {
		c.logger.Warn("reconnect handshake failed", "response", text, err)
		tr.Close()
		c.ch.tr = nil
		c.metrics.ReconnectsTotal.WithLabelValues("failed").Inc()
		return false
	}

	if text, berr := c.ch.exchangeLocked("battery?", c.opts.BatteryTimeout); berr == nil {
		if b, perr := strconv.Atoi(text); perr == nil {
			c.setBattery(b)
		}
	}

	c.setConnected(true)
	c.metrics.Connectivity.Set(1)
	c.metrics.ReconnectsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("automatic reconnection succeeded")
	return true
}

func (c *Controller) openTransport() (*Transport, error) {
	ip := net.ParseIP(c.opts.Addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid drone address %q", c.opts.Addr)
	}
	remote := &net.UDPAddr{IP: ip, Port: c.opts.CommandPort}

	return OpenTransport(c.opts.LocalPort, remote, c.logger, func(error) {
		c.setConnected(false)
		c.metrics.Connectivity.Set(0)
	})
}

func (c *Controller) isConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Controller) setConnected(v bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = v
}

func (c *Controller) battery() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastBattery
}

func (c *Controller) setBattery(b int) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.lastBattery = b
}

func (c *Controller) setStreaming(v bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.streaming = v
}

func containsOK(text string) bool {
	return strings.Contains(strings.ToLower(text), "ok")
}

// commandName reduces a command string to its leading verb for metrics
// labels ("forward 100" -> "forward").
func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
