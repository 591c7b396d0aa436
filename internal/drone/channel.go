package drone

import (
	"errors"
	"sync"
	"time"

	"github.com/tellolink/tellolink/pkg/log"
)

// modeSwitchCommand is the handshake that places the drone into text
// SDK mode. It is the one command never retried via reconnection.
const modeSwitchCommand = "command"

// response is the resolved outcome of one command exchange.
type response struct {
	text     string
	err      error
	timedOut bool

	// reconnectAttempted / reconnected describe the timeout recovery
	// path: whether a reconnect was tried and whether it succeeded.
	reconnectAttempted bool
	reconnected        bool
}

func (r response) ok() bool {
	return r.err == nil && !r.timedOut
}

// channel serializes command issuance: at most one command is in flight
// at any instant. The mutex is the only concurrency guard in the whole
// system and is held for the full round-trip, including any nested
// reconnect and retry, so the drone observes strictly sequential
// exchanges even under concurrent callers.
type channel struct {
	mu     sync.Mutex
	tr     *Transport
	logger log.Logger
}

func newChannel(logger log.Logger) *channel {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &channel{logger: logger.WithName("channel")}
}

// attach installs the transport for subsequent exchanges.
func (c *channel) attach(tr *Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tr = tr
}

// detach removes and returns the current transport.
func (c *channel) detach() *Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	tr := c.tr
	c.tr = nil
	return tr
}

// execute performs one serialized exchange. On timeout, reconnect (when
// non-nil and the command is not the mode switch) is invoked exactly
// once while the lock is still held; if it restores the link, the
// command is resent once with no further recovery.
func (c *channel) execute(cmd string, timeout time.Duration, reconnect func() bool) response {
	c.mu.Lock()
	defer c.mu.Unlock()

	text, err := c.exchangeLocked(cmd, timeout)
	if err == nil {
		return response{text: text}
	}
	if !errors.Is(err, ErrTimeout) {
		return response{err: err}
	}

	if reconnect == nil || cmd == modeSwitchCommand {
		return response{timedOut: true}
	}

	c.logger.Info("command timed out, attempting reconnect", "command", cmd)
	if !reconnect() {
		return response{timedOut: true, reconnectAttempted: true}
	}

	text, err = c.exchangeLocked(cmd, timeout)
	switch {
	case err == nil:
		return response{text: text, reconnectAttempted: true, reconnected: true}
	case errors.Is(err, ErrTimeout):
		return response{timedOut: true, reconnectAttempted: true, reconnected: true}
	default:
		return response{err: err, reconnectAttempted: true, reconnected: true}
	}
}

// exchangeLocked clears the stale slot, sends, and waits. Callers must
// hold c.mu.
func (c *channel) exchangeLocked(cmd string, timeout time.Duration) (string, error) {
	if c.tr == nil {
		return "", ErrClosed
	}

	c.tr.ClearPending()

	c.logger.Debug("sending command", "command", cmd, "timeout", timeout)
	if err := c.tr.Send(cmd); err != nil {
		return "", err
	}

	text, err := c.tr.Await(timeout)
	if err != nil {
		return "", err
	}
	c.logger.Debug("received response", "command", cmd, "response", text)
	return text, nil
}
