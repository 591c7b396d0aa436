package drone

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellolink/tellolink/internal/emulator"
)

func newTestChannel(t *testing.T) (*channel, *emulator.Emulator) {
	t.Helper()

	tr, emu := newTestTransport(t)
	ch := newChannel(nil)
	ch.attach(tr)
	return ch, emu
}

func TestChannelExecute(t *testing.T) {
	ch, _ := newTestChannel(t)

	res := ch.execute("battery?", time.Second, nil)
	require.True(t, res.ok())
	assert.Equal(t, "87", res.text)
	assert.False(t, res.reconnectAttempted)
}

func TestChannelExecuteTimeout(t *testing.T) {
	ch, emu := newTestChannel(t)

	emu.DropNext(1)
	res := ch.execute("battery?", 150*time.Millisecond, nil)
	assert.False(t, res.ok())
	assert.True(t, res.timedOut)
	assert.False(t, res.reconnectAttempted)
}

func TestChannelDetached(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.detach()

	res := ch.execute("battery?", time.Second, nil)
	assert.ErrorIs(t, res.err, ErrClosed)
}

// A timeout with a reconnect hook retries the command exactly once.
func TestChannelReconnectRetry(t *testing.T) {
	ch, emu := newTestChannel(t)

	calls := 0
	reconnect := func() bool {
		calls++
		return true
	}

	emu.DropNext(1)
	res := ch.execute("forward 100", 150*time.Millisecond, reconnect)
	require.True(t, res.ok())
	assert.Equal(t, "ok", res.text)
	assert.True(t, res.reconnectAttempted)
	assert.True(t, res.reconnected)
	assert.Equal(t, 1, calls)
}

func TestChannelReconnectFailure(t *testing.T) {
	ch, emu := newTestChannel(t)

	emu.DropNext(1)
	res := ch.execute("forward 100", 150*time.Millisecond, func() bool { return false })
	assert.True(t, res.timedOut)
	assert.True(t, res.reconnectAttempted)
	assert.False(t, res.reconnected)
}

// The mode switch is never retried through reconnection, even when a
// hook is supplied.
func TestChannelNoReconnectForModeSwitch(t *testing.T) {
	ch, emu := newTestChannel(t)

	called := false
	emu.DropNext(1)
	res := ch.execute(modeSwitchCommand, 150*time.Millisecond, func() bool {
		called = true
		return true
	})
	assert.True(t, res.timedOut)
	assert.False(t, res.reconnectAttempted)
	assert.False(t, called)
}

// Concurrent callers are serialized: the emulator must observe the
// commands strictly one at a time, never interleaved.
func TestChannelSerializesCallers(t *testing.T) {
	ch, emu := newTestChannel(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := ch.execute("battery?", time.Second, nil)
			assert.True(t, res.ok())
		}()
	}
	wg.Wait()

	assert.Len(t, emu.Commands(), 8)
}

// A reply that arrives after its command timed out must not satisfy the
// next command.
func TestChannelStaleReplyDiscarded(t *testing.T) {
	ch, emu := newTestChannel(t)

	emu.SetDelay(300 * time.Millisecond)
	res := ch.execute("command", 100*time.Millisecond, nil)
	require.True(t, res.timedOut)

	// Let the late "ok" land in the delivery slot.
	time.Sleep(400 * time.Millisecond)
	emu.SetDelay(0)

	res = ch.execute("battery?", time.Second, nil)
	require.True(t, res.ok())
	assert.Equal(t, "87", res.text)
}
