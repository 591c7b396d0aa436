package drone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellolink/tellolink/internal/emulator"
)

func newTestTransport(t *testing.T) (*Transport, *emulator.Emulator) {
	t.Helper()

	emu, err := emulator.New("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(emu.Close)

	tr, err := OpenTransport(0, emu.Addr(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	return tr, emu
}

// A second session must be able to bind the fixed local port while a
// lingering socket still holds it; that only works when address reuse
// is applied before bind.
func TestTransportReclaimsLocalPort(t *testing.T) {
	emu, err := emulator.New("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(emu.Close)

	first, err := OpenTransport(0, emu.Addr(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(first.Close)
	port := first.LocalAddr().Port

	second, err := OpenTransport(port, emu.Addr(), nil, nil)
	require.NoError(t, err, "rebinding port %d while it is still held", port)
	second.Close()
}

func TestTransportExchange(t *testing.T) {
	tr, _ := newTestTransport(t)

	require.NoError(t, tr.Send("command"))
	text, err := tr.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestTransportAwaitTimeout(t *testing.T) {
	tr, emu := newTestTransport(t)

	emu.DropNext(1)
	require.NoError(t, tr.Send("command"))

	_, err := tr.Await(150 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTransportDropsBinaryFrames(t *testing.T) {
	tr, emu := newTestTransport(t)

	// Prime the emulator with our return address, unanswered.
	emu.DropNext(1)
	require.NoError(t, tr.Send("command"))
	time.Sleep(50 * time.Millisecond)

	// A telemetry-style frame must never satisfy a waiting command.
	binary := make([]byte, 60)
	for i := range binary {
		binary[i] = 0xcc
	}
	require.NoError(t, emu.SendRaw(binary))

	_, err := tr.Await(150 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	// Real text still gets through afterwards.
	require.NoError(t, emu.SendRaw([]byte("ok")))
	text, err := tr.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestTransportClearPending(t *testing.T) {
	tr, _ := newTestTransport(t)

	require.NoError(t, tr.Send("command"))
	time.Sleep(100 * time.Millisecond) // let the stale "ok" land in the slot

	tr.ClearPending()

	require.NoError(t, tr.Send("battery?"))
	text, err := tr.Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "87", text)
}

func TestTransportCloseUnblocksAwait(t *testing.T) {
	tr, _ := newTestTransport(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Await(5 * time.Second)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	tr.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock on Close")
	}

	// Close is idempotent.
	tr.Close()
}
