package emulator

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, emu *Emulator) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, emu.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *net.UDPConn, command string) string {
	t.Helper()

	_, err := conn.Write([]byte(command))
	require.NoError(t, err)

	buf := make([]byte, maxDatagram)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestEmulatorDefaultReplies(t *testing.T) {
	emu, err := New("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer emu.Close()
	conn := dial(t, emu)

	assert.Equal(t, "ok", exchange(t, conn, "command"))
	assert.Equal(t, "87", exchange(t, conn, "battery?"))
	assert.Equal(t, "ok", exchange(t, conn, "forward 100"))
	assert.Equal(t, "out of range", exchange(t, conn, "forward 600"))
	assert.Equal(t, "ok", exchange(t, conn, "ccw 360"))
	assert.Equal(t, "out of range", exchange(t, conn, "cw 400"))
	assert.Equal(t, "error", exchange(t, conn, "flip x"))

	assert.Equal(t, []string{
		"command", "battery?", "forward 100", "forward 600",
		"ccw 360", "cw 400", "flip x",
	}, emu.Commands())
}

func TestEmulatorScripting(t *testing.T) {
	emu, err := New("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer emu.Close()
	conn := dial(t, emu)

	emu.SetBattery(12)
	assert.Equal(t, "12", exchange(t, conn, "battery?"))

	emu.SetResponse("takeoff", "error Motor stop")
	assert.Equal(t, "error Motor stop", exchange(t, conn, "takeoff"))
	emu.SetResponse("takeoff", "")
	assert.Equal(t, "ok", exchange(t, conn, "takeoff"))

	emu.DropNext(1)
	_, err = conn.Write([]byte("command"))
	require.NoError(t, err)
	buf := make([]byte, maxDatagram)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = conn.Read(buf)
	assert.Error(t, err, "dropped command must not be answered")
}
