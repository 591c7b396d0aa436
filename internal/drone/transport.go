package drone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/tellolink/tellolink/pkg/log"
)

var (
	// ErrTimeout indicates that no classified response arrived within the
	// command's deadline.
	ErrTimeout = errors.New("command response timeout")

	// ErrClosed indicates the transport was shut down while waiting.
	ErrClosed = errors.New("transport closed")
)

const (
	// receivePoll bounds each blocking read so the loop can observe a
	// shutdown promptly.
	receivePoll = time.Second

	// joinWait bounds how long Close waits for the receive loop before
	// proceeding with teardown regardless.
	joinWait = 2 * time.Second

	maxDatagram = 1024
)

// Transport owns the UDP socket of one drone session. A background
// goroutine receives datagrams, classifies them, and forwards accepted
// text into a single-slot delivery channel consumed by the command
// channel. There is no buffering beyond that one slot; a new command
// clears any stale delivery before sending.
type Transport struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	logger log.Logger

	delivery chan string

	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once

	// onFatal, if set, is invoked when the receive loop dies on a socket
	// error. It runs on the loop goroutine.
	onFatal func(error)
}

// OpenTransport binds a reusable UDP socket on localPort and starts the
// receive loop. localPort 0 lets the kernel pick (used by tests).
func OpenTransport(localPort int, remote *net.UDPAddr, logger log.Logger, onFatal func(error)) (*Transport, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	conn, err := listenReusable(localPort)
	if err != nil {
		return nil, fmt.Errorf("failed to bind local udp port %d: %w", localPort, err)
	}

	t := &Transport{
		conn:     conn,
		remote:   remote,
		logger:   logger.WithName("transport"),
		delivery: make(chan string, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		onFatal:  onFatal,
	}

	go t.receiveLoop()
	return t, nil
}

// listenReusable binds a UDP socket with SO_REUSEADDR so a restarted
// process (or a reconnect) can reclaim the fixed local port immediately.
// The option must be applied before bind(2), hence the ListenConfig
// Control hook.
func listenReusable(localPort int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return serr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", localPort))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// LocalAddr returns the bound local address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Send transmits one command datagram to the drone. Failures surface
// synchronously; there is no retry at this layer.
func (t *Transport) Send(text string) error {
	if _, err := t.conn.WriteToUDP([]byte(text), t.remote); err != nil {
		return fmt.Errorf("udp send failed: %w", err)
	}
	return nil
}

// ClearPending drains any stale classified response left over from a
// previous command. Called under the command channel's lock before each
// send so a late reply can never satisfy an unrelated command.
func (t *Transport) ClearPending() {
	for {
		select {
		case <-t.delivery:
		default:
			return
		}
	}
}

// Await blocks until a classified response is delivered, the timeout
// elapses (ErrTimeout), or the transport shuts down (ErrClosed).
func (t *Transport) Await(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-t.delivery:
		return text, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-t.done:
		return "", ErrClosed
	}
}

// Close stops the receive loop, waits for it with a bounded join, then
// closes the socket. Idempotent.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)

		select {
		case <-t.stopped:
		case <-time.After(joinWait):
			t.logger.Warn("receive loop did not stop in time, closing socket anyway")
		}

		_ = t.conn.Close()
	})
}

func (t *Transport) receiveLoop() {
	defer close(t.stopped)

	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(receivePoll))
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			select {
			case <-t.done:
				return
			default:
			}
			// Receive errors never reach a caller directly; the waiting
			// command observes its own timeout.
			t.logger.Error(err, "receive loop terminated on socket error")
			if t.onFatal != nil {
				t.onFatal(err)
			}
			return
		}

		t.handleDatagram(buf[:n], addr)
	}
}

func (t *Transport) handleDatagram(data []byte, addr *net.UDPAddr) {
	if IsBinary(data) {
		t.logger.Debug("dropping binary state frame", "bytes", len(data), "from", addr.String())
		return
	}

	text, ok := DecodeText(data)
	if !ok || !IsValidResponse(text) {
		t.logger.Debug("dropping unrecognized datagram", "bytes", len(data), "from", addr.String())
		return
	}

	select {
	case t.delivery <- text:
	default:
		// No waiter and the slot is occupied: drop rather than buffer.
		t.logger.Debug("dropping response with no waiter", "response", text)
	}
}
