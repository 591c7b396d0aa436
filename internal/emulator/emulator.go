// Package emulator implements a scriptable stand-in for the drone's
// command endpoint. It speaks just enough of the text protocol to
// exercise the control core without hardware: replies can be
// overridden per command, delayed, or dropped to provoke timeouts, and
// raw bytes can be pushed to the last client to simulate unsolicited
// binary telemetry.
package emulator

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tellolink/tellolink/pkg/log"
)

const maxDatagram = 1024

// Emulator is a UDP server mimicking the drone's command endpoint.
type Emulator struct {
	conn   *net.UDPConn
	logger log.Logger

	mu         sync.Mutex
	battery    int
	overrides  map[string]string
	dropNext   int
	delay      time.Duration
	commands   []string
	lastClient *net.UDPAddr

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New binds a UDP socket on addr (e.g. "127.0.0.1:0" for an ephemeral
// port) and starts serving.
func New(addr string, logger log.Logger) (*Emulator, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}

	e := &Emulator{
		conn:      conn,
		logger:    logger.WithName("emulator"),
		battery:   87,
		overrides: make(map[string]string),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	go e.serve()
	e.logger.Info("drone emulator listening", "addr", conn.LocalAddr())
	return e, nil
}

// Addr returns the bound address of the emulator socket.
func (e *Emulator) Addr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SetBattery sets the percentage returned for battery? queries.
func (e *Emulator) SetBattery(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.battery = level
}

// SetResponse overrides the reply for an exact command string. An empty
// reply means the command is answered with the default behavior again.
func (e *Emulator) SetResponse(command, reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if reply == "" {
		delete(e.overrides, command)
		return
	}
	e.overrides[command] = reply
}

// DropNext makes the emulator swallow the next n commands without
// replying, provoking client-side timeouts.
func (e *Emulator) DropNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropNext = n
}

// SetDelay delays every reply by d.
func (e *Emulator) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Commands returns every command received so far, in arrival order.
func (e *Emulator) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.commands))
	copy(out, e.commands)
	return out
}

// SendRaw pushes bytes to the most recent client, simulating
// unsolicited traffic such as binary telemetry.
func (e *Emulator) SendRaw(data []byte) error {
	e.mu.Lock()
	client := e.lastClient
	e.mu.Unlock()
	if client == nil {
		return net.ErrClosed
	}
	_, err := e.conn.WriteToUDP(data, client)
	return err
}

// Close stops the emulator and waits for the serve loop to exit.
func (e *Emulator) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.conn.Close()
		<-e.stopped
	})
}

func (e *Emulator) serve() {
	defer close(e.stopped)

	buf := make([]byte, maxDatagram)
	for {
		n, client, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.done:
				return
			default:
				e.logger.Error(err, "emulator read failed")
				return
			}
		}

		command := strings.TrimSpace(string(buf[:n]))
		reply, drop, delay := e.resolve(command, client)
		if drop {
			e.logger.Debug("dropping command", "command", command)
			continue
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		e.logger.Debug("replying", "command", command, "reply", reply)
		if _, err := e.conn.WriteToUDP([]byte(reply), client); err != nil {
			e.logger.Error(err, "emulator write failed")
		}
	}
}

// resolve records the command and decides how to answer it.
func (e *Emulator) resolve(command string, client *net.UDPAddr) (reply string, drop bool, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.commands = append(e.commands, command)
	e.lastClient = client

	if e.dropNext > 0 {
		e.dropNext--
		return "", true, 0
	}
	delay = e.delay

	if r, ok := e.overrides[command]; ok {
		return r, false, delay
	}
	return defaultReply(command, e.battery), false, delay
}

func defaultReply(command string, battery int) string {
	switch command {
	case "command", "takeoff", "land", "emergency", "streamon", "streamoff":
		return "ok"
	case "battery?":
		return strconv.Itoa(battery)
	}

	fields := strings.Fields(command)
	if len(fields) == 2 {
		arg, err := strconv.Atoi(fields[1])
		if err != nil {
			return "error"
		}
		switch fields[0] {
		case "up", "down", "left", "right", "forward", "back":
			if arg >= 20 && arg <= 500 {
				return "ok"
			}
			return "out of range"
		case "cw", "ccw":
			if arg >= 1 && arg <= 360 {
				return "ok"
			}
			return "out of range"
		}
	}
	return "error"
}
