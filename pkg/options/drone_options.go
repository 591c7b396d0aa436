package options

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DroneOptions)(nil)

// DroneOptions contains the drone endpoints and the per-operation
// response timeout budgets of the text SDK.
type DroneOptions struct {
	// Addr is the drone's IP address on the control network.
	Addr string `json:"addr" mapstructure:"addr"`

	// CommandPort is the drone's UDP command port.
	CommandPort int `json:"command-port" mapstructure:"command-port"`

	// LocalPort is the fixed local UDP port command responses arrive on.
	LocalPort int `json:"local-port" mapstructure:"local-port"`

	// VideoPort is the UDP port unsolicited video/telemetry frames arrive on.
	// The control core only starts/stops the stream; it never reads this port.
	VideoPort int `json:"video-port" mapstructure:"video-port"`

	// ConnectAttempts is how many times the mode-switch handshake is tried.
	ConnectAttempts int `json:"connect-attempts" mapstructure:"connect-attempts"`

	// ConnectRetryPause is the pause between handshake timeouts.
	ConnectRetryPause time.Duration `json:"connect-retry-pause" mapstructure:"connect-retry-pause"`

	// SettleDelay is how long to wait after reopening the socket before
	// resuming the handshake.
	SettleDelay time.Duration `json:"settle-delay" mapstructure:"settle-delay"`

	// Response timeout budgets. The drone acknowledges movement only once
	// the maneuver completes, so takeoff/land run far longer than queries.
	ModeSwitchTimeout time.Duration `json:"mode-switch-timeout" mapstructure:"mode-switch-timeout"`
	BatteryTimeout    time.Duration `json:"battery-timeout" mapstructure:"battery-timeout"`
	TakeoffTimeout    time.Duration `json:"takeoff-timeout" mapstructure:"takeoff-timeout"`
	LandTimeout       time.Duration `json:"land-timeout" mapstructure:"land-timeout"`
	MoveTimeout       time.Duration `json:"move-timeout" mapstructure:"move-timeout"`
	DefaultTimeout    time.Duration `json:"default-timeout" mapstructure:"default-timeout"`
}

// NewDroneOptions creates a DroneOptions object with the stock Tello
// endpoints and budgets.
func NewDroneOptions() *DroneOptions {
	return &DroneOptions{
		Addr:              "192.168.10.1",
		CommandPort:       8889,
		LocalPort:         9000,
		VideoPort:         11111,
		ConnectAttempts:   3,
		ConnectRetryPause: time.Second,
		SettleDelay:       time.Second,
		ModeSwitchTimeout: 10 * time.Second,
		BatteryTimeout:    5 * time.Second,
		TakeoffTimeout:    15 * time.Second,
		LandTimeout:       15 * time.Second,
		MoveTimeout:       10 * time.Second,
		DefaultTimeout:    5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DroneOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if ip := net.ParseIP(o.Addr); ip == nil {
		errors = append(errors, fmt.Errorf("invalid drone address %q", o.Addr))
	}
	for name, port := range map[string]int{
		"command-port": o.CommandPort,
		"local-port":   o.LocalPort,
		"video-port":   o.VideoPort,
	} {
		if port < 1 || port > 65535 {
			errors = append(errors, fmt.Errorf("invalid drone %s %d", name, port))
		}
	}
	if o.ConnectAttempts < 1 {
		errors = append(errors, fmt.Errorf("drone connect-attempts must be >= 1, got %d", o.ConnectAttempts))
	}

	return errors
}

// AddFlags adds flags related to the drone link to the specified FlagSet.
func (o *DroneOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "drone.addr", o.Addr, "IP address of the drone on the control network.")
	fs.IntVar(&o.CommandPort, "drone.command-port", o.CommandPort, "UDP command port of the drone.")
	fs.IntVar(&o.LocalPort, "drone.local-port", o.LocalPort, "Local UDP port for command responses.")
	fs.IntVar(&o.VideoPort, "drone.video-port", o.VideoPort, "UDP port for the video/telemetry stream.")
	fs.IntVar(&o.ConnectAttempts, "drone.connect-attempts", o.ConnectAttempts, "Handshake attempts before the connection is declared failed.")
	fs.DurationVar(&o.ConnectRetryPause, "drone.connect-retry-pause", o.ConnectRetryPause, "Pause between handshake attempts.")
	fs.DurationVar(&o.SettleDelay, "drone.settle-delay", o.SettleDelay, "Settle delay after reopening the socket during reconnect.")
	fs.DurationVar(&o.ModeSwitchTimeout, "drone.mode-switch-timeout", o.ModeSwitchTimeout, "Response timeout for the mode-switch handshake.")
	fs.DurationVar(&o.BatteryTimeout, "drone.battery-timeout", o.BatteryTimeout, "Response timeout for battery queries.")
	fs.DurationVar(&o.TakeoffTimeout, "drone.takeoff-timeout", o.TakeoffTimeout, "Response timeout for takeoff.")
	fs.DurationVar(&o.LandTimeout, "drone.land-timeout", o.LandTimeout, "Response timeout for landing.")
	fs.DurationVar(&o.MoveTimeout, "drone.move-timeout", o.MoveTimeout, "Response timeout for movement and rotation.")
	fs.DurationVar(&o.DefaultTimeout, "drone.default-timeout", o.DefaultTimeout, "Response timeout for any other command.")
}
