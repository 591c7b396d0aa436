// Package options provides the flags of the control daemon.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/tellolink/tellolink/internal/controld"
	"github.com/tellolink/tellolink/pkg/log"
	genericoptions "github.com/tellolink/tellolink/pkg/options"
)

// ServerOptions contains the configuration of the control daemon,
// grouped by component.
type ServerOptions struct {
	Log   *log.Options                 `json:"log" mapstructure:"log"`
	Http  *genericoptions.HttpOptions  `json:"http" mapstructure:"http"`
	Drone *genericoptions.DroneOptions `json:"drone" mapstructure:"drone"`
	Mqtt  *genericoptions.MqttOptions  `json:"mqtt" mapstructure:"mqtt"`
}

// NewServerOptions creates a ServerOptions object with default parameters.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Log:   log.NewOptions(),
		Http:  genericoptions.NewHttpOptions(),
		Drone: genericoptions.NewDroneOptions(),
		Mqtt:  genericoptions.NewMqttOptions(),
	}
}

// Flags adds the flags of every component to fs.
func (o *ServerOptions) Flags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Drone.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
}

// Validate checks the options of every component and aggregates the
// failures.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Drone.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)

	return errors.Join(errs...)
}

// Config assembles the daemon configuration from the validated options.
func (o *ServerOptions) Config() *controld.Config {
	return &controld.Config{
		Http:  o.Http,
		Drone: o.Drone,
		Mqtt:  o.Mqtt,
	}
}
