package controld

import (
	"github.com/tellolink/tellolink/internal/drone"
	"github.com/tellolink/tellolink/internal/pkg/metrics"
	"github.com/tellolink/tellolink/pkg/log"
	"github.com/tellolink/tellolink/pkg/options"
)

// Config is the assembled runtime configuration of the control daemon.
type Config struct {
	Http  *options.HttpOptions
	Drone *options.DroneOptions
	Mqtt  *options.MqttOptions

	Logger log.Logger
}

// NewConfig returns a Config with defaults for every component.
func NewConfig() *Config {
	return &Config{
		Http:  options.NewHttpOptions(),
		Drone: options.NewDroneOptions(),
		Mqtt:  options.NewMqttOptions(),
	}
}

// New assembles the daemon: metrics registry, drone controller, HTTP
// router, and the optional MQTT status reporter.
func (c *Config) New() (*Server, error) {
	logger := c.Logger
	if logger == nil {
		logger = log.Std()
	}

	m := metrics.New()

	ctrl := drone.NewController(drone.Config{
		Options: c.Drone,
		Logger:  logger,
		Metrics: m,
	})

	s := &Server{
		httpOpts: c.Http,
		logger:   logger.WithName("controld"),
		ctrl:     ctrl,
		metrics:  m,
	}
	s.router = s.newRouter()

	if c.Mqtt.Enabled() {
		r, err := newReporter(c.Mqtt, ctrl, logger)
		if err != nil {
			return nil, err
		}
		s.reporter = r
	}

	return s, nil
}
