package controld

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tellolink/tellolink/internal/drone"
	"github.com/tellolink/tellolink/pkg/log"
	"github.com/tellolink/tellolink/pkg/mqtt"
	"github.com/tellolink/tellolink/pkg/options"
)

// reportInterval is how often the session snapshot is published.
const reportInterval = 5 * time.Second

// reporter periodically publishes the session snapshot to
// {TopicRoot}/drone/status as retained JSON, so dashboards see the
// last known state immediately on subscribe.
type reporter struct {
	client mqtt.Client
	ctrl   *drone.Controller
	topic  string
	logger log.Logger
}

func newReporter(opts *options.MqttOptions, ctrl *drone.Controller, logger log.Logger) (*reporter, error) {
	client, err := mqtt.NewClient(opts.ToClientConfig())
	if err != nil {
		return nil, err
	}

	return &reporter{
		client: client,
		ctrl:   ctrl,
		topic:  opts.TopicRoot + "/drone/status",
		logger: logger.WithName("reporter"),
	}, nil
}

func (r *reporter) run(ctx context.Context) error {
	if err := r.client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.client.Disconnect(disconnectCtx)
	}()

	if err := r.client.AwaitConnection(ctx); err != nil {
		return err
	}
	r.logger.Info("status reporter started", "topic", r.topic)

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.publish(ctx)
		}
	}
}

func (r *reporter) publish(ctx context.Context) {
	payload, err := json.Marshal(r.ctrl.Snapshot())
	if err != nil {
		r.logger.Error(err, "failed to marshal status snapshot")
		return
	}

	if err := r.client.Publish(ctx, r.topic, 0, true, payload); err != nil {
		r.logger.Warn("failed to publish status", err)
	}
}
