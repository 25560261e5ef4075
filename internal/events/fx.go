package events

import (
	"context"

	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/events/broker"
	"github.com/smallbiznis/opsledger/internal/events/domain"
	"github.com/smallbiznis/opsledger/internal/events/outbox"
	"github.com/smallbiznis/opsledger/internal/events/relay"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(outbox.New),
	fx.Provide(relay.New),
	fx.Provide(fx.Annotate(
		provideBroker,
		fx.ResultTags(`group:"event_publishers"`),
	)),
)

// provideBroker returns nil when AMQP_URL is unset; the relay skips nil publishers.
func provideBroker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (domain.Publisher, error) {
	if !cfg.AMQP.Enabled() {
		log.Info("amqp disabled, events stay in-process")
		return nil, nil
	}
	pub, err := broker.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
