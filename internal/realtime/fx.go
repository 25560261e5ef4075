package realtime

import (
	"context"

	eventdomain "github.com/smallbiznis/opsledger/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime",
	fx.Provide(newHub),
	fx.Provide(fx.Annotate(
		func(h *Hub) eventdomain.Publisher { return h },
		fx.ResultTags(`group:"event_publishers"`),
	)),
)

func newHub(lc fx.Lifecycle, log *zap.Logger) *Hub {
	h := NewHub(log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go h.Run()
			return nil
		},
		OnStop: func(context.Context) error {
			h.Stop()
			return nil
		},
	})
	return h
}
