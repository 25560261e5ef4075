package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig, New),
	fx.Invoke(startLoop),
)

// startLoop runs the scheduler for the life of the process. Stop waits for
// the in-flight tick to return so its locks are released before exit.
func startLoop(lc fx.Lifecycle, sched *Scheduler, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				log.Warn("scheduler did not stop before shutdown deadline")
			}
			return nil
		},
	})
}
