package reconcile

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the reconciliation core, its job queue and the
// opportunistic poller to Fx. Detached broadcasts are drained on stop.
var Module = fx.Options(
	fx.Provide(
		NewService,
		NewQueue,
		newPoller,
	),
	fx.Invoke(func(lc fx.Lifecycle, svc *Service) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				done := make(chan struct{})
				go func() {
					svc.Wait()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)
