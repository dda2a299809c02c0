package normalizer

import (
	"context"

	"github.com/edgepulse/edgepulse/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("normalizer",
	fx.Provide(NewWorker),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, w *Worker, cfg config.Config) {
	workers := cfg.NormalizerWorkers
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, workers)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for i := 0; i < workers; i++ {
				go func() {
					defer func() { done <- struct{}{} }()
					w.RunForever(runCtx)
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			for i := 0; i < workers; i++ {
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		},
	})
}
