package stager

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("stager",
	fx.Provide(
		NewMinioStore,
		func(s *MinioStore) ObjectStore { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, s *MinioStore) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return s.EnsureBucket(ctx)
			},
		})
	}),
)
