package dimension

import (
	"github.com/edgepulse/edgepulse/internal/dimension/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dimension.service",
	fx.Provide(service.NewService),
)
