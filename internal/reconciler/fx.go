package reconciler

import (
	"github.com/smallbiznis/entitlement/internal/reconciler/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciler",
	fx.Provide(service.NewService),
)
