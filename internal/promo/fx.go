package promo

import (
	"github.com/smallbiznis/entitlement/internal/promo/repository"
	"github.com/smallbiznis/entitlement/internal/promo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promo",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
