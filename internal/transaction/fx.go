package transaction

import (
	"github.com/smallbiznis/entitlement/internal/transaction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.repository",
	fx.Provide(repository.Provide),
)
