package account

import (
	"github.com/smallbiznis/opsledger/internal/account/repository"
	"github.com/smallbiznis/opsledger/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
