package accesscode

import (
	"github.com/smallbiznis/opsledger/internal/accesscode/repository"
	"github.com/smallbiznis/opsledger/internal/accesscode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accesscode.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
