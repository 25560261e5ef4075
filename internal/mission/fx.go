package mission

import (
	"github.com/smallbiznis/opsledger/internal/mission/repository"
	"github.com/smallbiznis/opsledger/internal/mission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
