package auth

import (
	"github.com/smallbiznis/opsledger/internal/auth/cookie"
	"github.com/smallbiznis/opsledger/internal/auth/repository"
	"github.com/smallbiznis/opsledger/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(cookie.NewManager),
)
