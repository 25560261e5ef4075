package payment

import (
	"github.com/smallbiznis/opsledger/internal/payment/repository"
	"github.com/smallbiznis/opsledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
