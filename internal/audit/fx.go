package audit

import (
	"github.com/smallbiznis/opsledger/internal/audit/repository"
	"github.com/smallbiznis/opsledger/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the audit trail writer used by every mutating service and
// the admin listing behind /api/admin/audit-logs.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
