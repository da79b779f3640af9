package arrears

import (
	"casa-arrears/services/rentschedule"
	"casa-arrears/services/tenancy"

	"go.uber.org/fx"
)

var Module = fx.Module("arrears.module",
	fx.Provide(
		rentschedule.NewRepository,
		tenancy.NewRepository,
		NewRepository,
		NewReconciler,
	),
)

var Server = fx.Module("arrears.server",
	Module,
	fx.Provide(
		NewHandler,
		NewScheduler,
	),
	fx.Invoke(
		RegisterRoutes,
		StartScheduler,
	),
)
