package tenant

import (
	"github.com/digiurban/billing/internal/tenant/repository"
	"github.com/digiurban/billing/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
