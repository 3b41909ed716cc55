package invoice

import (
	"github.com/digiurban/billing/internal/invoice/repository"
	"github.com/digiurban/billing/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
