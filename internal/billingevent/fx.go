package billingevent

import (
	"github.com/digiurban/billing/internal/billingevent/publisher"
	"github.com/digiurban/billing/internal/billingevent/repository"
	"github.com/digiurban/billing/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent",
	fx.Provide(repository.Provide),
	fx.Provide(publisher.Provide),
	fx.Provide(service.New),
)
