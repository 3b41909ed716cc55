package providers

import (
	"github.com/digiurban/billing/internal/providers/email"
	"github.com/digiurban/billing/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
