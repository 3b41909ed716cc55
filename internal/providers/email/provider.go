package email

import (
	"context"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error
}

// TemplateData is passed to the named template. Subject overrides the
// template default when set.
type TemplateData struct {
	Subject string
	Values  map[string]any
}

type NoOpProvider struct {
	log *zap.Logger
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if p.log != nil {
		p.log.Info("email skipped", zap.Strings("to", to), zap.String("subject", subject))
	}
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error {
	if p.log != nil {
		p.log.Info("email skipped", zap.Strings("to", to), zap.String("template", templateName))
	}
	return nil
}
