package mailroom

import (
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-mailroom/core"
	"github.com/goliatone/go-mailroom/providers/mailgun"
	"github.com/goliatone/go-mailroom/providers/sendgrid"
	"github.com/goliatone/go-mailroom/providers/smtp"
)

func SMTPProvider(cfg core.SMTPConfig, options ...smtp.Option) core.Provider {
	return smtp.New(cfg, options...)
}

func MailgunProvider(cfg core.MailgunConfig, options ...mailgun.Option) core.Provider {
	return mailgun.New(cfg, options...)
}

func SendgridProvider(cfg core.SendgridConfig, options ...sendgrid.Option) core.Provider {
	return sendgrid.New(cfg, options...)
}

// BuildRegistry constructs a provider registry from configuration. Every
// provider with credentials in the config is registered; the configured
// default must be one of them.
func BuildRegistry(cfg core.Config, logger glog.Logger) (core.Registry, error) {
	registry := core.NewProviderRegistry()

	if strings.TrimSpace(cfg.Providers.SMTP.Host) != "" {
		provider := smtp.New(cfg.Providers.SMTP, smtp.WithLogger(logger))
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Providers.Mailgun.Domain) != "" {
		provider := mailgun.New(cfg.Providers.Mailgun, mailgun.WithLogger(logger))
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Providers.Sendgrid.APIKey) != "" {
		provider := sendgrid.New(cfg.Providers.Sendgrid, sendgrid.WithLogger(logger))
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	if len(registry.Descriptors()) == 0 {
		return nil, fmt.Errorf("mailroom: no providers configured")
	}

	if name := strings.TrimSpace(cfg.Providers.Default); name != "" {
		if err := registry.SetDefault(name); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
