// Package mailgun delivers mail through the Mailgun HTTP API.
package mailgun

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/goliatone/go-mailroom/core"
)

const (
	providerName   = "mailgun"
	defaultBaseURL = "https://api.mailgun.net"
	defaultTimeout = 30 * time.Second
)

type Option func(*Provider)

func WithLogger(logger core.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

type Provider struct {
	cfg     core.MailgunConfig
	timeout time.Duration
	logger  core.Logger
}

func New(cfg core.MailgunConfig, options ...Option) *Provider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	provider := &Provider{cfg: cfg, timeout: defaultTimeout}
	for _, option := range options {
		if option != nil {
			option(provider)
		}
	}
	return provider
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) ValidateConfig() error {
	if strings.TrimSpace(p.cfg.Domain) == "" {
		return fmt.Errorf("mailgun: domain is required")
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return fmt.Errorf("mailgun: api key is required")
	}
	if strings.TrimSpace(p.cfg.From) == "" {
		return fmt.Errorf("mailgun: from address is required")
	}
	return nil
}

// TestConnection fetches the sending domain; a 200 proves both the key
// and the domain registration.
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	resp, err := p.client(core.DirectRouting()).R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v3/domains/%s", p.cfg.Domain))
	if err != nil {
		return fmt.Errorf("mailgun: connection test failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mailgun: connection test returned %s", resp.Status())
	}
	return nil
}

func (p *Provider) Send(ctx context.Context, msg core.Message, routing core.RoutingParams) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := p.client(routing).R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"from":    p.cfg.From,
			"to":      msg.To,
			"subject": msg.Subject,
			"html":    msg.Body,
		}).
		Post(fmt.Sprintf("/v3/%s/messages", p.cfg.Domain))
	if err != nil {
		return fmt.Errorf("mailgun: send to %s failed: %w", msg.To, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mailgun: send to %s returned %s: %s", msg.To, resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	return nil
}

func (p *Provider) client(routing core.RoutingParams) *resty.Client {
	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.timeout).
		SetBasicAuth("api", p.cfg.APIKey)
	if !routing.Direct && strings.TrimSpace(routing.Host) != "" {
		client.SetProxy(proxyURL(routing))
	}
	return client
}

func proxyURL(routing core.RoutingParams) string {
	proxy := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", routing.Host, routing.Port),
	}
	if strings.TrimSpace(routing.Username) != "" {
		proxy.User = url.UserPassword(routing.Username, routing.Password)
	}
	return proxy.String()
}

var _ core.Provider = (*Provider)(nil)
