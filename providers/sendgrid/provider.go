// Package sendgrid delivers mail through the SendGrid v3 API.
package sendgrid

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
	providerName   = "sendgrid"
	defaultBaseURL = "https://api.sendgrid.com"
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
	cfg     core.SendgridConfig
	timeout time.Duration
	logger  core.Logger
}

func New(cfg core.SendgridConfig, options ...Option) *Provider {
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
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return fmt.Errorf("sendgrid: api key is required")
	}
	if strings.TrimSpace(p.cfg.From) == "" {
		return fmt.Errorf("sendgrid: from address is required")
	}
	return nil
}

// TestConnection lists the key's scopes; any 2xx proves the key works.
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	resp, err := p.client(core.DirectRouting()).R().
		SetContext(ctx).
		Get("/v3/scopes")
	if err != nil {
		return fmt.Errorf("sendgrid: connection test failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sendgrid: connection test returned %s", resp.Status())
	}
	return nil
}

type mailAddress struct {
	Email string `json:"email"`
}

type personalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             mailAddress       `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

func (p *Provider) Send(ctx context.Context, msg core.Message, routing core.RoutingParams) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	payload := sendRequest{
		Personalizations: []personalization{{To: []mailAddress{{Email: msg.To}}}},
		From:             mailAddress{Email: p.cfg.From},
		Subject:          msg.Subject,
		Content:          []mailContent{{Type: "text/html", Value: msg.Body}},
	}

	resp, err := p.client(routing).R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/v3/mail/send")
	if err != nil {
		return fmt.Errorf("sendgrid: send to %s failed: %w", msg.To, err)
	}
	if resp.IsError() {
		return fmt.Errorf("sendgrid: send to %s returned %s: %s", msg.To, resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	return nil
}

func (p *Provider) client(routing core.RoutingParams) *resty.Client {
	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.timeout).
		SetAuthToken(p.cfg.APIKey)
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
