// Package smtp delivers mail over a plain SMTP relay.
package smtp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/goliatone/go-mailroom/core"
)

const (
	providerName          = "smtp"
	defaultRetryCount     = 3
	defaultRetryBackoffMs = 100
	maxRetryBackoffMs     = 32000
)

type Option func(*Provider)

func WithLogger(logger core.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithRetry(count, backoffMs int) Option {
	return func(p *Provider) {
		if count >= 0 {
			p.retryCount = count
		}
		if backoffMs > 0 {
			p.retryBackoffMs = backoffMs
		}
	}
}

// Provider dials the configured relay per send. When routing is not
// direct, the proxy endpoint replaces the configured relay and the send
// goes through it with the proxy credentials.
type Provider struct {
	cfg            core.SMTPConfig
	retryCount     int
	retryBackoffMs int
	logger         core.Logger
}

func New(cfg core.SMTPConfig, options ...Option) *Provider {
	provider := &Provider{
		cfg:            cfg,
		retryCount:     defaultRetryCount,
		retryBackoffMs: defaultRetryBackoffMs,
	}
	for _, option := range options {
		if option != nil {
			option(provider)
		}
	}
	return provider
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) ValidateConfig() error {
	if strings.TrimSpace(p.cfg.Host) == "" {
		return fmt.Errorf("smtp: host is required")
	}
	if p.cfg.Port <= 0 || p.cfg.Port > 65535 {
		return fmt.Errorf("smtp: port %d is out of range", p.cfg.Port)
	}
	if strings.TrimSpace(p.cfg.From) == "" {
		return fmt.Errorf("smtp: from address is required")
	}
	return nil
}

// TestConnection opens and closes one SMTP session on the configured
// relay.
func (p *Provider) TestConnection(ctx context.Context) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	dialer := p.dialer(core.DirectRouting())

	done := make(chan error, 1)
	go func() {
		closer, err := dialer.Dial()
		if err != nil {
			done <- err
			return
		}
		done <- closer.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: connection test to %s:%d failed: %w", p.cfg.Host, p.cfg.Port, err)
		}
		return nil
	}
}

func (p *Provider) Send(ctx context.Context, msg core.Message, routing core.RoutingParams) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	mail := gomail.NewMessage()
	mail.SetAddressHeader("From", p.cfg.From, p.cfg.FromName)
	mail.SetHeader("To", msg.To)
	mail.SetHeader("Subject", msg.Subject)
	mail.SetBody("text/html", msg.Body)

	dialer := p.dialer(routing)

	var lastErr error
	backoffMs := p.retryBackoffMs
	for attempt := 0; attempt <= p.retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.dialAndSend(ctx, dialer, mail)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < p.retryCount {
			if p.logger != nil {
				p.logger.Warn("send attempt failed, retrying",
					"attempt", attempt+1, "backoff_ms", backoffMs, "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(backoffMs) * time.Millisecond):
			}
			backoffMs = int(math.Min(float64(backoffMs)*2, maxRetryBackoffMs))
		}
	}
	return fmt.Errorf("smtp: send to %s failed after %d attempts: %w", msg.To, p.retryCount+1, lastErr)
}

// dialAndSend runs the blocking gomail call under the caller's deadline.
func (p *Provider) dialAndSend(ctx context.Context, dialer *gomail.Dialer, mail *gomail.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(mail)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (p *Provider) dialer(routing core.RoutingParams) *gomail.Dialer {
	host, port := p.cfg.Host, p.cfg.Port
	username, password := p.cfg.Username, p.cfg.Password
	if !routing.Direct && strings.TrimSpace(routing.Host) != "" {
		host, port = routing.Host, routing.Port
		if strings.TrimSpace(routing.Username) != "" {
			username, password = routing.Username, routing.Password
		}
	}
	return gomail.NewDialer(host, port, username, password)
}

var _ core.Provider = (*Provider)(nil)
