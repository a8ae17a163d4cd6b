package core

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize       = 100
	MinChunkSize           = 1
	MaxChunkSize           = 1000
	DefaultSendTimeoutSecs = 30
)

type SMTPConfig struct {
	Host     string `koanf:"host" mapstructure:"host"`
	Port     int    `koanf:"port" mapstructure:"port"`
	Username string `koanf:"username" mapstructure:"username"`
	Password string `koanf:"password" mapstructure:"password"`
	From     string `koanf:"from" mapstructure:"from"`
	FromName string `koanf:"from_name" mapstructure:"from_name"`
}

type MailgunConfig struct {
	Domain  string `koanf:"domain" mapstructure:"domain"`
	APIKey  string `koanf:"api_key" mapstructure:"api_key"`
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
	From    string `koanf:"from" mapstructure:"from"`
}

type SendgridConfig struct {
	APIKey  string `koanf:"api_key" mapstructure:"api_key"`
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
	From    string `koanf:"from" mapstructure:"from"`
}

type ProvidersConfig struct {
	Default  string         `koanf:"default" mapstructure:"default"`
	SMTP     SMTPConfig     `koanf:"smtp" mapstructure:"smtp"`
	Mailgun  MailgunConfig  `koanf:"mailgun" mapstructure:"mailgun"`
	Sendgrid SendgridConfig `koanf:"sendgrid" mapstructure:"sendgrid"`
}

type ValidityConfig struct {
	ChunkSize int  `koanf:"chunk_size" mapstructure:"chunk_size"`
	CheckMX   bool `koanf:"check_mx" mapstructure:"check_mx"`
}

type DispatchConfig struct {
	SendTimeoutSeconds int `koanf:"send_timeout_seconds" mapstructure:"send_timeout_seconds"`
}

// Config is constructed once at process start and passed into the
// registry, resolver and pipelines; business logic never reads ambient
// configuration.
type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Providers   ProvidersConfig `koanf:"providers" mapstructure:"providers"`
	Validity    ValidityConfig  `koanf:"validity" mapstructure:"validity"`
	Dispatch    DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "mailroom",
		Providers: ProvidersConfig{
			Default: "smtp",
		},
		Validity: ValidityConfig{
			ChunkSize: DefaultChunkSize,
			CheckMX:   true,
		},
		Dispatch: DispatchConfig{
			SendTimeoutSeconds: DefaultSendTimeoutSecs,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.SendTimeoutSeconds < 0 {
		return fmt.Errorf("core: dispatch.send_timeout_seconds must not be negative")
	}
	return nil
}

// ClampChunkSize applies the documented chunk bound: out-of-range values
// fall back to the default rather than erroring out.
func ClampChunkSize(size int) int {
	if size < MinChunkSize || size > MaxChunkSize {
		return DefaultChunkSize
	}
	return size
}
