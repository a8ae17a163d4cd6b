package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        Registry
	recordStore     DeliveryRecordStore
	proxyStore      ProxyStore
	jobEnqueuer     JobEnqueuer
	verifier        AddressVerifier
	composer        MessageComposer
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithDeliveryRecordStore(store DeliveryRecordStore) Option {
	return func(b *serviceBuilder) {
		b.recordStore = store
	}
}

func WithProxyStore(store ProxyStore) Option {
	return func(b *serviceBuilder) {
		b.proxyStore = store
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithAddressVerifier(verifier AddressVerifier) Option {
	return func(b *serviceBuilder) {
		b.verifier = verifier
	}
}

func WithMessageComposer(composer MessageComposer) Option {
	return func(b *serviceBuilder) {
		b.composer = composer
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("mailroom", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewProviderRegistry(),
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return deliveryErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	providers := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Providers.Default) != "" {
		providers["default"] = cfg.Providers.Default
	}
	if smtp := smtpToLayerMap(cfg.Providers.SMTP, includeZero); len(smtp) > 0 {
		providers["smtp"] = smtp
	}
	if mailgun := mailgunToLayerMap(cfg.Providers.Mailgun, includeZero); len(mailgun) > 0 {
		providers["mailgun"] = mailgun
	}
	if sendgrid := sendgridToLayerMap(cfg.Providers.Sendgrid, includeZero); len(sendgrid) > 0 {
		providers["sendgrid"] = sendgrid
	}
	if len(providers) > 0 {
		layer["providers"] = providers
	}

	validity := map[string]any{}
	if includeZero || cfg.Validity.ChunkSize != 0 {
		validity["chunk_size"] = cfg.Validity.ChunkSize
	}
	if includeZero || cfg.Validity.CheckMX {
		validity["check_mx"] = cfg.Validity.CheckMX
	}
	if len(validity) > 0 {
		layer["validity"] = validity
	}

	dispatch := map[string]any{}
	if includeZero || cfg.Dispatch.SendTimeoutSeconds != 0 {
		dispatch["send_timeout_seconds"] = cfg.Dispatch.SendTimeoutSeconds
	}
	if len(dispatch) > 0 {
		layer["dispatch"] = dispatch
	}

	return layer
}

func smtpToLayerMap(cfg SMTPConfig, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Host) != "" {
		layer["host"] = cfg.Host
	}
	if includeZero || cfg.Port != 0 {
		layer["port"] = cfg.Port
	}
	if includeZero || strings.TrimSpace(cfg.Username) != "" {
		layer["username"] = cfg.Username
	}
	if includeZero || strings.TrimSpace(cfg.Password) != "" {
		layer["password"] = cfg.Password
	}
	if includeZero || strings.TrimSpace(cfg.From) != "" {
		layer["from"] = cfg.From
	}
	if includeZero || strings.TrimSpace(cfg.FromName) != "" {
		layer["from_name"] = cfg.FromName
	}
	return layer
}

func mailgunToLayerMap(cfg MailgunConfig, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Domain) != "" {
		layer["domain"] = cfg.Domain
	}
	if includeZero || strings.TrimSpace(cfg.APIKey) != "" {
		layer["api_key"] = cfg.APIKey
	}
	if includeZero || strings.TrimSpace(cfg.BaseURL) != "" {
		layer["base_url"] = cfg.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.From) != "" {
		layer["from"] = cfg.From
	}
	return layer
}

func sendgridToLayerMap(cfg SendgridConfig, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.APIKey) != "" {
		layer["api_key"] = cfg.APIKey
	}
	if includeZero || strings.TrimSpace(cfg.BaseURL) != "" {
		layer["base_url"] = cfg.BaseURL
	}
	if includeZero || strings.TrimSpace(cfg.From) != "" {
		layer["from"] = cfg.From
	}
	return layer
}
