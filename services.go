package mailroom

import (
	"context"

	"github.com/goliatone/go-mailroom/core"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type DeliveryRecord = core.DeliveryRecord
type DeliveryStatus = core.DeliveryStatus
type EmailValidity = core.EmailValidity
type Proxy = core.Proxy
type Message = core.Message
type Verdict = core.Verdict
type DispatchReport = core.DispatchReport
type StartReport = core.StartReport
type ChunkReport = core.ChunkReport
type ValidityChunk = core.ValidityChunk
type ProviderDescriptor = core.ProviderDescriptor

type Provider = core.Provider
type Registry = core.Registry
type DeliveryRecordStore = core.DeliveryRecordStore
type ProxyStore = core.ProxyStore
type AddressVerifier = core.AddressVerifier
type MessageComposer = core.MessageComposer
type JobEnqueuer = core.JobEnqueuer

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithRegistry            = core.WithRegistry
	WithDeliveryRecordStore = core.WithDeliveryRecordStore
	WithProxyStore          = core.WithProxyStore
	WithJobEnqueuer         = core.WithJobEnqueuer
	WithAddressVerifier     = core.WithAddressVerifier
	WithMessageComposer     = core.WithMessageComposer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(ctx, cfg, opts...)
}
