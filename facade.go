package mailroom

import (
	"fmt"

	mailroomcommand "github.com/goliatone/go-mailroom/command"
	mailroomquery "github.com/goliatone/go-mailroom/query"
)

// CommandQueryService is the full surface the facade exposes through
// commands and queries. The core service satisfies it directly.
type CommandQueryService interface {
	mailroomcommand.DeliveryService
	mailroomquery.RecordReader
	mailroomquery.ProviderStatusReader
}

type Commands struct {
	CreateRecord       *mailroomcommand.CreateRecordCommand
	QueueRecord        *mailroomcommand.QueueRecordCommand
	QueueBatch         *mailroomcommand.QueueBatchCommand
	QueueAllEligible   *mailroomcommand.QueueAllEligibleCommand
	ResetRecord        *mailroomcommand.ResetRecordCommand
	ResetBatch         *mailroomcommand.ResetBatchCommand
	StartValidityCheck *mailroomcommand.StartValidityCheckCommand
	TestProvider       *mailroomcommand.TestProviderCommand
}

type Queries struct {
	GetRecord       *mailroomquery.GetRecordQuery
	ListEligible    *mailroomquery.ListEligibleQuery
	ProviderStatus  *mailroomquery.ProviderStatusQuery
	CountUnverified *mailroomquery.CountUnverifiedQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	eligibleReader    mailroomquery.EligibleReader
	unverifiedCounter mailroomquery.UnverifiedCounter
}

// WithEligibleReader supplies the store-backed reader for the eligible
// listing query; the core service does not expose listing directly.
func WithEligibleReader(reader mailroomquery.EligibleReader) FacadeOption {
	return func(options *facadeOptions) {
		options.eligibleReader = reader
	}
}

func WithUnverifiedCounter(counter mailroomquery.UnverifiedCounter) FacadeOption {
	return func(options *facadeOptions) {
		options.unverifiedCounter = counter
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("mailroom: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	eligibleReader := cfg.eligibleReader
	if eligibleReader == nil {
		if reader, ok := service.(mailroomquery.EligibleReader); ok {
			eligibleReader = reader
		}
	}
	unverifiedCounter := cfg.unverifiedCounter
	if unverifiedCounter == nil {
		if counter, ok := service.(mailroomquery.UnverifiedCounter); ok {
			unverifiedCounter = counter
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateRecord:       mailroomcommand.NewCreateRecordCommand(service),
		QueueRecord:        mailroomcommand.NewQueueRecordCommand(service),
		QueueBatch:         mailroomcommand.NewQueueBatchCommand(service),
		QueueAllEligible:   mailroomcommand.NewQueueAllEligibleCommand(service),
		ResetRecord:        mailroomcommand.NewResetRecordCommand(service),
		ResetBatch:         mailroomcommand.NewResetBatchCommand(service),
		StartValidityCheck: mailroomcommand.NewStartValidityCheckCommand(service),
		TestProvider:       mailroomcommand.NewTestProviderCommand(service),
	}
	facade.queries = Queries{
		GetRecord:       mailroomquery.NewGetRecordQuery(service),
		ListEligible:    mailroomquery.NewListEligibleQuery(eligibleReader),
		ProviderStatus:  mailroomquery.NewProviderStatusQuery(service),
		CountUnverified: mailroomquery.NewCountUnverifiedQuery(unverifiedCounter),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
