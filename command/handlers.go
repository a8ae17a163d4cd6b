package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-mailroom/core"
)

// DeliveryService is the mutating surface the commands delegate to. The
// core service satisfies it directly.
type DeliveryService interface {
	CreateRecord(ctx context.Context, record core.DeliveryRecord) (core.DeliveryRecord, error)
	QueueRecord(ctx context.Context, recordID, provider string) error
	QueueBatch(ctx context.Context, recordIDs []string, provider string) (core.DispatchReport, error)
	QueueAllEligible(ctx context.Context, statuses []core.DeliveryStatus, provider string) (core.DispatchReport, error)
	ResetRecord(ctx context.Context, recordID string) error
	ResetBatch(ctx context.Context, recordIDs []string) (int, error)
	StartValidityCheck(ctx context.Context, chunkSize int) (core.StartReport, error)
	TestProvider(ctx context.Context, name string) error
}

type CreateRecordCommand struct {
	service DeliveryService
}

func NewCreateRecordCommand(service DeliveryService) *CreateRecordCommand {
	return &CreateRecordCommand{service: service}
}

func (c *CreateRecordCommand) Execute(ctx context.Context, msg CreateRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.CreateRecord(ctx, msg.Record)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type QueueRecordCommand struct {
	service DeliveryService
}

func NewQueueRecordCommand(service DeliveryService) *QueueRecordCommand {
	return &QueueRecordCommand{service: service}
}

func (c *QueueRecordCommand) Execute(ctx context.Context, msg QueueRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	return c.service.QueueRecord(ctx, msg.RecordID, msg.Provider)
}

type QueueBatchCommand struct {
	service DeliveryService
}

func NewQueueBatchCommand(service DeliveryService) *QueueBatchCommand {
	return &QueueBatchCommand{service: service}
}

func (c *QueueBatchCommand) Execute(ctx context.Context, msg QueueBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.QueueBatch(ctx, msg.RecordIDs, msg.Provider)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type QueueAllEligibleCommand struct {
	service DeliveryService
}

func NewQueueAllEligibleCommand(service DeliveryService) *QueueAllEligibleCommand {
	return &QueueAllEligibleCommand{service: service}
}

func (c *QueueAllEligibleCommand) Execute(ctx context.Context, msg QueueAllEligibleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.QueueAllEligible(ctx, msg.Statuses, msg.Provider)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResetRecordCommand struct {
	service DeliveryService
}

func NewResetRecordCommand(service DeliveryService) *ResetRecordCommand {
	return &ResetRecordCommand{service: service}
}

func (c *ResetRecordCommand) Execute(ctx context.Context, msg ResetRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	return c.service.ResetRecord(ctx, msg.RecordID)
}

type ResetBatchCommand struct {
	service DeliveryService
}

func NewResetBatchCommand(service DeliveryService) *ResetBatchCommand {
	return &ResetBatchCommand{service: service}
}

func (c *ResetBatchCommand) Execute(ctx context.Context, msg ResetBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.ResetBatch(ctx, msg.RecordIDs)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type StartValidityCheckCommand struct {
	service DeliveryService
}

func NewStartValidityCheckCommand(service DeliveryService) *StartValidityCheckCommand {
	return &StartValidityCheckCommand{service: service}
}

func (c *StartValidityCheckCommand) Execute(ctx context.Context, msg StartValidityCheckMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.StartValidityCheck(ctx, msg.ChunkSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TestProviderCommand struct {
	service DeliveryService
}

func NewTestProviderCommand(service DeliveryService) *TestProviderCommand {
	return &TestProviderCommand{service: service}
}

func (c *TestProviderCommand) Execute(ctx context.Context, msg TestProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	return c.service.TestProvider(ctx, msg.Provider)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
