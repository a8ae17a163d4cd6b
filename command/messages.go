package command

import (
	"strings"

	"github.com/goliatone/go-mailroom/core"
)

const (
	TypeCreateRecord       = "mailroom.command.record.create"
	TypeQueueRecord        = "mailroom.command.record.queue"
	TypeQueueBatch         = "mailroom.command.batch.queue"
	TypeQueueAllEligible   = "mailroom.command.eligible.queue"
	TypeResetRecord        = "mailroom.command.record.reset"
	TypeResetBatch         = "mailroom.command.batch.reset"
	TypeStartValidityCheck = "mailroom.command.validity.start"
	TypeTestProvider       = "mailroom.command.provider.test"
)

type CreateRecordMessage struct {
	Record core.DeliveryRecord
}

func (CreateRecordMessage) Type() string { return TypeCreateRecord }

func (m CreateRecordMessage) Validate() error {
	if strings.TrimSpace(m.Record.Email) == "" {
		return commandValidationError("email", "record email is required")
	}
	return nil
}

type QueueRecordMessage struct {
	RecordID string
	Provider string
}

func (QueueRecordMessage) Type() string { return TypeQueueRecord }

func (m QueueRecordMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return commandValidationError("record_id", "record id is required")
	}
	return nil
}

type QueueBatchMessage struct {
	RecordIDs []string
	Provider  string
}

func (QueueBatchMessage) Type() string { return TypeQueueBatch }

func (m QueueBatchMessage) Validate() error {
	if len(m.RecordIDs) == 0 {
		return commandValidationError("record_ids", "at least one record id is required")
	}
	for _, id := range m.RecordIDs {
		if strings.TrimSpace(id) == "" {
			return commandValidationError("record_ids", "record ids must not be blank")
		}
	}
	return nil
}

// QueueAllEligibleMessage queues every eligible record. Statuses narrows
// the sweep; empty means pending and failed.
type QueueAllEligibleMessage struct {
	Statuses []core.DeliveryStatus
	Provider string
}

func (QueueAllEligibleMessage) Type() string { return TypeQueueAllEligible }

func (m QueueAllEligibleMessage) Validate() error {
	for _, status := range m.Statuses {
		switch status {
		case core.DeliveryStatusPending, core.DeliveryStatusFailed:
		default:
			return commandValidationError("statuses", "only pending and failed records can be queued")
		}
	}
	return nil
}

type ResetRecordMessage struct {
	RecordID string
}

func (ResetRecordMessage) Type() string { return TypeResetRecord }

func (m ResetRecordMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return commandValidationError("record_id", "record id is required")
	}
	return nil
}

type ResetBatchMessage struct {
	RecordIDs []string
}

func (ResetBatchMessage) Type() string { return TypeResetBatch }

func (m ResetBatchMessage) Validate() error {
	if len(m.RecordIDs) == 0 {
		return commandValidationError("record_ids", "at least one record id is required")
	}
	for _, id := range m.RecordIDs {
		if strings.TrimSpace(id) == "" {
			return commandValidationError("record_ids", "record ids must not be blank")
		}
	}
	return nil
}

// StartValidityCheckMessage kicks off the chunked verification pipeline.
// ChunkSize zero falls back to the configured default.
type StartValidityCheckMessage struct {
	ChunkSize int
}

func (StartValidityCheckMessage) Type() string { return TypeStartValidityCheck }

func (m StartValidityCheckMessage) Validate() error {
	if m.ChunkSize < 0 {
		return commandValidationError("chunk_size", "chunk size must not be negative")
	}
	return nil
}

type TestProviderMessage struct {
	Provider string
}

func (TestProviderMessage) Type() string { return TypeTestProvider }

func (m TestProviderMessage) Validate() error {
	// Blank resolves to the configured default provider.
	return nil
}
