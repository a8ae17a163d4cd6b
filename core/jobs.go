package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	JobIDDeliveryDispatch = "mailroom.delivery.dispatch"
	JobIDValidityChunk    = "mailroom.validity.chunk"
)

const (
	jobParamRecordID  = "record_id"
	jobParamProvider  = "provider"
	jobParamChunkSize = "chunk_size"
	jobParamAfterID   = "after_id"
)

// NewDispatchJobMessage builds the queue message for one dispatch unit.
// The record id doubles as the idempotency key: the at-most-one-in-flight
// guard lives in the store, the key just avoids duplicate queue entries.
func NewDispatchJobMessage(recordID, provider string) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID: JobIDDeliveryDispatch,
		Parameters: map[string]any{
			jobParamRecordID: strings.TrimSpace(recordID),
			jobParamProvider: strings.TrimSpace(provider),
		},
		IdempotencyKey: strings.TrimSpace(recordID),
	}
}

// NewValidityChunkJobMessage builds the self-continuation message for the
// next validity chunk. afterID is the id of the last record the previous
// chunk processed; the first chunk of a run carries an empty cursor.
func NewValidityChunkJobMessage(chunkSize int, afterID string) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID: JobIDValidityChunk,
		Parameters: map[string]any{
			jobParamChunkSize: chunkSize,
			jobParamAfterID:   strings.TrimSpace(afterID),
		},
	}
}

// DispatchItem is the decoded payload of one dispatch job message.
type DispatchItem struct {
	RecordID string
	Provider string
}

func ParseDispatchJobMessage(msg *JobExecutionMessage) (DispatchItem, error) {
	if msg == nil {
		return DispatchItem{}, fmt.Errorf("core: job message is required")
	}
	item := DispatchItem{
		RecordID: paramString(msg.Parameters, jobParamRecordID),
		Provider: paramString(msg.Parameters, jobParamProvider),
	}
	if item.RecordID == "" {
		return DispatchItem{}, fmt.Errorf("core: dispatch job message has no record id")
	}
	return item, nil
}

// ValidityChunk is the decoded payload of one validity chunk message: the
// chunk size plus the cursor the run has advanced to. Records with ids at
// or below AfterID were already visited by this run.
type ValidityChunk struct {
	ChunkSize int
	AfterID   string
}

func ParseValidityChunkJobMessage(msg *JobExecutionMessage) (ValidityChunk, error) {
	if msg == nil {
		return ValidityChunk{}, fmt.Errorf("core: job message is required")
	}
	chunk := ValidityChunk{AfterID: paramString(msg.Parameters, jobParamAfterID)}
	raw, ok := msg.Parameters[jobParamChunkSize]
	if !ok {
		chunk.ChunkSize = DefaultChunkSize
		return chunk, nil
	}
	switch typed := raw.(type) {
	case int:
		chunk.ChunkSize = ClampChunkSize(typed)
	case int64:
		chunk.ChunkSize = ClampChunkSize(int(typed))
	case float64:
		chunk.ChunkSize = ClampChunkSize(int(typed))
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return ValidityChunk{}, fmt.Errorf("core: invalid chunk size %q", typed)
		}
		chunk.ChunkSize = ClampChunkSize(parsed)
	default:
		return ValidityChunk{}, fmt.Errorf("core: invalid chunk size type %T", raw)
	}
	return chunk, nil
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	raw, ok := params[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
