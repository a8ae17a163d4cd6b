package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func deliveryRecordHandlers() repository.ModelHandlers[*deliveryRecordRow] {
	return repository.ModelHandlers[*deliveryRecordRow]{
		NewRecord: func() *deliveryRecordRow {
			return &deliveryRecordRow{}
		},
		GetID: func(row *deliveryRecordRow) uuid.UUID {
			if row == nil {
				return uuid.Nil
			}
			return parseUUID(row.ID)
		},
		SetID: func(row *deliveryRecordRow, id uuid.UUID) {
			if row == nil {
				return
			}
			row.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(row *deliveryRecordRow) string {
			if row == nil {
				return ""
			}
			return strings.TrimSpace(row.ID)
		},
	}
}

func proxyHandlers() repository.ModelHandlers[*proxyRow] {
	return repository.ModelHandlers[*proxyRow]{
		NewRecord: func() *proxyRow {
			return &proxyRow{}
		},
		GetID: func(row *proxyRow) uuid.UUID {
			if row == nil {
				return uuid.Nil
			}
			return parseUUID(row.ID)
		},
		SetID: func(row *proxyRow, id uuid.UUID) {
			if row == nil {
				return
			}
			row.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(row *proxyRow) string {
			if row == nil {
				return ""
			}
			return strings.TrimSpace(row.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
