package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-mailroom/core"
)

var (
	_ gocmd.Querier[GetRecordMessage, core.DeliveryRecord]            = (*GetRecordQuery)(nil)
	_ gocmd.Querier[ListEligibleMessage, []core.DeliveryRecord]       = (*ListEligibleQuery)(nil)
	_ gocmd.Querier[ProviderStatusMessage, []core.ProviderDescriptor] = (*ProviderStatusQuery)(nil)
	_ gocmd.Querier[CountUnverifiedMessage, int]                      = (*CountUnverifiedQuery)(nil)
)
