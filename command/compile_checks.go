package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateRecordMessage]       = (*CreateRecordCommand)(nil)
	_ gocmd.Commander[QueueRecordMessage]        = (*QueueRecordCommand)(nil)
	_ gocmd.Commander[QueueBatchMessage]         = (*QueueBatchCommand)(nil)
	_ gocmd.Commander[QueueAllEligibleMessage]   = (*QueueAllEligibleCommand)(nil)
	_ gocmd.Commander[ResetRecordMessage]        = (*ResetRecordCommand)(nil)
	_ gocmd.Commander[ResetBatchMessage]         = (*ResetBatchCommand)(nil)
	_ gocmd.Commander[StartValidityCheckMessage] = (*StartValidityCheckCommand)(nil)
	_ gocmd.Commander[TestProviderMessage]       = (*TestProviderCommand)(nil)
)
