package dto

import "time"

type ScanChainDepositsCommand struct {
	Chain            string
	Now              time.Time
	MaxBlocksPerTick int
	StartHeight      *int64
}

type ScanChainDepositsOutput struct {
	Chain            string
	Initialized      bool
	FromCursor       int64
	ToCursor         int64
	BlocksScanned    int
	TransfersMatched int
	DepositsRecorded int
	Duplicates       int
}
