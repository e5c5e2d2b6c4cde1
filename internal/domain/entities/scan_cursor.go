package entities

import (
	"time"

	valueobjects "depositwatch/internal/domain/value_objects"
)

// ScanCursor is the last fully processed block height, slot, or ledger index
// for one chain. It never moves backwards.
type ScanCursor struct {
	Chain     valueobjects.Chain
	Position  int64
	UpdatedAt time.Time
}

// Advance returns the cursor moved to position, and false when position would
// not move it forward.
func (c ScanCursor) Advance(position int64, now time.Time) (ScanCursor, bool) {
	if position <= c.Position {
		return c, false
	}
	return ScanCursor{Chain: c.Chain, Position: position, UpdatedAt: now}, true
}
