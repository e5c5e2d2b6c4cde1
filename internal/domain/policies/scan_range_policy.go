package policies

// ScanRange is an inclusive block range. Empty means nothing new to scan.
type ScanRange struct {
	From  int64
	To    int64
	Empty bool
}

// NextScanRange picks the blocks one tick should process after cursor given
// the current head. maxBlocks <= 0 means the whole gap is scanned in one tick.
func NextScanRange(cursor int64, head int64, maxBlocks int) ScanRange {
	if head <= cursor {
		return ScanRange{Empty: true}
	}

	to := head
	if maxBlocks > 0 && head-cursor > int64(maxBlocks) {
		to = cursor + int64(maxBlocks)
	}

	return ScanRange{From: cursor + 1, To: to}
}

// Blocks returns how many heights the range covers.
func (r ScanRange) Blocks() int64 {
	if r.Empty {
		return 0
	}
	return r.To - r.From + 1
}
