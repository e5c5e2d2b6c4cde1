package out

import valueobjects "depositwatch/internal/domain/value_objects"

type ScanMetricsRecorder interface {
	CursorAdvanced(chain valueobjects.Chain, position int64)
	DepositRecorded(chain valueobjects.Chain, token string)
	TickFailed(chain valueobjects.Chain, code string)
}

type noopScanMetricsRecorder struct{}

func NoopScanMetricsRecorder() ScanMetricsRecorder {
	return noopScanMetricsRecorder{}
}

func (noopScanMetricsRecorder) CursorAdvanced(valueobjects.Chain, int64) {}

func (noopScanMetricsRecorder) DepositRecorded(valueobjects.Chain, string) {}

func (noopScanMetricsRecorder) TickFailed(valueobjects.Chain, string) {}
