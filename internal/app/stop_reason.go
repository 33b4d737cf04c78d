package app

// StopReason records why the daemon is shutting down; it only feeds the
// final log lines.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)
