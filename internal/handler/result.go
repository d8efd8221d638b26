package handler

import (
	"time"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps/notify"
)

// Result is the overall outcome of a handler run.
type Result int

const (
	// ResultUnknown means the run has not finished.
	ResultUnknown Result = iota
	// ResultSuccess means every intended action completed.
	ResultSuccess
	// ResultSuccessWithWarnings means the run finished but at least one
	// per-file action or notification failed.
	ResultSuccessWithWarnings
	// ResultFailed means a fatal error aborted the run.
	ResultFailed
)

var resultNames = map[Result]string{
	ResultUnknown:             "unknown",
	ResultSuccess:             "success",
	ResultSuccessWithWarnings: "success_with_warnings",
	ResultFailed:              "failed",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "unknown"
}

// Report is the immutable record of a finished handler run.
type Report struct {
	HandlerID string
	Pipeline  string
	InputFile string
	// InputChecksum is the SHA-256 of the input file, empty when the run
	// failed before computing it.
	InputChecksum string

	Result Result
	State  State
	// Error is the fatal error detail, empty for non-fatal outcomes.
	Error   string
	Elapsed time.Duration

	// Files is the final collection with all per-file outcomes recorded.
	// Nil when the run failed before resolving.
	Files *pipefile.Collection
	// Notifications is the recipient list with delivery outcomes. Nil when
	// notification was suppressed.
	Notifications *notify.NotifyList
}
