// Package steps defines the contracts shared by the pipeline step runners
// (resolve, check, harvest, upload, notify) and the error classification the
// handler uses to decide whether a failure is per-file recoverable or fatal
// to the whole run.
package steps
