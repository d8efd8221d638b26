// Package check validates collection members before publishing.
//
// A failed check is a recorded per-file outcome, never an error: the runner
// sets a pipefile.CheckResult on each checkable member and the handler
// decides afterwards what a failure means for the run.
package check

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps"
)

// NewRunner returns the check runner registered under the strategy name.
func NewRunner(strategy string, logger *slog.Logger) (steps.CheckRunner, error) {
	log := steps.Logger(logger, "check")
	switch strategy {
	case "nonempty":
		return &nonEmptyRunner{log: log}, nil
	case "format":
		return &formatRunner{log: log}, nil
	default:
		return nil, steps.Wrap(steps.ErrConfiguration, "check",
			fmt.Sprintf("unknown strategy %q", strategy), nil)
	}
}

// nonEmptyRunner passes any member whose content is at least one byte long.
type nonEmptyRunner struct {
	log *slog.Logger
}

func (r *nonEmptyRunner) Run(ctx context.Context, files *pipefile.Collection) error {
	return eachCheckable(ctx, files, r.log, checkNonEmpty)
}

// formatRunner verifies that a member's content matches its declared file
// type: leading magic bytes for binary formats, a parse for csv. Types with
// no registered signature fall back to the non-empty check, as do members
// individually marked for the non-empty check only.
type formatRunner struct {
	log *slog.Logger
}

func (r *formatRunner) Run(ctx context.Context, files *pipefile.Collection) error {
	return eachCheckable(ctx, files, r.log, func(f *pipefile.File) pipefile.CheckResult {
		if f.CheckType() == pipefile.CheckNonEmpty {
			return checkNonEmpty(f)
		}
		return checkFormat(f)
	})
}

func eachCheckable(ctx context.Context, files *pipefile.Collection, log *slog.Logger,
	fn func(*pipefile.File) pipefile.CheckResult) error {
	for _, f := range files.Checkable().Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := fn(f)
		f.SetCheckResult(result)
		if !result.Compliant {
			log.Warn("check failed",
				slog.String("file", f.Name),
				slog.String("check_type", f.CheckType().String()))
		}
	}
	return nil
}

func checkNonEmpty(f *pipefile.File) pipefile.CheckResult {
	info, err := os.Stat(f.SrcPath)
	if err != nil {
		return failure(fmt.Sprintf("stat: %v", err))
	}
	if info.Size() == 0 {
		return failure("file is empty")
	}
	return pipefile.CheckResult{Compliant: true}
}

// Leading byte signatures for the binary formats the engine recognises.
var magicBytes = map[pipefile.FileType][][]byte{
	pipefile.TypeGzip:   {{0x1f, 0x8b}},
	pipefile.TypeJPEG:   {{0xff, 0xd8, 0xff}},
	pipefile.TypeNetCDF: {[]byte("CDF\x01"), []byte("CDF\x02"), {0x89, 'H', 'D', 'F'}},
	pipefile.TypePDF:    {[]byte("%PDF")},
	pipefile.TypePNG:    {{0x89, 'P', 'N', 'G'}},
	pipefile.TypeZip:    {[]byte("PK\x03\x04")},
}

func checkFormat(f *pipefile.File) pipefile.CheckResult {
	if f.FileType == pipefile.TypeCSV {
		return checkCSV(f)
	}
	signatures, ok := magicBytes[f.FileType]
	if !ok {
		return checkNonEmpty(f)
	}

	fh, err := os.Open(f.SrcPath)
	if err != nil {
		return failure(fmt.Sprintf("open: %v", err))
	}
	defer fh.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(fh, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return failure(fmt.Sprintf("read header: %v", err))
	}
	for _, sig := range signatures {
		if n >= len(sig) && string(header[:len(sig)]) == string(sig) {
			return pipefile.CheckResult{Compliant: true}
		}
	}
	return failure(fmt.Sprintf("content does not match declared type %s", f.FileType))
}

func checkCSV(f *pipefile.File) pipefile.CheckResult {
	fh, err := os.Open(f.SrcPath)
	if err != nil {
		return failure(fmt.Sprintf("open: %v", err))
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	rows := 0
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return failure(fmt.Sprintf("csv parse: %v", err))
		}
		rows++
	}
	if rows == 0 {
		return failure("csv contains no records")
	}
	return pipefile.CheckResult{Compliant: true}
}

func failure(detail string) pipefile.CheckResult {
	return pipefile.CheckResult{Compliant: false, Log: []string{detail}, Errors: true}
}
