package steps

import (
	"context"
	"log/slog"

	"tideflow/internal/pipefile"
)

// ResolveRunner expands a raw input reference into the initial collection
// membership. A single data file resolves to a one-member collection; a
// manifest resolves to one member per entry.
type ResolveRunner interface {
	Run(ctx context.Context) (*pipefile.Collection, error)
}

// CheckRunner validates the members of a collection, recording a
// pipefile.CheckResult on each. Per-file failures are recorded values, not
// errors; only system-level problems are returned.
type CheckRunner interface {
	Run(ctx context.Context, files *pipefile.Collection) error
}

// HarvestRunner ingests the members of a collection into the downstream
// harvest target, setting IsHarvested on success. Deletion members are
// unharvested. Per-file failures are recorded on the file; system-level
// failures are returned wrapped with ErrSystem.
type HarvestRunner interface {
	Run(ctx context.Context, files *pipefile.Collection) error
}

// Logger returns a logger tagged with a component attribute, the way every
// runner in this module labels its output.
func Logger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String("component", component))
}
