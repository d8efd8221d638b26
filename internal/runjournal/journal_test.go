package runjournal_test

import (
	"context"
	"testing"
	"time"

	"tideflow/internal/handler"
	"tideflow/internal/pipefile"
	"tideflow/internal/runjournal"
)

func openJournal(t *testing.T) *runjournal.Journal {
	t.Helper()
	journal, err := runjournal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestRecordAndRecent(t *testing.T) {
	journal := openJournal(t)
	ctx := context.Background()

	reports := []*handler.Report{
		{
			HandlerID:     "run-1",
			Pipeline:      "moorings",
			InputFile:     "/incoming/a.csv",
			InputChecksum: "deadbeef",
			Result:        handler.ResultSuccess,
			State:         handler.StateCompleted,
			Elapsed:       1200 * time.Millisecond,
			Files:         pipefile.NewCollection(pipefile.New("/incoming/a.csv")),
		},
		{
			HandlerID: "run-2",
			Pipeline:  "moorings",
			InputFile: "/incoming/b.csv",
			Result:    handler.ResultFailed,
			State:     handler.StateCompletedWithErrors,
			Error:     "validation error: initialise: input file",
		},
	}
	for _, r := range reports {
		if err := journal.Record(ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := journal.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].HandlerID != "run-2" || entries[1].HandlerID != "run-1" {
		t.Fatalf("unexpected order: %s, %s", entries[0].HandlerID, entries[1].HandlerID)
	}
	if entries[1].FileCount != 1 {
		t.Fatalf("file count %d", entries[1].FileCount)
	}
	if entries[1].InputChecksum != "deadbeef" {
		t.Fatalf("checksum %q", entries[1].InputChecksum)
	}
	if entries[0].Error == "" {
		t.Fatal("failed run must journal its error")
	}
	if entries[0].RecordedAt.IsZero() {
		t.Fatal("recorded timestamp missing")
	}
}

func TestForInputFile(t *testing.T) {
	journal := openJournal(t)
	ctx := context.Background()

	for i, input := range []string{"/incoming/a.csv", "/incoming/b.csv", "/incoming/a.csv"} {
		report := &handler.Report{
			HandlerID: string(rune('x' + i)),
			Pipeline:  "moorings",
			InputFile: input,
			Result:    handler.ResultSuccess,
			State:     handler.StateCompleted,
		}
		if err := journal.Record(ctx, report); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := journal.ForInputFile(ctx, "/incoming/a.csv")
	if err != nil {
		t.Fatalf("for input file: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 runs for a.csv, got %d", len(entries))
	}
}
