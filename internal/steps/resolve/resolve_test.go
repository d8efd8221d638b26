package resolve_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tideflow/internal/steps"
	"tideflow/internal/steps/resolve"
	"tideflow/internal/testsupport"
)

func TestSingleFileResolvesToCopiedMember(t *testing.T) {
	base := t.TempDir()
	input := testsupport.WriteNetCDF(t, filepath.Join(base, "incoming", "sample.nc"))
	collectionDir := filepath.Join(base, "collection")

	runner := resolve.NewRunner(input, collectionDir, "", nil)
	files, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if files.Len() != 1 {
		t.Fatalf("expected one member, got %d", files.Len())
	}

	member := files.Files()[0]
	want := filepath.Join(collectionDir, "sample.nc")
	if member.SrcPath != want {
		t.Fatalf("member path %s, want %s", member.SrcPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("copy missing: %v", err)
	}
	// The original input must remain untouched in the incoming dir.
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input removed: %v", err)
	}
}

func TestSimpleManifestResolvesEntries(t *testing.T) {
	base := t.TempDir()
	testsupport.WriteCSV(t, filepath.Join(base, "data", "a.csv"))
	testsupport.WriteCSV(t, filepath.Join(base, "data", "b.csv"))
	manifest := testsupport.WriteFile(t, filepath.Join(base, "batch.manifest"),
		"data/a.csv\ndata/b.csv\n\n")

	runner := resolve.NewRunner(manifest, filepath.Join(base, "collection"), base, nil)
	files, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if files.Len() != 2 {
		t.Fatalf("expected two members, got %d", files.Len())
	}
	if !files.Contains(filepath.Join(base, "data", "a.csv")) {
		t.Fatal("missing member data/a.csv")
	}
}

func TestSimpleManifestMissingEntryFails(t *testing.T) {
	base := t.TempDir()
	manifest := testsupport.WriteFile(t, filepath.Join(base, "batch.manifest"), "data/absent.csv\n")

	runner := resolve.NewRunner(manifest, filepath.Join(base, "collection"), base, nil)
	_, err := runner.Run(context.Background())
	if !errors.Is(err, steps.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRsyncManifestClassifiesLines(t *testing.T) {
	base := t.TempDir()
	content := "receiving incremental file list\n" +
		">f+++++++++ data/new.csv\n" +
		">f.st...... data/changed.nc\n" +
		".d..t...... data/\n" +
		"*deleting   data/old.nc\n" +
		"*deleting   data/olddir/\n" +
		"\nsent 1,024 bytes  received 2,048 bytes\n"
	manifest := testsupport.WriteFile(t, filepath.Join(base, "sync.rsync_manifest"), content)

	runner := resolve.NewRunner(manifest, filepath.Join(base, "collection"), base, nil)
	files, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := files.Additions().Len(); got != 2 {
		t.Fatalf("expected 2 additions, got %d", got)
	}
	if got := files.Deletions().Len(); got != 1 {
		t.Fatalf("expected 1 deletion, got %d", got)
	}
	deletion := files.Get(filepath.Join(base, "data", "old.nc"))
	if deletion == nil || !deletion.IsDeletion {
		t.Fatal("expected data/old.nc as deletion member")
	}
	if files.Contains(filepath.Join(base, "data")) {
		t.Fatal("directory lines must be ignored")
	}
}
