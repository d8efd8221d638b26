package pipefile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tideflow/internal/pipefile"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestSetPublishTypeValidity(t *testing.T) {
	tests := []struct {
		name        string
		isDeletion  bool
		publishType pipefile.PublishType
		wantErr     bool
	}{
		{"addition accepts harvest_upload", false, pipefile.PublishHarvestUpload, false},
		{"addition accepts no_action", false, pipefile.PublishNoAction, false},
		{"addition rejects delete_unharvest", false, pipefile.PublishDeleteUnharvest, true},
		{"deletion accepts delete_unharvest", true, pipefile.PublishDeleteUnharvest, false},
		{"deletion accepts unharvest_only", true, pipefile.PublishUnharvestOnly, false},
		{"deletion rejects upload_only", true, pipefile.PublishUploadOnly, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f *pipefile.File
			if tc.isDeletion {
				f = pipefile.NewDeletion("/incoming/sample.nc")
			} else {
				f = pipefile.New("/incoming/sample.nc")
			}
			err := f.SetPublishType(tc.publishType)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error assigning %s", tc.publishType)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestChecksumIsLazyAndStable(t *testing.T) {
	path := writeTemp(t, "data.csv", "a,b\n1,2\n")
	f := pipefile.New(path)

	first, err := f.Checksum()
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if first == "" {
		t.Fatal("expected non-empty checksum")
	}

	// Content changes after the first read must not change the recorded
	// checksum: identity is fixed at first computation.
	if err := os.WriteFile(path, []byte("different"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	second, err := f.Checksum()
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if first != second {
		t.Fatalf("checksum changed: %s != %s", first, second)
	}
}

func TestChecksumDeletionIsEmpty(t *testing.T) {
	f := pipefile.NewDeletion("/incoming/gone.nc")
	sum, err := f.Checksum()
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if sum != "" {
		t.Fatalf("expected empty checksum for deletion, got %q", sum)
	}
}

func TestChecksumMissingFile(t *testing.T) {
	f := pipefile.New(filepath.Join(t.TempDir(), "absent.nc"))
	if _, err := f.Checksum(); !errors.Is(err, pipefile.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
}

func TestCheckPassedDefaultsTrueWhenUnchecked(t *testing.T) {
	f := pipefile.New("/incoming/sample.nc")
	if !f.CheckPassed() {
		t.Fatal("unchecked file must report CheckPassed")
	}
	f.SetCheckResult(pipefile.CheckResult{Compliant: false, Errors: true})
	if f.CheckPassed() {
		t.Fatal("failed check must report !CheckPassed")
	}
	if !f.IsChecked() {
		t.Fatal("expected IsChecked after SetCheckResult")
	}
}

func TestSetCheckTypeRejectsDeletions(t *testing.T) {
	f := pipefile.NewDeletion("/incoming/gone.nc")
	if err := f.SetCheckType(pipefile.CheckFormat); err == nil {
		t.Fatal("expected error assigning check type to deletion")
	}
}

func TestPublishedRequiresAllIntendedActions(t *testing.T) {
	f := pipefile.New("/incoming/sample.csv")
	if err := f.SetPublishType(pipefile.PublishHarvestUpload); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	f.IsStored = true
	if f.Published() {
		t.Fatal("stored but not harvested must not be published")
	}
	f.IsHarvested = true
	if !f.Published() {
		t.Fatal("stored and harvested must be published")
	}
}

func TestUpdateFuncObservesAttributeChanges(t *testing.T) {
	f := pipefile.New("/incoming/sample.nc")
	var got [][3]string
	f.SetUpdateFunc(func(name, attribute, value string) {
		got = append(got, [3]string{name, attribute, value})
	})
	if err := f.SetPublishType(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one update callback, got %d", len(got))
	}
	if got[0][0] != "sample.nc" || got[0][1] != "publish_type" || got[0][2] != "upload_only" {
		t.Fatalf("unexpected callback payload: %v", got[0])
	}
}
