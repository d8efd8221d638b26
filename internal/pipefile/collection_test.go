package pipefile_test

import (
	"errors"
	"path"
	"path/filepath"
	"regexp"
	"testing"

	"tideflow/internal/pipefile"
)

func TestAddRejectsDuplicateSourcePath(t *testing.T) {
	c := pipefile.NewCollection()
	if err := c.Add(pipefile.New("/incoming/a.nc")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := c.Add(pipefile.New("/incoming/a.nc"))
	if !errors.Is(err, pipefile.ErrDuplicateFile) {
		t.Fatalf("expected ErrDuplicateFile, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("failed add must not grow the collection, len=%d", c.Len())
	}
}

func TestFiltersAreNonDestructive(t *testing.T) {
	c := pipefile.NewCollection(
		pipefile.New("/incoming/a.nc"),
		pipefile.NewDeletion("/incoming/b.nc"),
		pipefile.New("/incoming/c.csv"),
	)

	additions := c.Additions()
	if additions.Len() != 2 {
		t.Fatalf("expected 2 additions, got %d", additions.Len())
	}
	if c.Len() != 3 {
		t.Fatalf("filter mutated parent, len=%d", c.Len())
	}
	if c.FilterByExtension(".csv").Len() != 1 {
		t.Fatal("expected one .csv member")
	}
	if c.FilterByFileType(pipefile.TypeNetCDF).Len() != 2 {
		t.Fatal("expected two netcdf members")
	}
}

func TestViewMutationsVisibleThroughParent(t *testing.T) {
	c := pipefile.NewCollection(
		pipefile.New("/incoming/a.nc"),
		pipefile.New("/incoming/b.csv"),
	)

	if err := c.FilterByExtension(".csv").SetPublishTypes(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish types on view: %v", err)
	}

	got := c.Get("/incoming/b.csv").PublishType()
	if got != pipefile.PublishUploadOnly {
		t.Fatalf("view mutation not visible in parent, got %s", got)
	}
	if c.Get("/incoming/a.nc").PublishType() != pipefile.PublishUnset {
		t.Fatal("unfiltered member must stay untouched")
	}
}

func TestSetDestPathsRejectsCollisions(t *testing.T) {
	a := pipefile.New("/incoming/one/sample.nc")
	b := pipefile.New("/incoming/two/sample.nc")
	c := pipefile.NewCollection(a, b)
	if err := c.SetPublishTypes(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish types: %v", err)
	}

	err := c.SetDestPaths(func(srcPath string) string {
		return path.Join("pipe", filepath.Base(srcPath))
	})
	if err == nil {
		t.Fatal("expected collision error for identical base names")
	}
}

func TestSetDestPathsSkipsAssignedAndInactionable(t *testing.T) {
	assigned := pipefile.New("/incoming/a.nc")
	assigned.DestPath = "fixed/a.nc"
	inactive := pipefile.New("/incoming/b.nc")
	c := pipefile.NewCollection(assigned, inactive)
	if err := assigned.SetPublishType(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	if err := inactive.SetPublishType(pipefile.PublishNoAction); err != nil {
		t.Fatalf("set publish type: %v", err)
	}

	if err := c.SetDestPaths(func(srcPath string) string {
		return path.Join("computed", filepath.Base(srcPath))
	}); err != nil {
		t.Fatalf("set dest paths: %v", err)
	}
	if assigned.DestPath != "fixed/a.nc" {
		t.Fatalf("explicit dest path overwritten: %s", assigned.DestPath)
	}
	if inactive.DestPath != "" {
		t.Fatalf("no_action member got a dest path: %s", inactive.DestPath)
	}
}

func TestSetPublishTypesFromRegexes(t *testing.T) {
	matched := pipefile.New("/incoming/IMOS_data.nc")
	excluded := pipefile.New("/incoming/IMOS_test.nc")
	unmatched := pipefile.New("/incoming/readme.txt")
	deletion := pipefile.NewDeletion("/incoming/IMOS_old.nc")
	c := pipefile.NewCollection(matched, excluded, unmatched, deletion)

	include := []*regexp.Regexp{regexp.MustCompile(`^IMOS_`)}
	exclude := []*regexp.Regexp{regexp.MustCompile(`_test`)}
	if err := c.SetPublishTypesFromRegexes(include, exclude,
		pipefile.PublishHarvestUpload, pipefile.PublishDeleteUnharvest); err != nil {
		t.Fatalf("assign from regexes: %v", err)
	}

	if got := matched.PublishType(); got != pipefile.PublishHarvestUpload {
		t.Fatalf("matched addition: got %s", got)
	}
	if got := deletion.PublishType(); got != pipefile.PublishDeleteUnharvest {
		t.Fatalf("matched deletion: got %s", got)
	}
	if excluded.PublishType() != pipefile.PublishUnset {
		t.Fatal("excluded member must stay unset")
	}
	if unmatched.PublishType() != pipefile.PublishUnset {
		t.Fatal("unmatched member must stay unset")
	}
}

func TestSetDefaultCheckTypes(t *testing.T) {
	explicit := pipefile.New("/incoming/a.nc")
	if err := explicit.SetCheckType(pipefile.CheckNonEmpty); err != nil {
		t.Fatalf("set check type: %v", err)
	}
	fresh := pipefile.New("/incoming/b.nc")
	deletion := pipefile.NewDeletion("/incoming/c.nc")
	c := pipefile.NewCollection(explicit, fresh, deletion)

	if err := c.SetDefaultCheckTypes(); err != nil {
		t.Fatalf("set default check types: %v", err)
	}
	if explicit.CheckType() != pipefile.CheckNonEmpty {
		t.Fatal("explicit check type overwritten")
	}
	if fresh.CheckType() != pipefile.CheckFormat {
		t.Fatalf("fresh member check type: got %s", fresh.CheckType())
	}
	if deletion.CheckType() != pipefile.CheckUnset {
		t.Fatal("deletion must not receive a check type")
	}
}

func TestRemoteCollectionDeterministicOrder(t *testing.T) {
	remote := pipefile.NewRemoteCollection(
		pipefile.RemoteFile{DestPath: "pipe/b.nc"},
		pipefile.RemoteFile{DestPath: "pipe/a.nc"},
		pipefile.RemoteFile{DestPath: "pipe/b.nc"},
	)
	if remote.Len() != 2 {
		t.Fatalf("duplicates must collapse, len=%d", remote.Len())
	}
	paths := remote.DestPaths()
	if paths[0] != "pipe/a.nc" || paths[1] != "pipe/b.nc" {
		t.Fatalf("dest paths not sorted: %v", paths)
	}
	if !remote.Contains("pipe/a.nc") {
		t.Fatal("expected membership for pipe/a.nc")
	}
}
