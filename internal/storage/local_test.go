package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tideflow/internal/pipefile"
	"tideflow/internal/storage"
	"tideflow/internal/testsupport"
)

func TestLocalBrokerPutQueryDelete(t *testing.T) {
	root := t.TempDir()
	broker := storage.NewLocalBroker(root)
	ctx := context.Background()

	if err := broker.Put(ctx, "pipe/2026/sample.nc", strings.NewReader("CDF\x01data"), "application/octet-stream"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := broker.Put(ctx, "pipe/2026/sample_qc.nc", strings.NewReader("CDF\x01qc"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := broker.Put(ctx, "other/readme.txt", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	remote, err := broker.Query(ctx, "pipe/2026/sample")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"pipe/2026/sample.nc", "pipe/2026/sample_qc.nc"}
	got := remote.DestPaths()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("query result %v, want %v", got, want)
	}
	f, ok := remote.Get("pipe/2026/sample.nc")
	if !ok || f.Size != int64(len("CDF\x01data")) {
		t.Fatalf("unexpected remote metadata: %+v", f)
	}

	if err := broker.Delete(ctx, "pipe/2026/sample.nc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "pipe", "2026", "sample.nc")); !os.IsNotExist(err) {
		t.Fatalf("object still present after delete: %v", err)
	}
	// Deleting an absent key is not an error.
	if err := broker.Delete(ctx, "pipe/2026/sample.nc"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestLocalBrokerQueryDeterministic(t *testing.T) {
	root := t.TempDir()
	broker := storage.NewLocalBroker(root)
	ctx := context.Background()

	for _, key := range []string{"pipe/c.nc", "pipe/a.nc", "pipe/b.nc"} {
		if err := broker.Put(ctx, key, strings.NewReader("x"), ""); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	first, err := broker.Query(ctx, "pipe/")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := broker.Query(ctx, "pipe/")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	a, b := first.DestPaths(), second.DestPaths()
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 keys, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated query differs at %d: %s != %s", i, a[i], b[i])
		}
	}
}

func TestUploadCollectionRecordsPerFileOutcomes(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()
	broker := storage.NewLocalBroker(root)
	ctx := context.Background()

	good := pipefile.New(testsupport.WriteNetCDF(t, filepath.Join(base, "good.nc")))
	if err := good.SetPublishType(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	good.DestPath = "pipe/good.nc"

	missing := pipefile.New(filepath.Join(base, "missing.nc"))
	if err := missing.SetPublishType(pipefile.PublishUploadOnly); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	missing.DestPath = "pipe/missing.nc"

	files := pipefile.NewCollection(good, missing)
	if err := storage.UploadCollection(ctx, broker, files); err != nil {
		t.Fatalf("upload collection: %v", err)
	}

	if !good.IsStored {
		t.Fatalf("expected stored flag, publish error: %s", good.PublishError)
	}
	if missing.IsStored || !missing.PublishFailed() {
		t.Fatal("missing source must record a per-file failure")
	}
	if _, err := os.Stat(filepath.Join(root, "pipe", "good.nc")); err != nil {
		t.Fatalf("uploaded object missing: %v", err)
	}
}

func TestSetOverwriteFlags(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()
	broker := storage.NewLocalBroker(root)
	ctx := context.Background()

	if err := broker.Put(ctx, "pipe/existing.nc", strings.NewReader("old"), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	overwrite := pipefile.New(testsupport.WriteNetCDF(t, filepath.Join(base, "existing.nc")))
	fresh := pipefile.New(testsupport.WriteNetCDF(t, filepath.Join(base, "fresh.nc")))
	for _, f := range []*pipefile.File{overwrite, fresh} {
		if err := f.SetPublishType(pipefile.PublishUploadOnly); err != nil {
			t.Fatalf("set publish type: %v", err)
		}
	}
	overwrite.DestPath = "pipe/existing.nc"
	fresh.DestPath = "pipe/fresh.nc"

	if err := storage.SetOverwriteFlags(ctx, broker, pipefile.NewCollection(overwrite, fresh)); err != nil {
		t.Fatalf("set overwrite flags: %v", err)
	}
	if !overwrite.IsOverwrite {
		t.Fatal("expected overwrite flag for existing key")
	}
	if fresh.IsOverwrite {
		t.Fatal("fresh key must not be flagged as overwrite")
	}
}

func TestDeleteCollection(t *testing.T) {
	root := t.TempDir()
	broker := storage.NewLocalBroker(root)
	ctx := context.Background()

	if err := broker.Put(ctx, "pipe/old.nc", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	deletion := pipefile.NewDeletion("/incoming/old.nc")
	if err := deletion.SetPublishType(pipefile.PublishDeleteOnly); err != nil {
		t.Fatalf("set publish type: %v", err)
	}
	deletion.DestPath = "pipe/old.nc"

	if err := storage.DeleteCollection(ctx, broker, pipefile.NewCollection(deletion)); err != nil {
		t.Fatalf("delete collection: %v", err)
	}
	if !deletion.IsStored {
		t.Fatalf("expected stored flag on deletion, publish error: %s", deletion.PublishError)
	}
	remote, err := broker.Query(ctx, "pipe/old.nc")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if remote.Len() != 0 {
		t.Fatal("object still present after delete")
	}
}
