package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps"
)

// Broker is the minimum storage capability the engine requires from any
// backend implementation.
type Broker interface {
	// Put stores the content under key, overwriting any existing object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Delete removes the object under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
	// Query performs a prefix search and returns all matching keys with
	// last-modified time and size. It is read-only and, for a fixed
	// backend state, deterministic. Results may be stale by the time a
	// subsequent write executes; callers must tolerate that race.
	Query(ctx context.Context, prefix string) (*pipefile.RemoteCollection, error)
}

// NewBroker constructs a broker for a storage URI. file:// URIs map to a
// local directory tree, s3://bucket/prefix to an S3 bucket.
func NewBroker(ctx context.Context, uri, region string) (Broker, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, steps.Wrap(steps.ErrConfiguration, "storage", fmt.Sprintf("parse uri %q", uri), err)
	}
	switch parsed.Scheme {
	case "file":
		if parsed.Host != "" {
			return nil, steps.Wrap(steps.ErrConfiguration, "storage",
				fmt.Sprintf("uri %q must be an absolute path", uri), nil)
		}
		return NewLocalBroker(parsed.Path), nil
	case "s3":
		return NewS3Broker(ctx, parsed.Host, strings.TrimPrefix(parsed.Path, "/"), region)
	default:
		return nil, steps.Wrap(steps.ErrConfiguration, "storage",
			fmt.Sprintf("unsupported uri scheme %q", parsed.Scheme), nil)
	}
}

// UploadCollection uploads every pending-store addition in the collection,
// setting IsStored on success. A single file's failure is recorded on that
// file and the remaining files are still attempted.
func UploadCollection(ctx context.Context, broker Broker, files *pipefile.Collection) error {
	for _, f := range files.Files() {
		if f.IsDeletion {
			continue
		}
		if err := uploadOne(ctx, broker, f, f.DestPath); err != nil {
			f.SetPublishError(err)
			continue
		}
		f.IsStored = true
	}
	return nil
}

// DeleteCollection removes every pending-store deletion in the collection
// from the backend, setting IsStored on success.
func DeleteCollection(ctx context.Context, broker Broker, files *pipefile.Collection) error {
	for _, f := range files.Files() {
		if !f.IsDeletion {
			continue
		}
		if err := broker.Delete(ctx, f.DestPath); err != nil {
			f.SetPublishError(fmt.Errorf("delete %s: %w", f.DestPath, err))
			continue
		}
		f.IsStored = true
	}
	return nil
}

// ArchiveCollection uploads every pending-archive member to the archive
// broker using the file's archive path, setting IsArchived on success.
func ArchiveCollection(ctx context.Context, broker Broker, files *pipefile.Collection) error {
	for _, f := range files.Files() {
		if err := uploadOne(ctx, broker, f, f.ArchivePath); err != nil {
			f.SetPublishError(err)
			continue
		}
		f.IsArchived = true
	}
	return nil
}

// SetOverwriteFlags marks which pending-store additions will overwrite an
// existing remote key, by querying the backend for each destination path.
func SetOverwriteFlags(ctx context.Context, broker Broker, files *pipefile.Collection) error {
	for _, f := range files.Files() {
		if f.IsDeletion || !f.PublishType().ShouldStore() || f.DestPath == "" {
			continue
		}
		remote, err := broker.Query(ctx, f.DestPath)
		if err != nil {
			return steps.Wrap(steps.ErrSystem, "storage", fmt.Sprintf("query %s", f.DestPath), err)
		}
		f.IsOverwrite = remote.Contains(f.DestPath)
	}
	return nil
}

func uploadOne(ctx context.Context, broker Broker, f *pipefile.File, key string) error {
	if key == "" {
		return fmt.Errorf("no destination key set for %q", f.Name)
	}
	body, err := openLocal(f.SrcPath)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := broker.Put(ctx, key, body, f.MIMEType()); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
