package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tideflow/internal/pipefile"
)

// LocalBroker stores objects under a root directory, mapping keys to
// relative paths.
type LocalBroker struct {
	root string
}

// NewLocalBroker constructs a broker rooted at the given directory.
func NewLocalBroker(root string) *LocalBroker {
	return &LocalBroker{root: root}
}

func (b *LocalBroker) abs(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// Put writes the content to root/key atomically via a temp file rename.
func (b *LocalBroker) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := b.abs(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize object: %w", err)
	}
	return nil
}

// Delete removes root/key. Absent keys are ignored.
func (b *LocalBroker) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.abs(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Query walks the tree and returns every regular file whose key starts with
// the prefix. A trailing slash behaves like a directory listing; without it
// partial name matches are included, mirroring S3 prefix semantics.
func (b *LocalBroker) Query(ctx context.Context, prefix string) (*pipefile.RemoteCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matches []pipefile.RemoteFile
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, relErr := filepath.Rel(b.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		matches = append(matches, pipefile.RemoteFile{
			DestPath:     key,
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", prefix, err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].DestPath < matches[j].DestPath })
	return pipefile.NewRemoteCollection(matches...), nil
}

func openLocal(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
	return fh, nil
}
