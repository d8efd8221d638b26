// Package resolve expands a handler's raw input reference into the initial
// file collection.
//
// A plain data file resolves to a one-member collection after being copied
// into the handler's collection directory. Manifest inputs resolve in place:
// a simple manifest lists one source path per line, and an rsync manifest is
// the captured output of rsync --itemize-changes, whose deletion lines
// become deletion members with no local content.
package resolve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps"
)

// Runner resolves one input file. Construction selects the implementation
// from the input's file type; there is no configuration key because the
// input itself determines the format.
func NewRunner(inputFile, collectionDir, manifestRoot string, logger *slog.Logger) steps.ResolveRunner {
	log := steps.Logger(logger, "resolve")
	switch pipefile.TypeFromName(inputFile) {
	case pipefile.TypeSimpleManifest:
		return &simpleManifestRunner{inputFile: inputFile, root: manifestRoot, log: log}
	case pipefile.TypeRsyncManifest:
		return &rsyncManifestRunner{inputFile: inputFile, root: manifestRoot, log: log}
	default:
		return &singleFileRunner{inputFile: inputFile, collectionDir: collectionDir, log: log}
	}
}

// singleFileRunner copies the input into the collection directory and
// resolves to a one-member collection. Copying keeps later steps from
// mutating the original incoming file in place.
type singleFileRunner struct {
	inputFile     string
	collectionDir string
	log           *slog.Logger
}

func (r *singleFileRunner) Run(ctx context.Context) (*pipefile.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := filepath.Join(r.collectionDir, filepath.Base(r.inputFile))
	if err := copyFile(r.inputFile, target); err != nil {
		return nil, steps.Wrap(steps.ErrSystem, "resolve", "copy input to collection dir", err)
	}
	r.log.Debug("resolved single file", slog.String("path", target))

	collection := pipefile.NewCollection()
	if err := collection.Add(pipefile.New(target)); err != nil {
		return nil, steps.Wrap(steps.ErrSystem, "resolve", "add input file", err)
	}
	return collection, nil
}

// simpleManifestRunner reads a manifest listing one source path per line.
// Relative paths are resolved against the configured manifest root; files
// are referenced in place rather than copied.
type simpleManifestRunner struct {
	inputFile string
	root      string
	log       *slog.Logger
}

func (r *simpleManifestRunner) Run(ctx context.Context) (*pipefile.Collection, error) {
	collection := pipefile.NewCollection()
	err := r.eachLine(ctx, func(line string) error {
		path := r.absPath(line)
		if _, statErr := os.Stat(path); statErr != nil {
			return steps.Wrap(steps.ErrNotFound, "resolve", fmt.Sprintf("manifest entry %q", line), statErr)
		}
		return collection.Add(pipefile.New(path))
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("resolved simple manifest", slog.Int("files", collection.Len()))
	return collection, nil
}

func (r *simpleManifestRunner) absPath(line string) string {
	if filepath.IsAbs(line) {
		return line
	}
	return filepath.Join(r.root, line)
}

func (r *simpleManifestRunner) eachLine(ctx context.Context, fn func(string) error) error {
	return eachManifestLine(ctx, r.inputFile, fn)
}

// Itemized-change line formats recognised in rsync manifests. Directory
// additions and deletions carry no file action and are skipped.
var (
	rsyncRecordPattern = regexp.MustCompile(`^(\*deleting|[>.][df].{9})\s{1,3}(.*)$`)
	rsyncFileAdd       = regexp.MustCompile(`^>f.{9}$`)
	rsyncDelete        = regexp.MustCompile(`^\*deleting$`)
)

// rsyncManifestRunner parses captured `rsync --itemize-changes` output.
// File additions become ordinary members; `*deleting` lines become deletion
// members. Header, directory, and summary lines are ignored.
type rsyncManifestRunner struct {
	inputFile string
	root      string
	log       *slog.Logger
}

func (r *rsyncManifestRunner) Run(ctx context.Context) (*pipefile.Collection, error) {
	collection := pipefile.NewCollection()
	err := eachManifestLine(ctx, r.inputFile, func(line string) error {
		match := rsyncRecordPattern.FindStringSubmatch(line)
		if match == nil {
			return nil
		}
		operation, relPath := match[1], match[2]
		abs := relPath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.root, relPath)
		}
		switch {
		case rsyncFileAdd.MatchString(operation):
			return collection.Add(pipefile.New(abs))
		case rsyncDelete.MatchString(operation) && !strings.HasSuffix(relPath, "/"):
			return collection.Add(pipefile.NewDeletion(abs))
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("resolved rsync manifest",
		slog.Int("additions", collection.Additions().Len()),
		slog.Int("deletions", collection.Deletions().Len()))
	return collection, nil
}

func eachManifestLine(ctx context.Context, path string, fn func(string) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return steps.Wrap(steps.ErrNotFound, "resolve", "open manifest", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return steps.Wrap(steps.ErrSystem, "resolve", "read manifest", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
