package pipefile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrDuplicateFile indicates an attempt to add a file whose source path
	// is already present in a collection.
	ErrDuplicateFile = errors.New("duplicate pipeline file")
	// ErrMissingFile indicates a referenced local file does not exist.
	ErrMissingFile = errors.New("missing file")
)

// UpdateFunc is invoked after a tracked attribute of a PipelineFile changes,
// typically to log file-level progress from the owning handler.
type UpdateFunc func(name, attribute, value string)

// File represents a single file known to a handler run. It records the
// intended publish/check actions and the outcomes of the actions performed.
type File struct {
	// SrcPath is the absolute path on local working storage. It is the
	// identity of the file within a collection and never changes.
	SrcPath string
	// Name defaults to the base name of SrcPath.
	Name string

	// DestPath is the publish key, relative to the upload storage prefix.
	// Empty until computed by the publish step or set explicitly.
	DestPath string
	// ArchivePath is the archive key, relative to the archive storage prefix.
	ArchivePath string

	// IsDeletion distinguishes deletion requests from additions. Deletions
	// have no local content.
	IsDeletion bool
	// LateDeletion defers the deletion until after additions are published.
	// Ignored unless IsDeletion is set.
	LateDeletion bool

	FileType  FileType
	Extension string

	publishType PublishType
	checkType   CheckType

	// Outcome state, populated by step runners.
	CheckResult *CheckResult
	IsStored    bool
	IsHarvested bool
	IsArchived  bool
	IsOverwrite bool
	// PublishError records a per-file publish failure. It escalates the
	// final handler result without aborting the remaining files.
	PublishError string

	checksum string
	onUpdate UpdateFunc
}

// New constructs a File for an addition rooted at the given source path.
func New(srcPath string) *File {
	return newFile(srcPath, false)
}

// NewDeletion constructs a File representing a deletion request. The source
// path follows the same schema as additions but no local content is expected.
func NewDeletion(srcPath string) *File {
	return newFile(srcPath, true)
}

func newFile(srcPath string, isDeletion bool) *File {
	ext := filepath.Ext(srcPath)
	return &File{
		SrcPath:     srcPath,
		Name:        filepath.Base(srcPath),
		IsDeletion:  isDeletion,
		FileType:    TypeFromExtension(ext),
		Extension:   ext,
		publishType: PublishUnset,
		checkType:   CheckUnset,
	}
}

// SetUpdateFunc registers the attribute-change callback.
func (f *File) SetUpdateFunc(fn UpdateFunc) { f.onUpdate = fn }

func (f *File) notify(attribute, value string) {
	if f.onUpdate != nil {
		f.onUpdate(f.Name, attribute, value)
	}
}

// PublishType returns the intended publish actions for the file.
func (f *File) PublishType() PublishType { return f.publishType }

// SetPublishType assigns the intended publish actions, validating the type
// against the file's addition/deletion nature.
func (f *File) SetPublishType(publishType PublishType) error {
	if _, known := publishTypeNames[publishType]; !known {
		return fmt.Errorf("unknown publish type %d", int(publishType))
	}
	if f.IsDeletion && !publishType.IsDeletionType() && publishType != PublishUnset {
		return fmt.Errorf("publish type %s not valid for deletion %q", publishType, f.Name)
	}
	if !f.IsDeletion && !publishType.IsAdditionType() && publishType != PublishUnset {
		return fmt.Errorf("publish type %s not valid for addition %q", publishType, f.Name)
	}
	f.publishType = publishType
	f.notify("publish_type", publishType.String())
	return nil
}

// CheckType returns the validation selected for the file.
func (f *File) CheckType() CheckType { return f.checkType }

// SetCheckType assigns the validation to perform. Deletions cannot be
// checked because they carry no local content.
func (f *File) SetCheckType(checkType CheckType) error {
	if f.IsDeletion {
		return fmt.Errorf("deletion %q cannot be assigned a check type", f.Name)
	}
	if _, known := checkTypeNames[checkType]; !known {
		return fmt.Errorf("unknown check type %d", int(checkType))
	}
	f.checkType = checkType
	f.notify("check_type", checkType.String())
	return nil
}

// SetCheckResult records the outcome of the check step for this file.
func (f *File) SetCheckResult(result CheckResult) {
	f.CheckResult = &result
	f.notify("is_checked", "true")
}

// Checksum returns the SHA-256 digest of the file content, computed lazily
// and cached. Deletions have no content and return an empty string.
func (f *File) Checksum() (string, error) {
	if f.IsDeletion {
		return "", nil
	}
	if f.checksum != "" {
		return f.checksum, nil
	}
	sum, err := ChecksumFile(f.SrcPath)
	if err != nil {
		return "", err
	}
	f.checksum = sum
	return f.checksum, nil
}

// IsChecked reports whether the check step has recorded a result.
func (f *File) IsChecked() bool { return f.CheckResult != nil }

// CheckPassed reports whether the file passed checking. Unchecked files
// report true so that NO_ACTION files never escalate the run result.
func (f *File) CheckPassed() bool {
	return f.CheckResult == nil || f.CheckResult.Compliant
}

// SetPublishError records a per-file publish failure.
func (f *File) SetPublishError(err error) {
	if err == nil {
		return
	}
	f.PublishError = err.Error()
	f.notify("publish_error", f.PublishError)
}

// PublishFailed reports whether a publish action failed for this file.
func (f *File) PublishFailed() bool { return f.PublishError != "" }

// PendingArchive reports whether the file still needs archiving.
func (f *File) PendingArchive() bool {
	return f.publishType.ShouldArchive() && !f.IsArchived
}

// PendingHarvest reports whether the file still needs harvesting.
func (f *File) PendingHarvest() bool {
	return f.publishType.ShouldHarvest() && !f.IsHarvested
}

// PendingStore reports whether the file still needs uploading or deleting.
func (f *File) PendingStore() bool {
	return f.publishType.ShouldStore() && !f.IsStored
}

// Published reports whether all intended publish actions have completed.
func (f *File) Published() bool {
	switch {
	case f.publishType.ShouldStore() && f.publishType.ShouldHarvest():
		return f.IsStored && f.IsHarvested
	case f.publishType.ShouldStore():
		return f.IsStored
	case f.publishType.ShouldHarvest():
		return f.IsHarvested
	default:
		return false
	}
}

// MIMEType returns the media type used when uploading the file.
func (f *File) MIMEType() string {
	return f.FileType.MIMEType()
}

// ChecksumFile computes the SHA-256 digest of a file on disk.
func ChecksumFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	defer fh.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, fh); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// RemoteFile is the read-only projection of a published object returned by a
// storage query. It has no local content.
type RemoteFile struct {
	DestPath     string
	LastModified time.Time
	Size         int64
}

// Name returns the base name of the remote object key.
func (r RemoteFile) Name() string { return filepath.Base(r.DestPath) }
