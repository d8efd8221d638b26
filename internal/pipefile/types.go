package pipefile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PublishType declares which combination of archive/upload/harvest actions
// must occur before a file is considered published.
type PublishType int

const (
	// PublishUnset is the sentinel for files not yet assigned a type.
	PublishUnset PublishType = iota
	// PublishNoAction excludes the file from the publish step entirely.
	PublishNoAction
	PublishArchiveOnly
	PublishUploadOnly
	PublishHarvestOnly
	PublishHarvestArchive
	PublishHarvestUpload
	PublishHarvestArchiveUpload
	PublishUnharvestOnly
	PublishDeleteOnly
	PublishDeleteUnharvest
)

var publishTypeNames = map[PublishType]string{
	PublishUnset:                "unset",
	PublishNoAction:             "no_action",
	PublishArchiveOnly:          "archive_only",
	PublishUploadOnly:           "upload_only",
	PublishHarvestOnly:          "harvest_only",
	PublishHarvestArchive:       "harvest_archive",
	PublishHarvestUpload:        "harvest_upload",
	PublishHarvestArchiveUpload: "harvest_archive_upload",
	PublishUnharvestOnly:        "unharvest_only",
	PublishDeleteOnly:           "delete_only",
	PublishDeleteUnharvest:      "delete_unharvest",
}

func (p PublishType) String() string {
	if name, ok := publishTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("publish_type(%d)", int(p))
}

// ParsePublishType converts a configuration string into a PublishType.
func ParsePublishType(value string) (PublishType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for t, name := range publishTypeNames {
		if name == normalized {
			return t, true
		}
	}
	return PublishUnset, false
}

// IsAdditionType reports whether the type is valid for addition files.
func (p PublishType) IsAdditionType() bool {
	switch p {
	case PublishNoAction, PublishArchiveOnly, PublishUploadOnly, PublishHarvestOnly,
		PublishHarvestArchive, PublishHarvestUpload, PublishHarvestArchiveUpload:
		return true
	}
	return false
}

// IsDeletionType reports whether the type is valid for deletion files.
func (p PublishType) IsDeletionType() bool {
	switch p {
	case PublishNoAction, PublishUnharvestOnly, PublishDeleteOnly, PublishDeleteUnharvest:
		return true
	}
	return false
}

// ShouldArchive reports whether the publish step must archive the file.
func (p PublishType) ShouldArchive() bool {
	switch p {
	case PublishArchiveOnly, PublishHarvestArchive, PublishHarvestArchiveUpload:
		return true
	}
	return false
}

// ShouldStore reports whether the publish step must upload or delete the
// file on the upload storage.
func (p PublishType) ShouldStore() bool {
	switch p {
	case PublishUploadOnly, PublishHarvestUpload, PublishHarvestArchiveUpload,
		PublishDeleteOnly, PublishDeleteUnharvest:
		return true
	}
	return false
}

// ShouldHarvest reports whether the publish step must harvest or unharvest
// the file.
func (p PublishType) ShouldHarvest() bool {
	switch p {
	case PublishHarvestOnly, PublishHarvestArchive, PublishHarvestUpload,
		PublishHarvestArchiveUpload, PublishUnharvestOnly, PublishDeleteUnharvest:
		return true
	}
	return false
}

// CheckType selects which validation the check step performs on a file.
type CheckType int

const (
	CheckUnset CheckType = iota
	CheckNoAction
	CheckNonEmpty
	CheckFormat
)

var checkTypeNames = map[CheckType]string{
	CheckUnset:    "unset",
	CheckNoAction: "no_action",
	CheckNonEmpty: "nonempty",
	CheckFormat:   "format",
}

func (c CheckType) String() string {
	if name, ok := checkTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("check_type(%d)", int(c))
}

// ParseCheckType converts a configuration string into a CheckType.
func ParseCheckType(value string) (CheckType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for t, name := range checkTypeNames {
		if name == normalized {
			return t, true
		}
	}
	return CheckUnset, false
}

// Checkable reports whether the type causes the check runner to be invoked.
func (c CheckType) Checkable() bool {
	return c != CheckUnset && c != CheckNoAction
}

// CheckResult holds the outcome of checking a single file. It is set once by
// the check step and never mutated afterwards.
type CheckResult struct {
	Compliant bool
	Log       []string
	Errors    bool
}

// FileType classifies a file by extension.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeCSV
	TypeGzip
	TypeJPEG
	TypeNetCDF
	TypePDF
	TypePNG
	TypeZip
	TypeSimpleManifest
	TypeRsyncManifest
)

var fileTypeInfo = map[FileType]struct {
	name       string
	mimeType   string
	extensions []string
}{
	TypeUnknown:        {"unknown", "application/octet-stream", nil},
	TypeCSV:            {"csv", "text/csv", []string{".csv"}},
	TypeGzip:           {"gzip", "application/gzip", []string{".gz"}},
	TypeJPEG:           {"jpeg", "image/jpeg", []string{".jpg", ".jpeg"}},
	TypeNetCDF:         {"netcdf", "application/octet-stream", []string{".nc"}},
	TypePDF:            {"pdf", "application/pdf", []string{".pdf"}},
	TypePNG:            {"png", "image/png", []string{".png"}},
	TypeZip:            {"zip", "application/zip", []string{".zip"}},
	TypeSimpleManifest: {"simple_manifest", "text/plain", []string{".manifest"}},
	TypeRsyncManifest:  {"rsync_manifest", "text/plain", []string{".rsync_manifest"}},
}

func (t FileType) String() string {
	return fileTypeInfo[t].name
}

// MIMEType returns the media type recorded for the file type.
func (t FileType) MIMEType() string {
	return fileTypeInfo[t].mimeType
}

// TypeFromExtension maps a file extension (including the leading dot) to a
// FileType, falling back to TypeUnknown.
func TypeFromExtension(extension string) FileType {
	normalized := strings.ToLower(strings.TrimSpace(extension))
	for t, info := range fileTypeInfo {
		for _, ext := range info.extensions {
			if ext == normalized {
				return t
			}
		}
	}
	return TypeUnknown
}

// TypeFromName maps a file name or path to a FileType via its extension.
func TypeFromName(name string) FileType {
	return TypeFromExtension(filepath.Ext(name))
}
