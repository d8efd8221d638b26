package pipefile

import (
	"fmt"
	"regexp"
	"sort"
)

// Collection is an ordered set of File pointers, unique by source path.
// Filter methods return new collections referencing the same underlying File
// values; they never mutate the membership of the receiver. Membership never
// shrinks during a handler run: files are reclassified, not removed.
type Collection struct {
	files []*File
	index map[string]*File
}

// NewCollection constructs an empty collection, optionally seeded with files.
// Seeding panics on duplicates; it is intended for literals in tests and
// subclass hooks where membership is statically known.
func NewCollection(files ...*File) *Collection {
	c := &Collection{index: make(map[string]*File)}
	for _, f := range files {
		if err := c.Add(f); err != nil {
			panic(err)
		}
	}
	return c
}

// Add appends a file, preserving insertion order. Adding a file whose source
// path is already present fails with ErrDuplicateFile.
func (c *Collection) Add(f *File) error {
	if _, exists := c.index[f.SrcPath]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFile, f.SrcPath)
	}
	c.files = append(c.files, f)
	c.index[f.SrcPath] = f
	return nil
}

// Update adds every member of another collection to the receiver.
func (c *Collection) Update(other *Collection) error {
	for _, f := range other.files {
		if err := c.Add(f); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of members.
func (c *Collection) Len() int { return len(c.files) }

// Files returns the members in insertion order. The returned slice is a
// copy; the File pointers are shared.
func (c *Collection) Files() []*File {
	out := make([]*File, len(c.files))
	copy(out, c.files)
	return out
}

// Get returns the member with the given source path, or nil.
func (c *Collection) Get(srcPath string) *File { return c.index[srcPath] }

// Contains reports whether a file with the given source path is a member.
func (c *Collection) Contains(srcPath string) bool {
	_, ok := c.index[srcPath]
	return ok
}

// view builds a filtered collection sharing the receiver's File pointers.
func (c *Collection) view(keep func(*File) bool) *Collection {
	out := &Collection{index: make(map[string]*File)}
	for _, f := range c.files {
		if keep(f) {
			out.files = append(out.files, f)
			out.index[f.SrcPath] = f
		}
	}
	return out
}

// Filter returns a view containing only members the predicate accepts.
func (c *Collection) Filter(keep func(*File) bool) *Collection {
	return c.view(keep)
}

// FilterByPublishType returns a view of members with the given publish type.
func (c *Collection) FilterByPublishType(t PublishType) *Collection {
	return c.view(func(f *File) bool { return f.publishType == t })
}

// FilterByCheckType returns a view of members with the given check type.
func (c *Collection) FilterByCheckType(t CheckType) *Collection {
	return c.view(func(f *File) bool { return f.checkType == t })
}

// FilterByExtension returns a view of members with the given extension.
func (c *Collection) FilterByExtension(extension string) *Collection {
	return c.view(func(f *File) bool { return f.Extension == extension })
}

// FilterByFileType returns a view of members with the given file type.
func (c *Collection) FilterByFileType(t FileType) *Collection {
	return c.view(func(f *File) bool { return f.FileType == t })
}

// Additions returns a view of members that are not deletions.
func (c *Collection) Additions() *Collection {
	return c.view(func(f *File) bool { return !f.IsDeletion })
}

// Deletions returns a view of members flagged as deletions.
func (c *Collection) Deletions() *Collection {
	return c.view(func(f *File) bool { return f.IsDeletion })
}

// PendingArchive returns a view of members still awaiting archival.
func (c *Collection) PendingArchive() *Collection {
	return c.view((*File).PendingArchive)
}

// PendingHarvest returns a view of members still awaiting harvest.
func (c *Collection) PendingHarvest() *Collection {
	return c.view((*File).PendingHarvest)
}

// PendingStore returns a view of members still awaiting upload or deletion.
func (c *Collection) PendingStore() *Collection {
	return c.view((*File).PendingStore)
}

// Checkable returns a view of members whose check type requires the check
// runner to be invoked.
func (c *Collection) Checkable() *Collection {
	return c.view(func(f *File) bool { return f.checkType.Checkable() })
}

// SetPublishTypes assigns the publish type on every member of the receiver.
// Applied to a filtered view, the mutation is visible through the parent
// collection because views share File pointers.
func (c *Collection) SetPublishTypes(t PublishType) error {
	for _, f := range c.files {
		if err := f.SetPublishType(t); err != nil {
			return err
		}
	}
	return nil
}

// SetCheckTypes assigns the check type on every addition in the receiver.
// Deletions are skipped since they cannot be checked.
func (c *Collection) SetCheckTypes(t CheckType) error {
	for _, f := range c.files {
		if f.IsDeletion {
			continue
		}
		if err := f.SetCheckType(t); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaultCheckTypes assigns CheckFormat to every addition whose check
// type is still unset.
func (c *Collection) SetDefaultCheckTypes() error {
	for _, f := range c.files {
		if f.IsDeletion || f.checkType != CheckUnset {
			continue
		}
		if err := f.SetCheckType(CheckFormat); err != nil {
			return err
		}
	}
	return nil
}

// SetUpdateFunc registers the attribute-change callback on every member.
func (c *Collection) SetUpdateFunc(fn UpdateFunc) {
	for _, f := range c.files {
		f.SetUpdateFunc(fn)
	}
}

// SetDestPaths computes the destination path for every member that needs
// one, validating the computed paths are unique within the collection.
func (c *Collection) SetDestPaths(fn func(srcPath string) string) error {
	for _, f := range c.files {
		if f.DestPath != "" || (!f.publishType.ShouldStore() && !f.publishType.ShouldHarvest()) {
			continue
		}
		candidate := fn(f.SrcPath)
		if err := c.validateUniqueDestPath(candidate); err != nil {
			return err
		}
		f.DestPath = candidate
		f.notify("dest_path", candidate)
	}
	return nil
}

// SetArchivePaths computes the archive path for every member flagged for
// archival that does not already carry one.
func (c *Collection) SetArchivePaths(fn func(srcPath string) string) error {
	for _, f := range c.files {
		if f.ArchivePath != "" || !f.publishType.ShouldArchive() {
			continue
		}
		candidate := fn(f.SrcPath)
		for _, other := range c.files {
			if other != f && other.ArchivePath == candidate {
				return fmt.Errorf("archive path %q already assigned to %q", candidate, other.Name)
			}
		}
		f.ArchivePath = candidate
		f.notify("archive_path", candidate)
	}
	return nil
}

func (c *Collection) validateUniqueDestPath(destPath string) error {
	for _, f := range c.files {
		if f.DestPath == destPath {
			return fmt.Errorf("dest path %q already assigned to %q", destPath, f.Name)
		}
	}
	return nil
}

// SetPublishTypesFromRegexes assigns the default addition or deletion publish
// type to members whose name matches one of the include regexes and none of
// the exclude regexes. Non-matching members are left untouched, which leaves
// them at NO_ACTION once defaults are applied upstream.
func (c *Collection) SetPublishTypesFromRegexes(include, exclude []*regexp.Regexp, additionType, deletionType PublishType) error {
	for _, f := range c.files {
		if !matchesRegexes(f.Name, include, exclude) {
			continue
		}
		t := additionType
		if f.IsDeletion {
			t = deletionType
		}
		if err := f.SetPublishType(t); err != nil {
			return err
		}
	}
	return nil
}

func matchesRegexes(name string, include, exclude []*regexp.Regexp) bool {
	included := len(include) == 0
	for _, re := range include {
		if re.MatchString(name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, re := range exclude {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

// RemoteCollection holds the read-only results of a storage query, unique by
// destination path.
type RemoteCollection struct {
	files []RemoteFile
	index map[string]int
}

// NewRemoteCollection constructs a remote collection from query results.
// Duplicate destination paths keep the first occurrence.
func NewRemoteCollection(files ...RemoteFile) *RemoteCollection {
	c := &RemoteCollection{index: make(map[string]int, len(files))}
	for _, f := range files {
		c.add(f)
	}
	return c
}

func (c *RemoteCollection) add(f RemoteFile) {
	if _, exists := c.index[f.DestPath]; exists {
		return
	}
	c.index[f.DestPath] = len(c.files)
	c.files = append(c.files, f)
}

// Len returns the number of remote files.
func (c *RemoteCollection) Len() int { return len(c.files) }

// Files returns the remote files in key order.
func (c *RemoteCollection) Files() []RemoteFile {
	out := make([]RemoteFile, len(c.files))
	copy(out, c.files)
	return out
}

// Get returns the remote file for a destination path, if present.
func (c *RemoteCollection) Get(destPath string) (RemoteFile, bool) {
	i, ok := c.index[destPath]
	if !ok {
		return RemoteFile{}, false
	}
	return c.files[i], true
}

// Contains reports whether a destination path exists remotely.
func (c *RemoteCollection) Contains(destPath string) bool {
	_, ok := c.index[destPath]
	return ok
}

// DestPaths returns the sorted destination paths of the collection. Sorting
// keeps query output deterministic regardless of backend enumeration order.
func (c *RemoteCollection) DestPaths() []string {
	out := make([]string, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f.DestPath)
	}
	sort.Strings(out)
	return out
}
