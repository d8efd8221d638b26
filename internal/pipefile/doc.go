// Package pipefile defines the file entities tracked by a pipeline handler
// run and the ordered collections that hold them.
//
// A PipelineFile records both the intended actions for a file (publish type,
// check type) and the actions that were actually performed (stored, harvested,
// archived, check result). The Collection preserves insertion order, enforces
// source-path uniqueness, and supports non-destructive filtering: filters
// return views holding the same underlying pointers, so bulk setters applied
// to a view are visible through the parent collection.
//
// RemoteFile and RemoteCollection are the read-only projections returned by
// storage queries, used to reconcile local intent against what is already
// published.
package pipefile
