package handler

import (
	"fmt"
	"path"
	"path/filepath"
	"time"
)

// PathFunc computes a storage key for a local source path. Keys use forward
// slashes regardless of the local separator.
type PathFunc func(srcPath string) string

// newPathFunc resolves a configured path strategy name. The pipeline name is
// the leading key segment for every strategy, which keeps pipelines from
// clobbering each other on shared storage.
func newPathFunc(strategy, pipelineName string) (PathFunc, error) {
	switch strategy {
	case "basename":
		return func(srcPath string) string {
			return path.Join(pipelineName, filepath.Base(srcPath))
		}, nil
	case "dated":
		return func(srcPath string) string {
			now := time.Now().UTC()
			return path.Join(pipelineName, now.Format("2006"), now.Format("01"), filepath.Base(srcPath))
		}, nil
	default:
		return nil, fmt.Errorf("unknown path strategy %q", strategy)
	}
}
