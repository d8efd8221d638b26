// Package incoming claims input files from the incoming directory. A claim
// is an advisory flock on a sidecar lock file, so concurrent watchers or a
// re-delivered event never hand the same input to two handlers.
package incoming

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyClaimed indicates another process holds the claim on the input.
var ErrAlreadyClaimed = errors.New("input file already claimed")

// Claim is a held lock on one input file. Release it when the run finishes.
type Claim struct {
	InputFile string
	lockPath  string
	lock      *flock.Flock
}

// ClaimFile acquires the claim on an input file without blocking.
func ClaimFile(inputFile string) (*Claim, error) {
	if _, err := os.Stat(inputFile); err != nil {
		return nil, fmt.Errorf("claim %s: %w", inputFile, err)
	}

	lockPath := lockPathFor(inputFile)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire claim on %s: %w", inputFile, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, inputFile)
	}
	return &Claim{InputFile: inputFile, lockPath: lockPath, lock: lock}, nil
}

// Release drops the claim and removes the sidecar lock file.
func (c *Claim) Release() error {
	if c == nil || c.lock == nil {
		return nil
	}
	if err := c.lock.Unlock(); err != nil {
		return fmt.Errorf("release claim on %s: %w", c.InputFile, err)
	}
	// Best effort; a racing claimer may have recreated it.
	_ = os.Remove(c.lockPath)
	c.lock = nil
	return nil
}

func lockPathFor(inputFile string) string {
	dir := filepath.Dir(inputFile)
	return filepath.Join(dir, "."+filepath.Base(inputFile)+".lock")
}
