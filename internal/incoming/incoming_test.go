package incoming_test

import (
	"errors"
	"path/filepath"
	"testing"

	"tideflow/internal/incoming"
	"tideflow/internal/testsupport"
)

func TestClaimIsExclusive(t *testing.T) {
	input := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "sample.nc"), "CDF\x01")

	claim, err := incoming.ClaimFile(input)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	if _, err := incoming.ClaimFile(input); !errors.Is(err, incoming.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	if err := claim.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// After release the input can be claimed again.
	again, err := incoming.ClaimFile(input)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestClaimMissingInputFails(t *testing.T) {
	if _, err := incoming.ClaimFile(filepath.Join(t.TempDir(), "absent.nc")); err == nil {
		t.Fatal("expected error claiming missing input")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	input := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "sample.nc"), "x")
	claim, err := incoming.ClaimFile(input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := claim.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := claim.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}
