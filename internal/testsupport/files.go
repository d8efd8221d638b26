package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates the target path with the given content, creating parent
// directories as needed.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteCSV creates a small well-formed CSV file at the target path.
func WriteCSV(t testing.TB, path string) string {
	t.Helper()
	return WriteFile(t, path, "station,timestamp,value\nNRSMAI,2026-01-02T00:00:00Z,14.2\nNRSMAI,2026-01-02T01:00:00Z,14.5\n")
}

// WriteNetCDF creates a file carrying the classic netCDF magic bytes.
func WriteNetCDF(t testing.TB, path string) string {
	t.Helper()
	return WriteFile(t, path, "CDF\x01\x00\x00\x00\x00stub variables")
}
