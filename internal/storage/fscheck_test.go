package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFilesystemLocal(t *testing.T) {
	t.Parallel()

	detector := func(string) (string, error) { return "ext4", nil }
	path := filepath.Join(t.TempDir(), "sub", "state.db")

	if err := validateSQLiteFilesystemWithDetector(path, detector); err != nil {
		t.Fatalf("local filesystem should pass: %v", err)
	}
}

func TestValidateFilesystemNetwork(t *testing.T) {
	t.Parallel()

	for _, fsType := range []string{"nfs", "cifs", "smb2", " NFS "} {
		detector := func(string) (string, error) { return fsType, nil }
		err := validateSQLiteFilesystemWithDetector(t.TempDir(), detector)
		if err == nil {
			t.Fatalf("filesystem %q should be rejected", fsType)
		}
		if !strings.Contains(err.Error(), "network filesystem") {
			t.Fatalf("unexpected error for %q: %v", fsType, err)
		}
	}
}

func TestNearestExistingPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := nearestExistingPath(filepath.Join(dir, "a", "b", "state.db"))
	if err != nil {
		t.Fatalf("nearestExistingPath: %v", err)
	}
	if got != dir {
		t.Fatalf("nearestExistingPath = %q, want %q", got, dir)
	}
}
