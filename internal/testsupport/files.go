package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"fingerid/internal/biometric"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteImages writes one image file per modality into dir. Contents are derived
// from seed so two sets written with the same seed share every digest.
func WriteImages(t testing.TB, dir, seed string) biometric.ImageSet {
	t.Helper()

	var set biometric.ImageSet
	for _, m := range biometric.Modalities {
		name := seed + "-" + string(m) + "-" + uuid.NewString()[:8] + ".png"
		set.Set(m, WriteFile(t, filepath.Join(dir, name), []byte("image:"+seed+":"+string(m))))
	}
	return set
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
