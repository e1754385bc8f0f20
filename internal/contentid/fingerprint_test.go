package contentid_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
)

func TestBytesKnownVector(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := contentid.Bytes([]byte("abc")); got != want {
		t.Fatalf("unexpected digest: got %s want %s", got, want)
	}
	if !contentid.Valid(want) {
		t.Fatal("expected known digest to be valid")
	}
}

func TestIdenticalBytesShareDigest(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 512)
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	if err := os.WriteFile(a, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	da, err := contentid.File(a)
	if err != nil {
		t.Fatalf("File(a): %v", err)
	}
	db, err := contentid.File(b)
	if err != nil {
		t.Fatalf("File(b): %v", err)
	}
	if da != db {
		t.Fatalf("expected equal digests, got %s and %s", da, db)
	}
	if da != contentid.Bytes(payload) {
		t.Fatal("File and Bytes disagree")
	}
}

func TestSingleByteChangeAltersDigest(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 1024)
	before := contentid.Bytes(payload)
	payload[512] ^= 0x01
	if after := contentid.Bytes(payload); after == before {
		t.Fatal("expected digest to change after flipping one bit")
	}
}

func TestFileMissingReportsReadError(t *testing.T) {
	_, err := contentid.File(filepath.Join(t.TempDir(), "absent.png"))
	if !errors.Is(err, contentid.ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}
}

func TestSetDigestsPresentImagesAndDeduplicatesValues(t *testing.T) {
	dir := t.TempDir()
	same := filepath.Join(dir, "same.png")
	other := filepath.Join(dir, "other.png")
	if err := os.WriteFile(same, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(other, []byte("other"), 0o644); err != nil {
		t.Fatal(err)
	}

	digests, err := contentid.Set(biometric.ImageSet{Fingerprint: same, VeinAug: same, Knuckle: other})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if digests.VeinBin != "" {
		t.Fatalf("expected absent slot to stay empty, got %q", digests.VeinBin)
	}
	if got := digests.Values(); len(got) != 2 {
		t.Fatalf("expected two distinct digests, got %v", got)
	}
}

func TestValidRejectsMalformed(t *testing.T) {
	for _, value := range []string{"", "abc", "ZZ7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"} {
		if contentid.Valid(value) {
			t.Fatalf("expected %q to be invalid", value)
		}
	}
}
