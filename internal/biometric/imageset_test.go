package biometric_test

import (
	"path/filepath"
	"strings"
	"testing"

	"fingerid/internal/biometric"
)

func TestRequireNamesMissingModalities(t *testing.T) {
	set := biometric.ImageSet{Fingerprint: "/a.png", VeinAug: "/b.png", VeinBin: "/c.png"}
	err := set.Require(biometric.EnrollmentFields)
	if err == nil {
		t.Fatal("expected missing knuckle to fail")
	}
	if !strings.Contains(err.Error(), "knuckle") {
		t.Fatalf("expected knuckle in error, got %q", err)
	}
	set.Knuckle = "/d.png"
	if err := set.Require(biometric.EnrollmentFields); err != nil {
		t.Fatalf("expected complete set to pass, got %v", err)
	}
}

func TestPresentKeepsCanonicalOrder(t *testing.T) {
	var set biometric.ImageSet
	set.Set(biometric.Knuckle, "k")
	set.Set(biometric.Fingerprint, "f")

	got := set.Present()
	if len(got) != 2 || got[0] != biometric.Fingerprint || got[1] != biometric.Knuckle {
		t.Fatalf("unexpected order: %v", got)
	}
	if set.Empty() {
		t.Fatal("expected non-empty set")
	}
	if !(biometric.ImageSet{}).Empty() {
		t.Fatal("expected zero set to be empty")
	}
}

func TestMapRewritesPresentPaths(t *testing.T) {
	set := biometric.ImageSet{Fingerprint: "fp.png", VeinBin: "vb.png"}
	abs := set.Map(func(_ biometric.Modality, name string) string {
		return filepath.Join("/uploads", name)
	})
	if abs.Fingerprint != "/uploads/fp.png" || abs.VeinBin != "/uploads/vb.png" {
		t.Fatalf("unexpected mapping: %+v", abs)
	}
	if abs.VeinAug != "" || abs.Knuckle != "" {
		t.Fatalf("absent slots must stay empty: %+v", abs)
	}
}

func TestParseModality(t *testing.T) {
	m, err := biometric.ParseModality(" Vein_Aug ")
	if err != nil || m != biometric.VeinAug {
		t.Fatalf("unexpected parse result %q %v", m, err)
	}
	if _, err := biometric.ParseModality("palm"); err == nil {
		t.Fatal("expected unknown modality error")
	}
}
