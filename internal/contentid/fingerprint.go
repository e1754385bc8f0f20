package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"fingerid/internal/biometric"
)

// ErrRead reports an image that could not be read for digesting.
var ErrRead = errors.New("read image")

// DigestLength is the length of a hex-encoded digest.
const DigestLength = sha256.Size * 2

// Bytes returns the digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader streams r into the hash and returns its digest.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()
	digest, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return digest, nil
}

// Valid reports whether s looks like a digest produced by this package.
func Valid(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Digests holds one digest per modality, mirroring biometric.ImageSet.
type Digests struct {
	Fingerprint string
	VeinAug     string
	VeinBin     string
	Knuckle     string
}

// Get returns the digest stored for m.
func (d Digests) Get(m biometric.Modality) string {
	switch m {
	case biometric.Fingerprint:
		return d.Fingerprint
	case biometric.VeinAug:
		return d.VeinAug
	case biometric.VeinBin:
		return d.VeinBin
	case biometric.Knuckle:
		return d.Knuckle
	default:
		return ""
	}
}

func (d *Digests) set(m biometric.Modality, digest string) {
	switch m {
	case biometric.Fingerprint:
		d.Fingerprint = digest
	case biometric.VeinAug:
		d.VeinAug = digest
	case biometric.VeinBin:
		d.VeinBin = digest
	case biometric.Knuckle:
		d.Knuckle = digest
	}
}

// Values returns the distinct non-empty digests, sorted.
func (d Digests) Values() []string {
	seen := make(map[string]struct{}, len(biometric.Modalities))
	out := make([]string, 0, len(biometric.Modalities))
	for _, m := range biometric.Modalities {
		v := d.Get(m)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Set digests every image present in images.
func Set(images biometric.ImageSet) (Digests, error) {
	var out Digests
	for _, m := range images.Present() {
		digest, err := File(images.Get(m))
		if err != nil {
			return Digests{}, fmt.Errorf("%s: %w", m, err)
		}
		out.set(m, digest)
	}
	return out, nil
}
