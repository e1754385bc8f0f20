package biometric

import (
	"fmt"
	"strings"
)

// ImageSet holds one file path per modality. An empty path means the image
// was not supplied.
type ImageSet struct {
	Fingerprint string
	VeinAug     string
	VeinBin     string
	Knuckle     string
}

// Get returns the path stored for m.
func (s ImageSet) Get(m Modality) string {
	switch m {
	case Fingerprint:
		return s.Fingerprint
	case VeinAug:
		return s.VeinAug
	case VeinBin:
		return s.VeinBin
	case Knuckle:
		return s.Knuckle
	default:
		return ""
	}
}

// Set stores path for m. Unknown modalities are ignored.
func (s *ImageSet) Set(m Modality, path string) {
	switch m {
	case Fingerprint:
		s.Fingerprint = path
	case VeinAug:
		s.VeinAug = path
	case VeinBin:
		s.VeinBin = path
	case Knuckle:
		s.Knuckle = path
	}
}

// Present lists the supplied modalities in canonical order.
func (s ImageSet) Present() []Modality {
	out := make([]Modality, 0, len(Modalities))
	for _, m := range Modalities {
		if strings.TrimSpace(s.Get(m)) != "" {
			out = append(out, m)
		}
	}
	return out
}

// Paths returns the non-empty paths in canonical order.
func (s ImageSet) Paths() []string {
	out := make([]string, 0, len(Modalities))
	for _, m := range s.Present() {
		out = append(out, s.Get(m))
	}
	return out
}

// Empty reports whether no image was supplied.
func (s ImageSet) Empty() bool {
	return len(s.Present()) == 0
}

// Missing returns the modalities of fields that s does not supply.
func (s ImageSet) Missing(fields FieldSet) []Modality {
	var out []Modality
	for _, m := range fields {
		if strings.TrimSpace(s.Get(m)) == "" {
			out = append(out, m)
		}
	}
	return out
}

// Require returns an error naming every missing modality of fields.
func (s ImageSet) Require(fields FieldSet) error {
	missing := s.Missing(fields)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = string(m)
	}
	return fmt.Errorf("missing required images: %s", strings.Join(names, ", "))
}

// Map applies fn to every present path and returns the resulting set.
func (s ImageSet) Map(fn func(Modality, string) string) ImageSet {
	var out ImageSet
	for _, m := range s.Present() {
		out.Set(m, fn(m, s.Get(m)))
	}
	return out
}
