package biometric

import (
	"fmt"
	"strings"
)

// Modality names one finger image type.
type Modality string

const (
	Fingerprint Modality = "fingerprint"
	VeinAug     Modality = "vein_aug"
	VeinBin     Modality = "vein_bin"
	Knuckle     Modality = "knuckle"
)

// Modalities lists every modality in the order the similarity model expects.
var Modalities = []Modality{Fingerprint, VeinAug, VeinBin, Knuckle}

// FieldSet is a statically declared list of modalities an operation requires.
type FieldSet []Modality

var (
	// EnrollmentFields must all be present to create or replace an enrollment.
	EnrollmentFields = FieldSet{Fingerprint, VeinAug, VeinBin, Knuckle}
	// SimilarityFields must all be present for a similarity-scored login.
	SimilarityFields = FieldSet{Fingerprint, VeinAug, VeinBin, Knuckle}
)

// ParseModality maps a form field name to its modality.
func ParseModality(name string) (Modality, error) {
	switch m := Modality(strings.ToLower(strings.TrimSpace(name))); m {
	case Fingerprint, VeinAug, VeinBin, Knuckle:
		return m, nil
	default:
		return "", fmt.Errorf("unknown modality %q", name)
	}
}

func (m Modality) String() string { return string(m) }

// Label returns a human-readable name for messages.
func (m Modality) Label() string {
	switch m {
	case Fingerprint:
		return "fingerprint"
	case VeinAug:
		return "finger vein (enhanced)"
	case VeinBin:
		return "finger vein (binarized)"
	case Knuckle:
		return "knuckle print"
	default:
		return string(m)
	}
}
