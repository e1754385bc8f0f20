package enrollment

import (
	"context"
	"fmt"

	"fingerid/internal/contentid"
	"fingerid/internal/services"
	"fingerid/internal/store"
)

// MaxLookupDigests bounds one index query to a full image set.
const MaxLookupDigests = 4

// Index resolves image digests to the identity whose enrollment contains them.
type Index struct {
	store *store.Store
}

// NewIndex constructs an Index over st.
func NewIndex(st *store.Store) *Index {
	return &Index{store: st}
}

// Lookup returns the identity owning any of digests. Empty entries are
// ignored; a digest matches regardless of which modality it was stored under.
func (i *Index) Lookup(ctx context.Context, digests []string) (int64, bool, error) {
	clean := make([]string, 0, len(digests))
	seen := make(map[string]struct{}, len(digests))
	for _, d := range digests {
		if d == "" {
			continue
		}
		if !contentid.Valid(d) {
			return 0, false, services.Wrap(services.ErrValidation, "enrollment", "lookup", fmt.Sprintf("malformed digest %q", d), nil)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		clean = append(clean, d)
	}
	if len(clean) > MaxLookupDigests {
		return 0, false, services.Wrap(services.ErrValidation, "enrollment", "lookup", fmt.Sprintf("at most %d digests per lookup", MaxLookupDigests), nil)
	}
	if len(clean) == 0 {
		return 0, false, nil
	}
	return i.store.LookupDigests(ctx, clean)
}
