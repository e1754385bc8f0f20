package enrollment_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
	"fingerid/internal/enrollment"
	"fingerid/internal/services"
	"fingerid/internal/store"
	"fingerid/internal/testsupport"
)

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveEnrollment(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func newManager(t *testing.T) (*enrollment.Manager, *store.Store, string, *countingObserver) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	obs := &countingObserver{}
	return enrollment.NewManager(st, cfg.Paths.UploadDir, enrollment.WithObserver(obs)), st, cfg.Paths.UploadDir, obs
}

func TestEnrollRequiresAllFourImages(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "alice", "pw", store.RoleOrdinary, store.StatusApproved)

	images := testsupport.WriteImages(t, uploads, "alice")
	images.Knuckle = ""

	_, err := mgr.Enroll(ctx, user.ID, images)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if got, _ := mgr.Get(ctx, user.ID); got != nil {
		t.Fatalf("expected no enrollment, got %+v", got)
	}
	for _, path := range images.Paths() {
		if testsupport.Exists(path) {
			t.Fatalf("expected submitted file %s to be discarded", path)
		}
	}
}

func TestEnrollCreatesThenReplaces(t *testing.T) {
	mgr, st, uploads, obs := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "bob", "pw", store.RoleOrdinary, store.StatusApproved)

	first := testsupport.WriteImages(t, uploads, "bob-v1")
	res, err := mgr.Enroll(ctx, user.ID, first)
	if err != nil {
		t.Fatalf("Enroll(first): %v", err)
	}
	if res.Action != enrollment.ActionCreated {
		t.Fatalf("expected created, got %s", res.Action)
	}

	second := testsupport.WriteImages(t, uploads, "bob-v2")
	res, err = mgr.Enroll(ctx, user.ID, second)
	if err != nil {
		t.Fatalf("Enroll(second): %v", err)
	}
	if res.Action != enrollment.ActionUpdated {
		t.Fatalf("expected updated, got %s", res.Action)
	}

	for _, path := range first.Paths() {
		if testsupport.Exists(path) {
			t.Fatalf("expected replaced file %s to be removed", path)
		}
	}
	stored, err := mgr.Get(ctx, user.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get: %+v %v", stored, err)
	}
	paths := mgr.Paths(stored)
	for _, m := range biometric.Modalities {
		if paths.Get(m) != second.Get(m) {
			t.Fatalf("%s: expected %s, got %s", m, second.Get(m), paths.Get(m))
		}
	}
	if obs.outcomes["created"] != 1 || obs.outcomes["updated"] != 1 {
		t.Fatalf("unexpected outcomes: %v", obs.outcomes)
	}
}

func TestEnrollRejectsImageEnrolledByAnotherIdentity(t *testing.T) {
	mgr, st, uploads, obs := newManager(t)
	ctx := context.Background()
	a := testsupport.NewIdentity(t, st, "alice", "pw", store.RoleOrdinary, store.StatusApproved)
	b := testsupport.NewIdentity(t, st, "bob", "pw", store.RoleOrdinary, store.StatusApproved)

	if _, err := mgr.Enroll(ctx, a.ID, testsupport.WriteImages(t, uploads, "alice")); err != nil {
		t.Fatalf("Enroll(a): %v", err)
	}
	bOriginal := testsupport.WriteImages(t, uploads, "bob")
	if _, err := mgr.Enroll(ctx, b.ID, bOriginal); err != nil {
		t.Fatalf("Enroll(b): %v", err)
	}

	// Bob submits Alice's fingerprint bytes in his vein_bin slot.
	attempt := testsupport.WriteImages(t, uploads, "bob-again")
	testsupport.WriteFile(t, attempt.VeinBin, []byte("image:alice:fingerprint"))

	_, err := mgr.Enroll(ctx, b.ID, attempt)
	if !errors.Is(err, services.ErrDuplicateBiometric) {
		t.Fatalf("expected ErrDuplicateBiometric, got %v", err)
	}

	stored, err := mgr.Get(ctx, b.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get(b): %+v %v", stored, err)
	}
	if mgr.Paths(stored) != bOriginal {
		t.Fatalf("expected bob's enrollment untouched, got %+v", stored.Images)
	}
	for _, path := range bOriginal.Paths() {
		if !testsupport.Exists(path) {
			t.Fatalf("expected bob's existing file %s to survive", path)
		}
	}
	for _, path := range attempt.Paths() {
		if testsupport.Exists(path) {
			t.Fatalf("expected rejected file %s to be discarded", path)
		}
	}
	if obs.outcomes["duplicate"] != 1 {
		t.Fatalf("expected one duplicate outcome, got %v", obs.outcomes)
	}
}

func TestEnrollSameIdentitySameImagesIsAllowed(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "carol", "pw", store.RoleOrdinary, store.StatusApproved)

	if _, err := mgr.Enroll(ctx, user.ID, testsupport.WriteImages(t, uploads, "carol")); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	res, err := mgr.Enroll(ctx, user.ID, testsupport.WriteImages(t, uploads, "carol"))
	if err != nil {
		t.Fatalf("re-Enroll with identical bytes: %v", err)
	}
	if res.Action != enrollment.ActionUpdated {
		t.Fatalf("expected updated, got %s", res.Action)
	}
}

func TestDeleteRemovesRowAndAllowsReenroll(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "dave", "pw", store.RoleOrdinary, store.StatusApproved)

	images := testsupport.WriteImages(t, uploads, "dave")
	if _, err := mgr.Enroll(ctx, user.ID, images); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := mgr.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := mgr.Get(ctx, user.ID); got != nil {
		t.Fatalf("expected enrollment gone, got %+v", got)
	}
	for _, path := range images.Paths() {
		if testsupport.Exists(path) {
			t.Fatalf("expected file %s removed", path)
		}
	}
	if err := mgr.Delete(ctx, user.ID); !errors.Is(err, services.ErrNoEnrollment) {
		t.Fatalf("expected ErrNoEnrollment on second delete, got %v", err)
	}

	res, err := mgr.Enroll(ctx, user.ID, testsupport.WriteImages(t, uploads, "dave"))
	if err != nil {
		t.Fatalf("re-Enroll after delete: %v", err)
	}
	if res.Action != enrollment.ActionCreated {
		t.Fatalf("expected created after delete, got %s", res.Action)
	}
}

func TestEnrollMovesFilesFromOutsideUploadDir(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "erin", "pw", store.RoleOrdinary, store.StatusApproved)

	staged := testsupport.WriteImages(t, t.TempDir(), "erin")
	res, err := mgr.Enroll(ctx, user.ID, staged)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	for _, m := range biometric.Modalities {
		name := res.Enrollment.Images.Get(m)
		if filepath.Base(name) != name {
			t.Fatalf("expected bare stored name, got %q", name)
		}
		if !testsupport.Exists(filepath.Join(uploads, name)) {
			t.Fatalf("expected %s moved into uploads", name)
		}
	}
}

func TestRegisterRollsBackIdentityOnDuplicate(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	owner := testsupport.NewIdentity(t, st, "frank", "pw", store.RoleOrdinary, store.StatusApproved)
	if _, err := mgr.Enroll(ctx, owner.ID, testsupport.WriteImages(t, uploads, "frank")); err != nil {
		t.Fatalf("Enroll(owner): %v", err)
	}

	create := func(ctx context.Context, tx *store.Store) (int64, error) {
		identity := &store.Identity{Username: "impostor", PasswordHash: "x"}
		if err := tx.CreateIdentity(ctx, identity); err != nil {
			return 0, err
		}
		return identity.ID, nil
	}
	_, _, err := mgr.Register(ctx, create, testsupport.WriteImages(t, uploads, "frank"))
	if !errors.Is(err, services.ErrDuplicateBiometric) {
		t.Fatalf("expected ErrDuplicateBiometric, got %v", err)
	}
	if got, _ := st.IdentityByUsername(ctx, "impostor"); got != nil {
		t.Fatalf("expected identity rolled back, got %+v", got)
	}

	id, res, err := mgr.Register(ctx, create, testsupport.WriteImages(t, uploads, "genuine"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 || res.Action != enrollment.ActionCreated {
		t.Fatalf("unexpected register result id=%d res=%+v", id, res)
	}
}

func TestConcurrentEnrollmentOfSameImagesAdmitsOne(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()

	const workers = 4
	ids := make([]int64, workers)
	sets := make([]biometric.ImageSet, workers)
	for i := range ids {
		ids[i] = testsupport.NewIdentity(t, st, "racer"+string(rune('a'+i)), "pw", store.RoleOrdinary, store.StatusApproved).ID
		sets[i] = testsupport.WriteImages(t, uploads, "shared")
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.Enroll(ctx, ids[i], sets[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrDuplicateBiometric):
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one enrollment to win, got %d", succeeded)
	}
}

func TestIndexLookup(t *testing.T) {
	mgr, st, uploads, _ := newManager(t)
	ctx := context.Background()
	user := testsupport.NewIdentity(t, st, "gina", "pw", store.RoleOrdinary, store.StatusApproved)
	images := testsupport.WriteImages(t, uploads, "gina")
	digests, err := contentid.Set(images)
	if err != nil {
		t.Fatalf("contentid.Set: %v", err)
	}
	if _, err := mgr.Enroll(ctx, user.ID, images); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	index := enrollment.NewIndex(st)
	id, found, err := index.Lookup(ctx, []string{"", digests.Knuckle})
	if err != nil || !found || id != user.ID {
		t.Fatalf("Lookup: id=%d found=%v err=%v", id, found, err)
	}
	if _, found, err := index.Lookup(ctx, nil); err != nil || found {
		t.Fatalf("expected empty lookup to miss, found=%v err=%v", found, err)
	}
	if _, _, err := index.Lookup(ctx, []string{"not-a-digest"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	many := []string{
		contentid.Bytes([]byte("1")), contentid.Bytes([]byte("2")), contentid.Bytes([]byte("3")),
		contentid.Bytes([]byte("4")), contentid.Bytes([]byte("5")),
	}
	if _, _, err := index.Lookup(ctx, many); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for five digests, got %v", err)
	}
}
