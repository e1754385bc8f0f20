package store_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
	"fingerid/internal/store"
	"fingerid/internal/testsupport"
)

func digestsFor(seed string) contentid.Digests {
	return contentid.Digests{
		Fingerprint: contentid.Bytes([]byte(seed + "-fp")),
		VeinAug:     contentid.Bytes([]byte(seed + "-va")),
		VeinBin:     contentid.Bytes([]byte(seed + "-vb")),
		Knuckle:     contentid.Bytes([]byte(seed + "-kn")),
	}
}

func imagesFor(seed string) biometric.ImageSet {
	return biometric.ImageSet{
		Fingerprint: seed + "-fp.png",
		VeinAug:     seed + "-va.png",
		VeinBin:     seed + "-vb.png",
		Knuckle:     seed + "-kn.png",
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	version, err := st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != "0001_init" {
		t.Fatalf("unexpected schema version %q", version)
	}

	// Reopening must not reapply migrations.
	st.Close()
	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.CountEnrollments(context.Background()); err != nil {
		t.Fatalf("CountEnrollments after reopen: %v", err)
	}
}

func TestCreateIdentityRejectsDuplicateUsername(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewIdentity(t, st, "alice", "pw", store.RoleOrdinary, store.StatusPending)
	if first.ID == 0 {
		t.Fatal("expected identity ID to be assigned")
	}
	err := st.CreateIdentity(context.Background(), &store.Identity{Username: "alice", PasswordHash: "x"})
	if !errors.Is(err, store.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestIdentityLookupsAndUpdate(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	created := testsupport.NewIdentity(t, st, "bob", "pw", store.RoleOrdinary, store.StatusPending)

	byName, err := st.IdentityByUsername(ctx, "bob")
	if err != nil || byName == nil || byName.ID != created.ID {
		t.Fatalf("IdentityByUsername: %+v %v", byName, err)
	}
	missing, err := st.IdentityByID(ctx, created.ID+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing identity, got %+v %v", missing, err)
	}

	status := store.StatusRejected
	reason := "images unreadable"
	updated, err := st.UpdateIdentity(ctx, created.ID, store.IdentityUpdate{Status: &status, Reason: &reason})
	if err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}
	if updated.Status != store.StatusRejected || updated.Reason != reason {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Fatalf("updated_at before created_at: %+v", updated)
	}
}

func TestListIdentitiesFilters(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	testsupport.NewIdentity(t, st, "carol", "pw", store.RoleOrdinary, store.StatusPending)
	testsupport.NewIdentity(t, st, "dave", "pw", store.RoleOrdinary, store.StatusApproved)
	testsupport.NewIdentity(t, st, "erin", "pw", store.RoleApprover, store.StatusApproved)

	pending, err := st.ListIdentities(ctx, store.IdentityFilter{Status: store.StatusPending})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(pending) != 1 || pending[0].Username != "carol" {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	approvers, err := st.ListIdentities(ctx, store.IdentityFilter{Role: store.RoleApprover})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(approvers) != 1 || approvers[0].Username != "erin" {
		t.Fatalf("unexpected approver list: %+v", approvers)
	}

	search, err := st.ListIdentities(ctx, store.IdentityFilter{Keyword: "DAV"})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(search) != 1 || search[0].Username != "dave" {
		t.Fatalf("unexpected search result: %+v", search)
	}

	counts, err := st.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[store.StatusApproved] != 2 || counts[store.StatusPending] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestLookupDigestsMatchesAcrossFields(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	owner := testsupport.NewIdentity(t, st, "frank", "pw", store.RoleOrdinary, store.StatusApproved)
	digests := digestsFor("frank")
	if err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: owner.ID, Images: imagesFor("frank"), Digests: digests}); err != nil {
		t.Fatalf("SaveEnrollment: %v", err)
	}

	// A knuckle digest submitted where a fingerprint is expected still resolves.
	id, found, err := st.LookupDigests(ctx, []string{digests.Knuckle})
	if err != nil {
		t.Fatalf("LookupDigests: %v", err)
	}
	if !found || id != owner.ID {
		t.Fatalf("expected owner %d, got %d (found=%v)", owner.ID, id, found)
	}

	if _, found, err := st.LookupDigests(ctx, []string{contentid.Bytes([]byte("unknown"))}); err != nil || found {
		t.Fatalf("expected no match, got found=%v err=%v", found, err)
	}
	if _, found, err := st.LookupDigests(ctx, nil); err != nil || found {
		t.Fatalf("expected empty lookup to miss, got found=%v err=%v", found, err)
	}
}

func TestSaveEnrollmentRejectsDigestOwnedByAnotherIdentity(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	a := testsupport.NewIdentity(t, st, "alice", "pw", store.RoleOrdinary, store.StatusApproved)
	b := testsupport.NewIdentity(t, st, "bob", "pw", store.RoleOrdinary, store.StatusApproved)

	if err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: a.ID, Images: imagesFor("a"), Digests: digestsFor("a")}); err != nil {
		t.Fatalf("SaveEnrollment(a): %v", err)
	}

	stolen := digestsFor("b")
	stolen.VeinBin = digestsFor("a").Fingerprint
	err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: b.ID, Images: imagesFor("b"), Digests: stolen})
	if !errors.Is(err, store.ErrDigestTaken) {
		t.Fatalf("expected ErrDigestTaken, got %v", err)
	}

	enrollment, err := st.EnrollmentByIdentity(ctx, b.ID)
	if err != nil {
		t.Fatalf("EnrollmentByIdentity: %v", err)
	}
	if enrollment != nil {
		t.Fatalf("expected failed save to leave no enrollment, got %+v", enrollment)
	}
	if _, found, _ := st.LookupDigests(ctx, []string{stolen.Fingerprint}); found {
		t.Fatal("expected rolled back digests to be absent from the index")
	}
}

func TestSaveEnrollmentReplacesDigests(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	owner := testsupport.NewIdentity(t, st, "gina", "pw", store.RoleOrdinary, store.StatusApproved)
	old := digestsFor("old")
	if err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: owner.ID, Images: imagesFor("old"), Digests: old}); err != nil {
		t.Fatalf("SaveEnrollment(old): %v", err)
	}
	fresh := digestsFor("new")
	if err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: owner.ID, Images: imagesFor("new"), Digests: fresh}); err != nil {
		t.Fatalf("SaveEnrollment(new): %v", err)
	}

	if _, found, _ := st.LookupDigests(ctx, []string{old.Fingerprint}); found {
		t.Fatal("expected replaced digests to leave the index")
	}
	got, err := st.EnrollmentByIdentity(ctx, owner.ID)
	if err != nil || got == nil {
		t.Fatalf("EnrollmentByIdentity: %+v %v", got, err)
	}
	if got.Digests != fresh || got.Images != imagesFor("new") {
		t.Fatalf("unexpected stored enrollment: %+v", got)
	}
	if n, _ := st.CountEnrollments(ctx); n != 1 {
		t.Fatalf("expected one enrollment row, got %d", n)
	}
}

func TestDeleteEnrollmentRemovesRowAndDigests(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	owner := testsupport.NewIdentity(t, st, "hank", "pw", store.RoleOrdinary, store.StatusApproved)
	digests := digestsFor("hank")
	if err := st.SaveEnrollment(ctx, &store.Enrollment{IdentityID: owner.ID, Images: imagesFor("hank"), Digests: digests}); err != nil {
		t.Fatalf("SaveEnrollment: %v", err)
	}

	deleted, err := st.DeleteEnrollment(ctx, owner.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteEnrollment: deleted=%v err=%v", deleted, err)
	}
	if got, _ := st.EnrollmentByIdentity(ctx, owner.ID); got != nil {
		t.Fatalf("expected enrollment row removed, got %+v", got)
	}
	if _, found, _ := st.LookupDigests(ctx, []string{digests.VeinAug}); found {
		t.Fatal("expected digests removed from index")
	}

	deleted, err = st.DeleteEnrollment(ctx, owner.ID)
	if err != nil || deleted {
		t.Fatalf("expected second delete to report nothing removed, got deleted=%v err=%v", deleted, err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateIdentity(ctx, &store.Identity{Username: "ghost", PasswordHash: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got, _ := st.IdentityByUsername(ctx, "ghost"); got != nil {
		t.Fatalf("expected rollback, found %+v", got)
	}
}

func TestAuditAndOperationLogs(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	approver := testsupport.NewIdentity(t, st, "admin", "pw", store.RoleApprover, store.StatusApproved)
	target := testsupport.NewIdentity(t, st, "ivy", "pw", store.RoleOrdinary, store.StatusPending)

	if err := st.RecordAudit(ctx, &store.AuditRecord{IdentityID: target.ID, ApproverID: approver.ID, Action: "REJECT", Reason: "blurry"}); err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}
	history, err := st.AuditHistory(ctx, target.ID)
	if err != nil {
		t.Fatalf("AuditHistory: %v", err)
	}
	if len(history) != 1 || history[0].ApproverID != approver.ID || history[0].Reason != "blurry" {
		t.Fatalf("unexpected audit history: %+v", history)
	}

	if err := st.RecordOperation(ctx, &store.OperationLog{OperatorID: approver.ID, TargetID: target.ID, Operation: "UPDATE_USER", Before: `{"status":"PENDING"}`, After: `{"status":"APPROVED"}`}); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
	logs, err := st.OperationLogs(ctx, 10)
	if err != nil {
		t.Fatalf("OperationLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Operation != "UPDATE_USER" || logs[0].TargetID != target.ID {
		t.Fatalf("unexpected operation logs: %+v", logs)
	}
}

func TestListIdentitiesSearchField(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	frank := testsupport.NewIdentity(t, st, "frank", "pw", store.RoleOrdinary, store.StatusApproved)
	testsupport.NewIdentity(t, st, "grace", "pw", store.RoleOrdinary, store.StatusApproved)
	email := "frank@example.test"
	if _, err := st.UpdateIdentity(ctx, frank.ID, store.IdentityUpdate{Email: &email}); err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}

	byEmail, err := st.ListIdentities(ctx, store.IdentityFilter{Keyword: "example.test", Field: store.SearchEmail})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(byEmail) != 1 || byEmail[0].ID != frank.ID {
		t.Fatalf("unexpected email search: %+v", byEmail)
	}

	byUsername, err := st.ListIdentities(ctx, store.IdentityFilter{Keyword: "example", Field: store.SearchUsername})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(byUsername) != 0 {
		t.Fatalf("username search should not match email: %+v", byUsername)
	}

	byID, err := st.ListIdentities(ctx, store.IdentityFilter{Keyword: strconv.FormatInt(frank.ID, 10), Field: store.SearchID})
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(byID) != 1 || byID[0].Username != "frank" {
		t.Fatalf("unexpected id search: %+v", byID)
	}

	if _, err := st.ListIdentities(ctx, store.IdentityFilter{Keyword: "abc", Field: store.SearchID}); !errors.Is(err, store.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}
