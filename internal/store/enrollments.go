package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnrollmentByIdentity fetches the enrollment of an identity. A missing row yields nil, nil.
func (s *Store) EnrollmentByIdentity(ctx context.Context, identityID int64) (*Enrollment, error) {
	var row enrollmentRow
	err := s.q.GetContext(ctx, &row, s.rebind("SELECT "+enrollmentColumns+" FROM enrollments WHERE identity_id = ?"), identityID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment %d: %w", identityID, err)
	}
	return row.enrollment(), nil
}

// LookupDigests returns the identity owning any of digests. Every digest of an
// enrollment is indexed regardless of modality, so a fingerprint digest can
// match a stored knuckle digest.
func (s *Store) LookupDigests(ctx context.Context, digests []string) (int64, bool, error) {
	if len(digests) == 0 {
		return 0, false, nil
	}
	query, args, err := sqlx.In("SELECT identity_id FROM enrollment_digests WHERE digest IN (?) ORDER BY identity_id LIMIT 1", digests)
	if err != nil {
		return 0, false, fmt.Errorf("build digest lookup: %w", err)
	}
	var owner int64
	err = s.q.GetContext(ctx, &owner, s.rebind(query), args...)
	if notFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup digests: %w", err)
	}
	return owner, true, nil
}

// SaveEnrollment creates or replaces the enrollment of e.IdentityID together
// with its digest index rows. A digest already indexed for another identity
// fails the whole save with ErrDigestTaken.
func (s *Store) SaveEnrollment(ctx context.Context, e *Enrollment) error {
	if e == nil || e.IdentityID == 0 {
		return fmt.Errorf("save enrollment: identity required")
	}
	return s.InTx(ctx, func(tx *Store) error {
		now := timestamp()
		_, err := tx.q.ExecContext(ctx, tx.rebind(
			`INSERT INTO enrollments (`+enrollmentColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (identity_id) DO UPDATE SET
                fingerprint_path = excluded.fingerprint_path,
                vein_aug_path = excluded.vein_aug_path,
                vein_bin_path = excluded.vein_bin_path,
                knuckle_path = excluded.knuckle_path,
                fingerprint_digest = excluded.fingerprint_digest,
                vein_aug_digest = excluded.vein_aug_digest,
                vein_bin_digest = excluded.vein_bin_digest,
                knuckle_digest = excluded.knuckle_digest,
                updated_at = excluded.updated_at`),
			e.IdentityID,
			e.Images.Fingerprint,
			e.Images.VeinAug,
			e.Images.VeinBin,
			e.Images.Knuckle,
			e.Digests.Fingerprint,
			e.Digests.VeinAug,
			e.Digests.VeinBin,
			e.Digests.Knuckle,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert enrollment %d: %w", e.IdentityID, err)
		}

		if _, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM enrollment_digests WHERE identity_id = ?"), e.IdentityID); err != nil {
			return fmt.Errorf("clear digests %d: %w", e.IdentityID, err)
		}
		for _, digest := range e.Digests.Values() {
			_, err := tx.q.ExecContext(ctx, tx.rebind("INSERT INTO enrollment_digests (digest, identity_id) VALUES (?, ?)"), digest, e.IdentityID)
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDigestTaken, digest)
			}
			if err != nil {
				return fmt.Errorf("index digest: %w", err)
			}
		}

		stored, err := tx.EnrollmentByIdentity(ctx, e.IdentityID)
		if err != nil {
			return err
		}
		if stored != nil {
			e.CreatedAt = stored.CreatedAt
			e.UpdatedAt = stored.UpdatedAt
		}
		return nil
	})
}

// DeleteEnrollment removes the enrollment row and its digest index rows.
func (s *Store) DeleteEnrollment(ctx context.Context, identityID int64) (bool, error) {
	var deleted bool
	err := s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM enrollment_digests WHERE identity_id = ?"), identityID); err != nil {
			return fmt.Errorf("delete digests %d: %w", identityID, err)
		}
		res, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM enrollments WHERE identity_id = ?"), identityID)
		if err != nil {
			return fmt.Errorf("delete enrollment %d: %w", identityID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete enrollment %d: %w", identityID, err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// CountEnrollments returns the number of stored enrollments.
func (s *Store) CountEnrollments(ctx context.Context) (int, error) {
	var n int
	if err := s.q.GetContext(ctx, &n, "SELECT COUNT(1) FROM enrollments"); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return n, nil
}
