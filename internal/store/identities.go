package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CreateIdentity inserts identity and fills in its ID and timestamps.
func (s *Store) CreateIdentity(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return fmt.Errorf("create identity: nil identity")
	}
	if identity.Role == "" {
		identity.Role = RoleOrdinary
	}
	if identity.Status == "" {
		identity.Status = StatusPending
	}
	now := timestamp()

	var id int64
	err := s.q.QueryRowxContext(ctx, s.rebind(
		`INSERT INTO identities (
            username, password_hash, real_name, email, phone, role, status, reason, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		identity.Username,
		identity.PasswordHash,
		identity.RealName,
		identity.Email,
		identity.Phone,
		string(identity.Role),
		string(identity.Status),
		nullableString(identity.Reason),
		now,
		now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, identity.Username)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	identity.ID = id
	identity.CreatedAt = parseTime(now)
	identity.UpdatedAt = identity.CreatedAt
	return nil
}

// IdentityByID fetches an identity. A missing row yields nil, nil.
func (s *Store) IdentityByID(ctx context.Context, id int64) (*Identity, error) {
	var row identityRow
	err := s.q.GetContext(ctx, &row, s.rebind("SELECT "+identityColumns+" FROM identities WHERE id = ?"), id)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %d: %w", id, err)
	}
	return row.identity(), nil
}

// IdentityByUsername fetches an identity by its unique username.
func (s *Store) IdentityByUsername(ctx context.Context, username string) (*Identity, error) {
	var row identityRow
	err := s.q.GetContext(ctx, &row, s.rebind("SELECT "+identityColumns+" FROM identities WHERE username = ?"), username)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %q: %w", username, err)
	}
	return row.identity(), nil
}

// ListIdentities returns identities matching filter, newest first.
func (s *Store) ListIdentities(ctx context.Context, filter IdentityFilter) ([]*Identity, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		cond, condArgs, err := keywordCondition(filter.Field, kw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	query := "SELECT " + identityColumns + " FROM identities"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []identityRow
	if err := s.q.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	out := make([]*Identity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.identity())
	}
	return out, nil
}

// UpdateIdentity applies the non-nil fields of update and returns the stored result.
func (s *Store) UpdateIdentity(ctx context.Context, id int64, update IdentityUpdate) (*Identity, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.RealName != nil {
		add("real_name", *update.RealName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Role != nil {
		add("role", string(*update.Role))
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Reason != nil {
		add("reason", nullableString(*update.Reason))
	}
	if len(sets) == 0 {
		return s.IdentityByID(ctx, id)
	}
	add("updated_at", timestamp())
	args = append(args, id)

	res, err := s.q.ExecContext(ctx, s.rebind("UPDATE identities SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return nil, fmt.Errorf("update identity %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return s.IdentityByID(ctx, id)
}

// DeleteIdentity removes the identity row. Enrollment and audit rows cascade.
func (s *Store) DeleteIdentity(ctx context.Context, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, s.rebind("DELETE FROM identities WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("delete identity %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete identity %d: %w", id, err)
	}
	return n > 0, nil
}

// CountByStatus returns the number of identities in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.q.SelectContext(ctx, &rows, "SELECT status, COUNT(1) AS n FROM identities GROUP BY status"); err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	out := make(map[Status]int, len(rows))
	for _, row := range rows {
		out[Status(row.Status)] = row.Count
	}
	return out, nil
}

func keywordCondition(field, keyword string) (string, []any, error) {
	pattern := "%" + strings.ToLower(keyword) + "%"
	switch field {
	case "", SearchAll:
		return "(LOWER(username) LIKE ? OR LOWER(real_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)",
			[]any{pattern, pattern, pattern, pattern}, nil
	case SearchID:
		id, err := strconv.ParseInt(keyword, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: id search expects a number", ErrInvalidFilter)
		}
		return "id = ?", []any{id}, nil
	case SearchUsername, SearchRealName, SearchEmail:
		return "LOWER(" + field + ") LIKE ?", []any{pattern}, nil
	case SearchPhone:
		return "phone LIKE ?", []any{pattern}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown search field %q", ErrInvalidFilter, field)
	}
}
