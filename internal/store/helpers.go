package store

import (
	"time"
)

const identityColumns = "id, username, password_hash, real_name, email, phone, role, status, reason, created_at, updated_at"

const enrollmentColumns = "identity_id, fingerprint_path, vein_aug_path, vein_bin_path, knuckle_path, fingerprint_digest, vein_aug_digest, vein_bin_digest, knuckle_digest, created_at, updated_at"

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", value)
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
