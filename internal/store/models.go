package store

import (
	"database/sql"
	"time"

	"fingerid/internal/biometric"
	"fingerid/internal/contentid"
)

// Role is the authorization level of an identity.
type Role string

const (
	RoleOrdinary  Role = "ORDINARY"
	RoleApprover  Role = "APPROVER"
	RoleSuperuser Role = "SUPERUSER"
)

// Status is the approval state of an identity.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusDisabled Status = "DISABLED"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOrdinary, RoleApprover, RoleSuperuser:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDisabled:
		return true
	}
	return false
}

// Identity is an account that may log in.
type Identity struct {
	ID           int64
	Username     string
	PasswordHash string
	RealName     string
	Email        string
	Phone        string
	Role         Role
	Status       Status
	Reason       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Enrollment is the biometric template of one identity: four stored image
// names relative to the upload directory and their digests.
type Enrollment struct {
	IdentityID int64
	Images     biometric.ImageSet
	Digests    contentid.Digests
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditRecord captures one approver decision.
type AuditRecord struct {
	ID         int64
	IdentityID int64
	ApproverID int64
	Action     string
	Reason     string
	CreatedAt  time.Time
}

// OperationLog captures one superuser change with before/after snapshots.
type OperationLog struct {
	ID         int64
	OperatorID int64
	TargetID   int64
	Operation  string
	Before     string
	After      string
	CreatedAt  time.Time
}

// Search fields accepted by IdentityFilter.Field.
const (
	SearchAll      = "all"
	SearchID       = "id"
	SearchUsername = "username"
	SearchRealName = "real_name"
	SearchEmail    = "email"
	SearchPhone    = "phone"
)

// IdentityFilter narrows ListIdentities. Zero values match everything.
// Field restricts the keyword to one column; empty means SearchAll.
type IdentityFilter struct {
	Role    Role
	Status  Status
	Keyword string
	Field   string
	Limit   int
	Offset  int
}

// IdentityUpdate lists the fields to change; nil fields are left untouched.
type IdentityUpdate struct {
	PasswordHash *string
	RealName     *string
	Email        *string
	Phone        *string
	Role         *Role
	Status       *Status
	Reason       *string
}

type identityRow struct {
	ID           int64          `db:"id"`
	Username     string         `db:"username"`
	PasswordHash string         `db:"password_hash"`
	RealName     string         `db:"real_name"`
	Email        string         `db:"email"`
	Phone        string         `db:"phone"`
	Role         string         `db:"role"`
	Status       string         `db:"status"`
	Reason       sql.NullString `db:"reason"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (r identityRow) identity() *Identity {
	return &Identity{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		RealName:     r.RealName,
		Email:        r.Email,
		Phone:        r.Phone,
		Role:         Role(r.Role),
		Status:       Status(r.Status),
		Reason:       r.Reason.String,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
}

type enrollmentRow struct {
	IdentityID        int64  `db:"identity_id"`
	FingerprintPath   string `db:"fingerprint_path"`
	VeinAugPath       string `db:"vein_aug_path"`
	VeinBinPath       string `db:"vein_bin_path"`
	KnucklePath       string `db:"knuckle_path"`
	FingerprintDigest string `db:"fingerprint_digest"`
	VeinAugDigest     string `db:"vein_aug_digest"`
	VeinBinDigest     string `db:"vein_bin_digest"`
	KnuckleDigest     string `db:"knuckle_digest"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

func (r enrollmentRow) enrollment() *Enrollment {
	return &Enrollment{
		IdentityID: r.IdentityID,
		Images: biometric.ImageSet{
			Fingerprint: r.FingerprintPath,
			VeinAug:     r.VeinAugPath,
			VeinBin:     r.VeinBinPath,
			Knuckle:     r.KnucklePath,
		},
		Digests: contentid.Digests{
			Fingerprint: r.FingerprintDigest,
			VeinAug:     r.VeinAugDigest,
			VeinBin:     r.VeinBinDigest,
			Knuckle:     r.KnuckleDigest,
		},
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

type auditRow struct {
	ID         int64          `db:"id"`
	IdentityID int64          `db:"identity_id"`
	ApproverID sql.NullInt64  `db:"approver_id"`
	Action     string         `db:"action"`
	Reason     sql.NullString `db:"reason"`
	CreatedAt  string         `db:"created_at"`
}

type operationRow struct {
	ID         int64          `db:"id"`
	OperatorID sql.NullInt64  `db:"operator_id"`
	TargetID   sql.NullInt64  `db:"target_id"`
	Operation  string         `db:"operation"`
	Before     sql.NullString `db:"before_json"`
	After      sql.NullString `db:"after_json"`
	CreatedAt  string         `db:"created_at"`
}
