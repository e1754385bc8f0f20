package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// User describes an identity without credential material.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	RealName  string `json:"realName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Features points at the four enrolled images.
type Features struct {
	FingerprintPath string `json:"fingerprintPath"`
	VeinAugPath     string `json:"veinAugPath"`
	VeinBinPath     string `json:"veinBinPath"`
	KnucklePath     string `json:"knucklePath"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// Recognition reports the similarity model verdict of a biometric login.
type Recognition struct {
	IsMatch              bool    `json:"isMatch"`
	Confidence           float64 `json:"confidence"`
	MatchProbability     float64 `json:"matchProbability"`
	DifferentProbability float64 `json:"differentProbability"`
	ModelLoaded          bool    `json:"modelLoaded"`
	Threshold            float64 `json:"threshold"`
	Reason               string  `json:"reason,omitempty"`
}

// LoginResponse is returned by both login endpoints on success.
type LoginResponse struct {
	Token       string       `json:"token"`
	ExpiresAt   string       `json:"expiresAt"`
	User        User         `json:"user"`
	Recognition *Recognition `json:"recognition,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error        string       `json:"error"`
	Status       string       `json:"status,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	MissingFiles []string     `json:"missingFiles,omitempty"`
	Details      *Recognition `json:"details,omitempty"`
}

// MessageResponse acknowledges an operation.
type MessageResponse struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// AuditRecord describes one approver decision.
type AuditRecord struct {
	ID         int64  `json:"id"`
	ApproverID int64  `json:"approverId,omitempty"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// UserDetail is the approver view of one identity.
type UserDetail struct {
	User     User          `json:"user"`
	Features *Features     `json:"features"`
	Audit    []AuditRecord `json:"audit"`
}

// UserListResponse wraps a collection of users.
type UserListResponse struct {
	Users []User `json:"users"`
}

// ReviewRequest is the approver decision payload.
type ReviewRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// CreateUserRequest is the superuser account creation payload.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
	RealName string `json:"realName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// UpdateUserRequest lists the fields a superuser changes; omitted fields are kept.
type UpdateUserRequest struct {
	Password *string `json:"password"`
	RealName *string `json:"realName"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Reason   *string `json:"reason"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Schema   string `json:"schema,omitempty"`
}

// DependencyStatus reports availability of an external command.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus is the superuser view of the running daemon.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	Database       string             `json:"database"`
	SchemaVersion  string             `json:"schemaVersion"`
	LockFilePath   string             `json:"lockFilePath"`
	Identities     map[string]int     `json:"identities"`
	Enrollments    int                `json:"enrollments"`
	BinarizeActive bool               `json:"binarizeActive"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}
