package models

import "time"

// Audit actions for LicenseAuditLog.Action.
const (
	AuditActionCreate     = "create"
	AuditActionAssign     = "assign"
	AuditActionRevoke     = "revoke"
	AuditActionModify     = "modify"
	AuditActionExpire     = "expire"
	AuditActionExtend     = "extend"
	AuditActionSuspend    = "suspend"
	AuditActionReactivate = "reactivate"
)

// UserLicenseAssignment binds one profile to one seat of a License.
// Revocation flips IsActive; rows are never deleted.
type UserLicenseAssignment struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	LicenseID     uint         `gorm:"not null;uniqueIndex:ux_assignments_license_profile,priority:1;index:idx_assignments_license_active,priority:1" json:"license_id"`
	License       *License     `gorm:"foreignKey:LicenseID" json:"license,omitempty"`
	UserProfileID uint         `gorm:"not null;uniqueIndex:ux_assignments_license_profile,priority:2;index:idx_assignments_profile_active,priority:1" json:"user_profile_id"`
	UserProfile   *UserProfile `gorm:"foreignKey:UserProfileID" json:"user_profile,omitempty"`

	AssignedAt   time.Time  `gorm:"autoCreateTime" json:"assigned_at"`
	AssignedByID *uint      `gorm:"default:null" json:"assigned_by_id,omitempty"`
	RevokedAt    *time.Time `gorm:"default:null" json:"revoked_at,omitempty"`
	RevokedByID  *uint      `gorm:"default:null" json:"revoked_by_id,omitempty"`

	IsActive bool   `gorm:"not null;index:idx_assignments_license_active,priority:2;index:idx_assignments_profile_active,priority:2" json:"is_active"`
	Notes    string `gorm:"type:text" json:"notes"`

	LastAccess    *time.Time `gorm:"default:null" json:"last_access,omitempty"`
	TotalSessions int        `gorm:"not null;default:0" json:"total_sessions"`
}

// Revoke deactivates the assignment and stamps who and when.
func (a *UserLicenseAssignment) Revoke(revokedByID *uint, now time.Time) {
	a.IsActive = false
	a.RevokedAt = &now
	a.RevokedByID = revokedByID
}

// RecordAccess bumps the session counter for an authenticated visit.
func (a *UserLicenseAssignment) RecordAccess(now time.Time) {
	a.LastAccess = &now
	a.TotalSessions++
}

// LicenseAuditLog is append-only. Normal flows never update or delete it.
type LicenseAuditLog struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	LicenseID        *uint          `gorm:"index:idx_audit_license_ts,priority:1" json:"license_id,omitempty"`
	CustomLicenseID  *uint          `gorm:"index:idx_audit_custom_ts,priority:1" json:"custom_license_id,omitempty"`
	UserAssignmentID *uint          `gorm:"index" json:"user_assignment_id,omitempty"`
	Action           string         `gorm:"type:varchar(20);not null;index" json:"action"`
	PerformedByID    *uint          `gorm:"index:idx_audit_actor_ts,priority:1" json:"performed_by_id,omitempty"`
	AffectedUserID   *uint          `gorm:"default:null" json:"affected_user_id,omitempty"`
	Description      string         `gorm:"type:text" json:"description"`
	OldValues        map[string]any `gorm:"serializer:json;type:json" json:"old_values"`
	NewValues        map[string]any `gorm:"serializer:json;type:json" json:"new_values"`
	Timestamp        time.Time      `gorm:"autoCreateTime;index:idx_audit_license_ts,priority:2;index:idx_audit_custom_ts,priority:2;index:idx_audit_actor_ts,priority:2" json:"timestamp"`
	IPAddress        string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
}

// LicenseUsageLog is a point-in-time usage snapshot for analytics.
type LicenseUsageLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LicenseID      uint      `gorm:"not null;index:idx_usage_logs_license_recorded,priority:1" json:"license_id"`
	UsersCount     int       `gorm:"not null" json:"users_count"`
	ProjectsCount  int       `gorm:"not null" json:"projects_count"`
	StorageGB      float64   `gorm:"type:decimal(10,2);not null" json:"storage_gb"`
	APICalls       int       `gorm:"not null;default:0" json:"api_calls"`
	ActiveSessions int       `gorm:"not null;default:0" json:"active_sessions"`
	RecordedAt     time.Time `gorm:"autoCreateTime;index:idx_usage_logs_license_recorded,priority:2" json:"recorded_at"`
}
