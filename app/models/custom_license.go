package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// CustomLicense is a support-issued entitlement outside the tier catalog.
// Seats are still tracked through a backing License (LicenseInstance).
type CustomLicense struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	OrganizationID   uint           `gorm:"not null;index:idx_custom_licenses_org_service,priority:1" json:"organization_id"`
	Organization     *Organization  `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	ServiceID        uint           `gorm:"not null;index:idx_custom_licenses_org_service,priority:2" json:"service_id"`
	Service          *Service       `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	MaxUsers         int            `gorm:"not null" json:"max_users" validate:"min=0"`
	Description      string         `gorm:"type:text" json:"description"`
	StartDate        time.Time      `gorm:"not null" json:"start_date"`
	EndDate          *time.Time     `gorm:"index;default:null" json:"end_date,omitempty"`
	IsActive         bool           `gorm:"not null;default:true;index:idx_custom_licenses_org_service,priority:3" json:"is_active"`
	IncludedFeatures []string       `gorm:"serializer:json;type:json" json:"included_features"`
	Restrictions     map[string]any `gorm:"serializer:json;type:json" json:"restrictions"`
	CreatedByID      *uint          `gorm:"default:null" json:"created_by_id,omitempty"`
	Notes            string         `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	LicenseInstance *License `gorm:"foreignKey:CustomLicenseID" json:"license_instance,omitempty"`
}

func (c *CustomLicense) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

// IsValid reports whether the custom license is active and now lies
// inside [StartDate, EndDate].
func (c *CustomLicense) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// RemainingSeats returns MaxUsers minus assigned, floored at zero.
func (c *CustomLicense) RemainingSeats(assigned int64) int {
	remaining := int64(c.MaxUsers) - assigned
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Snapshot returns the fields tracked in audit before/after values.
func (c *CustomLicense) Snapshot() map[string]any {
	snap := map[string]any{
		"name":       c.Name,
		"max_users":  c.MaxUsers,
		"is_active":  c.IsActive,
		"start_date": c.StartDate.Format(time.RFC3339),
		"end_date":   nil,
	}
	if c.EndDate != nil {
		snap["end_date"] = c.EndDate.Format(time.RFC3339)
	}
	return snap
}
