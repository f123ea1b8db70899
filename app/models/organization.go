package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	OrganizationTypeBusiness = "business"
	OrganizationTypePersonal = "personal"
)

// Organization is the tenant boundary. Licenses, resources and bookings
// all hang off exactly one organization.
type Organization struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(200);uniqueIndex;not null" json:"name" validate:"required,min=1,max=200"`
	OrganizationType string    `gorm:"type:varchar(20);not null;default:'business'" json:"organization_type" validate:"oneof=business personal"`
	Description      string    `gorm:"type:text" json:"description"`
	IsActive         bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Organization) Validate() error {
	v := validator.New()
	return v.Struct(o)
}

// UserProfile binds a User to an Organization. License seats and bookings
// reference the profile, not the bare user.
type UserProfile struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	UserID              uint          `gorm:"not null;index:idx_user_profiles_user_active,priority:1" json:"user_id"`
	User                *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OrganizationID      uint          `gorm:"not null;index" json:"organization_id"`
	Organization        *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Title               string        `gorm:"type:varchar(150)" json:"title"`
	IsOrganizationAdmin bool          `gorm:"default:false" json:"is_organization_admin"`
	IsActive            bool          `gorm:"not null;default:true;index:idx_user_profiles_user_active,priority:2" json:"is_active"`
	CreatedAt           time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// DisplayName returns the linked user's display name, or a placeholder
// when the user relation was not loaded.
func (p *UserProfile) DisplayName() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.DisplayName()
}

// Team is an organization's working group. The scheduling side treats a
// team as a bookable resource via SchedulableResource.LinkedTeamID.
type Team struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	OrganizationID  uint          `gorm:"not null;index" json:"organization_id"`
	Organization    *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Name            string        `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=1,max=200"`
	Description     string        `gorm:"type:text" json:"description"`
	DefaultCapacity int           `gorm:"not null;default:1" json:"default_capacity" validate:"min=0"`
	IsActive        bool          `gorm:"not null;default:true" json:"is_active"`
	Members         []UserProfile `gorm:"many2many:team_members" json:"members,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Team) Validate() error {
	v := validator.New()
	return v.Struct(t)
}
