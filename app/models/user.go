package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
)

// User is the login identity. Membership in an organization is carried by
// UserProfile, so one User can appear in several organizations.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"username" validate:"required,min=3,max=150"`
	Email     string    `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	FirstName string    `gorm:"type:varchar(150)" json:"first_name" validate:"max=150"`
	LastName  string    `gorm:"type:varchar(150)" json:"last_name" validate:"max=150"`
	IsStaff   bool      `gorm:"default:false" json:"is_staff"`
	Status    string    `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// FullName returns "First Last", or an empty string when neither is set.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Username
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}
