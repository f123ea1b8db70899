package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ResourceTypeTeam      = "team"
	ResourceTypeEquipment = "equipment"
	ResourceTypeRoom      = "room"
	ResourceTypePerson    = "person"
	ResourceTypeCustom    = "custom"
)

// Default working window applied when a resource has availability rules
// but leaves a key out.
const (
	DefaultStartHour             = 8
	DefaultEndHour               = 18
	DefaultBookingDuration       = 2 * time.Hour
	DefaultResourceServiceType   = "scheduling"
	DefaultMaxConcurrentBookings = 1
)

// DefaultWorkingDays is Monday to Friday, Monday=0.
var DefaultWorkingDays = []int{0, 1, 2, 3, 4}

// AvailabilityRules is the resource's default working window. The zero
// value means "no rules", i.e. always available on this axis.
type AvailabilityRules struct {
	WorkingDays []int `json:"working_days"`
	StartHour   *int  `json:"start_hour,omitempty"`
	EndHour     *int  `json:"end_hour,omitempty"`
}

// IsConfigured reports whether any key was set.
func (r AvailabilityRules) IsConfigured() bool {
	return r.WorkingDays != nil || r.StartHour != nil || r.EndHour != nil
}

// Window resolves the configured window, filling missing keys with the
// 08:00-18:00 Monday-Friday defaults.
func (r AvailabilityRules) Window() (startHour, endHour int, workingDays []int) {
	startHour, endHour, workingDays = DefaultStartHour, DefaultEndHour, DefaultWorkingDays
	if r.StartHour != nil {
		startHour = *r.StartHour
	}
	if r.EndHour != nil {
		endHour = *r.EndHour
	}
	if r.WorkingDays != nil {
		workingDays = r.WorkingDays
	}
	return startHour, endHour, workingDays
}

// DefaultAvailabilityRules returns an explicit 08-18 Mon-Fri window.
func DefaultAvailabilityRules() AvailabilityRules {
	return AvailabilityRules{
		WorkingDays: append([]int(nil), DefaultWorkingDays...),
		StartHour:   IntPtr(DefaultStartHour),
		EndHour:     IntPtr(DefaultEndHour),
	}
}

// SchedulableResource is anything that can be booked: a team, a room, a
// piece of equipment, a person.
type SchedulableResource struct {
	ID                     uint              `gorm:"primaryKey" json:"id"`
	OrganizationID         uint              `gorm:"not null;uniqueIndex:ux_resources_org_name,priority:1;index:idx_resources_org_type_active,priority:1" json:"organization_id"`
	Organization           *Organization     `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Name                   string            `gorm:"type:varchar(200);not null;uniqueIndex:ux_resources_org_name,priority:2" json:"name" validate:"required,max=200"`
	ResourceType           string            `gorm:"type:varchar(20);not null;index:idx_resources_org_type_active,priority:2" json:"resource_type" validate:"required,oneof=team equipment room person custom"`
	Description            string            `gorm:"type:text" json:"description"`
	MaxConcurrentBookings  int               `gorm:"not null;default:1" json:"max_concurrent_bookings" validate:"min=0"`
	DefaultBookingDuration time.Duration     `gorm:"not null" json:"default_booking_duration"`
	AvailabilityRules      AvailabilityRules `gorm:"serializer:json;type:json" json:"availability_rules"`
	LinkedTeamID           *uint             `gorm:"uniqueIndex" json:"linked_team_id,omitempty"`
	LinkedTeam             *Team             `gorm:"foreignKey:LinkedTeamID" json:"linked_team,omitempty"`
	ExternalResourceID     string            `gorm:"type:varchar(100)" json:"external_resource_id"`
	ServiceType            string            `gorm:"type:varchar(50);not null;default:'scheduling'" json:"service_type"`
	IsActive               bool              `gorm:"not null;default:true;index:idx_resources_org_type_active,priority:3" json:"is_active"`
	CreatedAt              time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	ScheduleRules []ResourceScheduleRule `gorm:"foreignKey:ResourceID" json:"schedule_rules,omitempty"`
}

func (r *SchedulableResource) Validate() error {
	v := validator.New()
	return v.Struct(r)
}
