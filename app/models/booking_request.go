package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BookingStatusPending     = "pending"
	BookingStatusConfirmed   = "confirmed"
	BookingStatusInProgress  = "in_progress"
	BookingStatusCompleted   = "completed"
	BookingStatusCancelled   = "cancelled"
	BookingStatusRescheduled = "rescheduled"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Source service identifiers used in the provenance triple.
const (
	SourceServiceScheduling = "scheduling"
	SourceServiceCFlows     = "cflows"
)

// Source object types the workflow service writes.
const (
	SourceObjectBooking     = "booking"
	SourceObjectWorkItem    = "work_item"
	SourceObjectTeamBooking = "TeamBooking"
)

// TeamBookingSourceTypes lists every object type spelling that refers to
// a workflow team booking.
var TeamBookingSourceTypes = []string{SourceObjectTeamBooking, "team_booking"}

// CustomDataWorkItemID marks a booking as workflow-triggered.
const CustomDataWorkItemID = "work_item_id"

// BlockingBookingStatuses occupy capacity on a resource. A rescheduled
// booking holds its new slot like a confirmed one, which is wider than the
// legacy conflict query that only counted confirmed and in_progress.
var BlockingBookingStatuses = []string{BookingStatusConfirmed, BookingStatusInProgress, BookingStatusRescheduled}

// ScheduledBookingStatuses are the statuses shown in schedules and
// utilization figures.
var ScheduledBookingStatuses = []string{BookingStatusConfirmed, BookingStatusInProgress, BookingStatusRescheduled, BookingStatusCompleted}

// BookingRequest is a booking that any service can raise. The provenance
// triple (SourceService, SourceObjectType, SourceObjectID) ties it to the
// record that owns it elsewhere.
type BookingRequest struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UUID           string        `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	OrganizationID uint          `gorm:"not null;index:idx_bookings_org_status_start,priority:1" json:"organization_id"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`

	Title       string `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Description string `gorm:"type:text" json:"description"`

	RequestedStart time.Time  `gorm:"not null;index:idx_bookings_org_status_start,priority:3;index:idx_bookings_resource_start,priority:2" json:"requested_start"`
	RequestedEnd   time.Time  `gorm:"not null" json:"requested_end"`
	ActualStart    *time.Time `gorm:"default:null" json:"actual_start,omitempty"`
	ActualEnd      *time.Time `gorm:"default:null" json:"actual_end,omitempty"`

	ResourceID       uint                 `gorm:"not null;index:idx_bookings_resource_start,priority:1" json:"resource_id"`
	Resource         *SchedulableResource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
	RequiredCapacity int                  `gorm:"not null;default:1" json:"required_capacity"`

	Status   string `gorm:"type:varchar(20);not null;default:'pending';index:idx_bookings_org_status_start,priority:2" json:"status"`
	Priority string `gorm:"type:varchar(20);not null;default:'normal'" json:"priority" validate:"omitempty,oneof=low normal high urgent"`

	SourceService    string `gorm:"type:varchar(50);not null;index:idx_bookings_source,priority:1" json:"source_service"`
	SourceObjectType string `gorm:"type:varchar(50);not null" json:"source_object_type"`
	SourceObjectID   string `gorm:"type:varchar(100);not null;index:idx_bookings_source,priority:2" json:"source_object_id"`

	RequestedByID *uint         `gorm:"default:null" json:"requested_by_id,omitempty"`
	RequestedBy   *UserProfile  `gorm:"foreignKey:RequestedByID" json:"requested_by,omitempty"`
	AssignedTo    []UserProfile `gorm:"many2many:booking_request_assignees" json:"assigned_to,omitempty"`
	CompletedByID *uint         `gorm:"default:null" json:"completed_by_id,omitempty"`
	CompletedBy   *UserProfile  `gorm:"foreignKey:CompletedByID" json:"completed_by,omitempty"`

	CustomData map[string]any `gorm:"serializer:json;type:json" json:"custom_data"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `gorm:"default:null" json:"completed_at,omitempty"`
}

func (b *BookingRequest) Validate() error {
	v := validator.New()
	return v.Struct(b)
}

// BeforeCreate assigns the external UUID.
func (b *BookingRequest) BeforeCreate(tx *gorm.DB) error {
	b.EnsureUUID()
	return nil
}

// EnsureUUID fills the external identifier if it is still empty.
func (b *BookingRequest) EnsureUUID() {
	if b.UUID == "" {
		b.UUID = uuid.New().String()
	}
	if b.CustomData == nil {
		b.CustomData = map[string]any{}
	}
}

// Duration is the requested length of the booking.
func (b *BookingRequest) Duration() time.Duration {
	return b.RequestedEnd.Sub(b.RequestedStart)
}

// IsPast reports whether the requested window ended before now.
func (b *BookingRequest) IsPast(now time.Time) bool {
	return b.RequestedEnd.Before(now)
}

// IsUpcoming reports whether the booking starts within the next 24 hours.
func (b *BookingRequest) IsUpcoming(now time.Time) bool {
	return b.RequestedStart.After(now) && !b.RequestedStart.After(now.Add(24*time.Hour))
}

// IsTerminal reports whether no further transition is allowed.
func (b *BookingRequest) IsTerminal() bool {
	return b.Status == BookingStatusCompleted || b.Status == BookingStatusCancelled
}

// IsWorkItemBooking reports whether the booking was raised by the workflow
// service or carries a work item marker.
func (b *BookingRequest) IsWorkItemBooking() bool {
	if b.SourceService == SourceServiceCFlows {
		return true
	}
	v, ok := b.CustomData[CustomDataWorkItemID]
	if !ok || v == nil {
		return false
	}
	switch id := v.(type) {
	case string:
		return id != ""
	case float64:
		return id != 0
	case int:
		return id != 0
	case uint:
		return id != 0
	case bool:
		return id
	default:
		return true
	}
}

// SetCustomData writes key into CustomData, allocating the map if needed.
func (b *BookingRequest) SetCustomData(key string, value any) {
	if b.CustomData == nil {
		b.CustomData = map[string]any{}
	}
	b.CustomData[key] = value
}

// ResourceScheduleRule types.
const (
	RuleTypeAvailability     = "availability"
	RuleTypeBlackout         = "blackout"
	RuleTypeCapacityOverride = "capacity_override"
	RuleTypeAutoApproval     = "auto_approval"
	RuleTypeRequireApproval  = "require_approval"
)

// ResourceScheduleRule is a declarative predicate over date, weekday and
// time of day attached to a resource. StartTime/EndTime are "HH:MM[:SS]".
type ResourceScheduleRule struct {
	ID         uint                 `gorm:"primaryKey" json:"id"`
	ResourceID uint                 `gorm:"not null;index:idx_rules_resource_type,priority:1" json:"resource_id"`
	Resource   *SchedulableResource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
	RuleType   string               `gorm:"type:varchar(20);not null;index:idx_rules_resource_type,priority:2" json:"rule_type" validate:"required,oneof=availability blackout capacity_override auto_approval require_approval"`

	StartDate  *time.Time `gorm:"type:date;default:null" json:"start_date,omitempty"`
	EndDate    *time.Time `gorm:"type:date;default:null" json:"end_date,omitempty"`
	StartTime  *string    `gorm:"type:time;default:null" json:"start_time,omitempty"`
	EndTime    *string    `gorm:"type:time;default:null" json:"end_time,omitempty"`
	DaysOfWeek []int      `gorm:"serializer:json;type:json" json:"days_of_week"`

	RuleConfig map[string]any `gorm:"serializer:json;type:json" json:"rule_config"`

	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *ResourceScheduleRule) Validate() error {
	v := validator.New()
	return v.Struct(r)
}
