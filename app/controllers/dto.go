package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
)

type assignSeatRequest struct {
	ProfileID uint `json:"profile_id" validate:"required"`
}

func (r *assignSeatRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (r *reasonRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type createBookingRequest struct {
	ResourceID       uint           `json:"resource_id" validate:"required"`
	Title            string         `json:"title" validate:"required,max=200"`
	Description      string         `json:"description"`
	Start            time.Time      `json:"start"`
	End              time.Time      `json:"end"`
	Priority         string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	RequiredCapacity int            `json:"required_capacity" validate:"min=0"`
	CustomData       map[string]any `json:"custom_data"`
}

func (r *createBookingRequest) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("start and end are required")
	}
	v := validator.New()
	return v.Struct(r)
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r *rescheduleRequest) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("start and end are required")
	}
	return nil
}

type createResourceRequest struct {
	Name                   string                    `json:"name" validate:"required,max=200"`
	ResourceType           string                    `json:"resource_type" validate:"required,oneof=team equipment room person custom"`
	Description            string                    `json:"description"`
	Capacity               int                       `json:"capacity" validate:"min=0"`
	BookingDurationMinutes int                       `json:"booking_duration_minutes" validate:"min=0"`
	AvailabilityRules      *models.AvailabilityRules `json:"availability_rules"`
}

func (r *createResourceRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type updateResourceRequest struct {
	Name                  *string                   `json:"name" validate:"omitnil,min=1,max=200"`
	Description           *string                   `json:"description"`
	MaxConcurrentBookings *int                      `json:"max_concurrent_bookings" validate:"omitnil,min=1"`
	AvailabilityRules     *models.AvailabilityRules `json:"availability_rules"`
	IsActive              *bool                     `json:"is_active"`
}

func (r *updateResourceRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type extendLicenseRequest struct {
	Days int `json:"days" validate:"required,min=1,max=3650"`
}

func (r *extendLicenseRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type usageSnapshotRequest struct {
	ActiveSessions int `json:"active_sessions" validate:"min=0"`
}

type createTeamBookingRequest struct {
	TeamID          uint      `json:"team_id" validate:"required"`
	WorkItemID      *uint     `json:"work_item_id" validate:"omitnil,min=1"`
	WorkflowStepID  *uint     `json:"workflow_step_id" validate:"omitnil,min=1"`
	JobID           *uint     `json:"job_id"`
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	RequiredMembers int       `json:"required_members" validate:"min=0"`
}

func (r *createTeamBookingRequest) Validate() error {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return errors.New("start_time and end_time are required")
	}
	v := validator.New()
	return v.Struct(r)
}

type updateTeamBookingRequest struct {
	Title           *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Description     *string    `json:"description"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	RequiredMembers *int       `json:"required_members" validate:"omitnil,min=1"`
}

func (r *updateTeamBookingRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type workflowCompletionRequest struct {
	Action       string `json:"workflow_action" validate:"required,oneof=move_next move_back complete no_change"`
	TargetStepID *uint  `json:"target_step_id" validate:"omitnil,min=1"`
	Notes        string `json:"completion_notes" validate:"max=2000"`
	MarkComplete bool   `json:"mark_work_item_complete"`
}

func (r *workflowCompletionRequest) Validate() error {
	v := validator.New()
	if err := v.Struct(r); err != nil {
		return err
	}
	moves := r.Action == cflows.WorkflowActionMoveNext || r.Action == cflows.WorkflowActionMoveBack
	if moves && r.TargetStepID == nil && !r.MarkComplete {
		return cflows.ErrTargetStepRequired
	}
	return nil
}
