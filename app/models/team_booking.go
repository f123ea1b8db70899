package models

import "time"

// WorkItem is a unit of work moving through a workflow.
type WorkItem struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	OrganizationID uint          `gorm:"not null;index" json:"organization_id"`
	Title          string        `gorm:"type:varchar(200);not null" json:"title"`
	Description    string        `gorm:"type:text" json:"description"`
	Priority       string        `gorm:"type:varchar(10);not null;default:'normal'" json:"priority"`
	CurrentStepID  *uint         `gorm:"index;default:null" json:"current_step_id,omitempty"`
	CurrentStep    *WorkflowStep `gorm:"foreignKey:CurrentStepID" json:"current_step,omitempty"`
	IsCompleted    bool          `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt    *time.Time    `gorm:"default:null" json:"completed_at,omitempty"`
	CreatedByID    *uint         `gorm:"default:null" json:"created_by_id,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type WorkflowStep struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	WorkflowID        uint          `gorm:"not null;index" json:"workflow_id"`
	Name              string        `gorm:"type:varchar(200);not null" json:"name"`
	Order             int           `gorm:"not null;default:0" json:"order"`
	AssignedTeamID    *uint         `gorm:"default:null" json:"assigned_team_id,omitempty"`
	AssignedTeam      *Team         `gorm:"foreignKey:AssignedTeamID" json:"assigned_team,omitempty"`
	RequiresBooking   bool          `gorm:"not null;default:false" json:"requires_booking"`
	EstimatedDuration time.Duration `gorm:"default:0" json:"estimated_duration"`
	IsTerminal        bool          `gorm:"not null;default:false" json:"is_terminal"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// WorkItemHistory records one change to a work item. Step moves carry
// both step IDs so earlier steps can be offered as targets again.
type WorkItemHistory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkItemID  uint      `gorm:"not null;index" json:"work_item_id"`
	ChangedByID *uint     `gorm:"default:null" json:"changed_by_id,omitempty"`
	FieldName   string    `gorm:"type:varchar(50);not null" json:"field_name"`
	OldValue    string    `gorm:"type:varchar(200)" json:"old_value"`
	NewValue    string    `gorm:"type:varchar(200)" json:"new_value"`
	FromStepID  *uint     `gorm:"default:null" json:"from_step_id,omitempty"`
	ToStepID    *uint     `gorm:"default:null" json:"to_step_id,omitempty"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WorkflowTransition is a directed edge between two steps. Transitions
// that do not require a booking may be followed automatically.
type WorkflowTransition struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	FromStepID      uint          `gorm:"not null;index" json:"from_step_id"`
	FromStep        *WorkflowStep `gorm:"foreignKey:FromStepID" json:"from_step,omitempty"`
	ToStepID        uint          `gorm:"not null" json:"to_step_id"`
	ToStep          *WorkflowStep `gorm:"foreignKey:ToStepID" json:"to_step,omitempty"`
	Label           string        `gorm:"type:varchar(100)" json:"label"`
	RequiresBooking bool          `gorm:"not null;default:false" json:"requires_booking"`
}

// TeamBooking is the workflow service's own booking record for a team
// working on a work item step. It mirrors a BookingRequest.
type TeamBooking struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	OrganizationID uint          `gorm:"not null;index" json:"organization_id"`
	TeamID         uint          `gorm:"not null;index" json:"team_id"`
	Team           *Team         `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	WorkItemID     *uint         `gorm:"index;default:null" json:"work_item_id,omitempty"`
	WorkItem       *WorkItem     `gorm:"foreignKey:WorkItemID" json:"work_item,omitempty"`
	JobID          *uint         `gorm:"default:null" json:"job_id,omitempty"`
	WorkflowStepID *uint         `gorm:"default:null" json:"workflow_step_id,omitempty"`
	WorkflowStep   *WorkflowStep `gorm:"foreignKey:WorkflowStepID" json:"workflow_step,omitempty"`

	Title           string    `gorm:"type:varchar(200);not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	StartTime       time.Time `gorm:"not null" json:"start_time"`
	EndTime         time.Time `gorm:"not null" json:"end_time"`
	RequiredMembers int       `gorm:"not null;default:1" json:"required_members"`

	BookedByID    *uint         `gorm:"default:null" json:"booked_by_id,omitempty"`
	AssignedUsers []UserProfile `gorm:"many2many:team_booking_assignees" json:"assigned_users,omitempty"`

	IsCompleted   bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt   *time.Time `gorm:"default:null" json:"completed_at,omitempty"`
	CompletedByID *uint      `gorm:"default:null" json:"completed_by_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkCompleted flags the booking done. It reports false when it already was.
func (t *TeamBooking) MarkCompleted(by *uint, now time.Time) bool {
	if t.IsCompleted {
		return false
	}
	t.IsCompleted = true
	t.CompletedAt = &now
	t.CompletedByID = by
	return true
}
