package cflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// What happens to the linked work item when its booking is completed.
const (
	WorkflowActionMoveNext = "move_next"
	WorkflowActionMoveBack = "move_back"
	WorkflowActionComplete = "complete"
	WorkflowActionNoChange = "no_change"
)

const maxBackwardSteps = 3

var (
	ErrUnknownWorkflowAction = errors.New("unknown workflow action")
	ErrTargetStepRequired    = errors.New("target step is required to move a work item")
	ErrStepNotInWorkflow     = fmt.Errorf("workflow step not found in work item workflow: %w", gorm.ErrRecordNotFound)
)

// WorkflowCompletion asks to complete a booking and update the work item
// behind it in one go.
type WorkflowCompletion struct {
	BookingID     uint
	CompletedByID *uint
	Action        string
	TargetStepID  *uint
	Notes         string
	// MarkComplete completes the work item whatever the action, unless
	// the action is no_change.
	MarkComplete bool
}

func (wc WorkflowCompletion) validate() error {
	switch wc.Action {
	case WorkflowActionComplete, WorkflowActionNoChange:
		return nil
	case WorkflowActionMoveNext, WorkflowActionMoveBack:
		if wc.TargetStepID == nil && !wc.MarkComplete {
			return ErrTargetStepRequired
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownWorkflowAction, wc.Action)
}

func (wc WorkflowCompletion) completes() bool {
	return wc.Action == WorkflowActionComplete || wc.MarkComplete
}

// CompletionResult describes what CompleteBookingWithWorkflowUpdate did.
type CompletionResult struct {
	Booking           *models.BookingRequest `json:"booking"`
	WorkItem          *models.WorkItem       `json:"work_item,omitempty"`
	WorkItemMoved     bool                   `json:"work_item_moved"`
	WorkItemCompleted bool                   `json:"work_item_completed"`
	NewStep           string                 `json:"new_step,omitempty"`
	Messages          []string               `json:"messages"`
}

// CompleteBookingWithWorkflowUpdate completes a booking through the
// scheduling lifecycle, then moves or completes its linked work item. The
// target step is checked before anything is written. A non-empty reason
// means the booking could not be completed and nothing changed.
func (i *Integration) CompleteBookingWithWorkflowUpdate(ctx context.Context, wc WorkflowCompletion) (*CompletionResult, string, error) {
	if err := wc.validate(); err != nil {
		return nil, "", err
	}
	booking, err := i.scheduler.GetBooking(ctx, wc.BookingID)
	if err != nil {
		return nil, "", err
	}
	item, err := i.linkedWorkItem(ctx, i.repo, booking)
	if err != nil {
		return nil, "", err
	}

	var target *models.WorkflowStep
	if item != nil && wc.Action != WorkflowActionNoChange && !wc.completes() {
		target, err = i.stepInWorkflow(ctx, item, *wc.TargetStepID)
		if err != nil {
			return nil, "", err
		}
	}

	completed, reason, err := i.scheduler.CompleteBookingWithNotes(ctx, booking.ID, wc.CompletedByID, wc.Notes)
	if err != nil || reason != "" {
		return nil, reason, err
	}
	res := &CompletionResult{Booking: completed, Messages: []string{"Booking completed successfully."}}
	if item == nil || wc.Action == WorkflowActionNoChange {
		return res, "", nil
	}

	err = i.repo.Transaction(ctx, func(repo Repository) error {
		// The completion event may already have advanced the item.
		current, err := repo.GetWorkItem(ctx, item.ID)
		if err != nil {
			return err
		}
		res.WorkItem = current
		if current.IsCompleted {
			res.Messages = append(res.Messages, "Work item already completed.")
			return nil
		}
		if wc.completes() {
			return i.completeWorkItem(ctx, repo, current, wc, res,
				joinNotes("Completed via booking completion.", wc.Notes))
		}
		return i.moveWorkItem(ctx, repo, current, target, wc, completed.Title, res)
	})
	if err != nil {
		return nil, "", fmt.Errorf("booking %s completed, work item %d not updated: %w", completed.UUID, item.ID, err)
	}
	return res, "", nil
}

func joinNotes(prefix, notes string) string {
	return strings.TrimSpace(prefix + " " + strings.TrimSpace(notes))
}

func (i *Integration) completeWorkItem(ctx context.Context, repo Repository, item *models.WorkItem, wc WorkflowCompletion, res *CompletionResult, notes string) error {
	now := i.now()
	item.IsCompleted = true
	item.CompletedAt = &now
	if err := repo.SaveWorkItem(ctx, item); err != nil {
		return fmt.Errorf("save work item: %w", err)
	}
	err := repo.CreateWorkItemHistory(ctx, &models.WorkItemHistory{
		WorkItemID:  item.ID,
		ChangedByID: wc.CompletedByID,
		FieldName:   "status",
		OldValue:    "in_progress",
		NewValue:    "completed",
		Notes:       notes,
	})
	if err != nil {
		return fmt.Errorf("write work item history: %w", err)
	}
	res.WorkItemCompleted = true
	res.Messages = append(res.Messages, "Work item marked as completed.")
	log.Infof("[CFlows] Work item %d completed from booking %s", item.ID, res.Booking.UUID)
	return nil
}

func (i *Integration) moveWorkItem(ctx context.Context, repo Repository, item *models.WorkItem, target *models.WorkflowStep, wc WorkflowCompletion, bookingTitle string, res *CompletionResult) error {
	from := item.CurrentStepID
	var oldName string
	if item.CurrentStep != nil {
		oldName = item.CurrentStep.Name
	}
	item.CurrentStepID = &target.ID
	item.CurrentStep = target
	if target.IsTerminal {
		now := i.now()
		item.IsCompleted = true
		item.CompletedAt = &now
	}
	if err := repo.SaveWorkItem(ctx, item); err != nil {
		return fmt.Errorf("save work item: %w", err)
	}
	err := repo.CreateWorkItemHistory(ctx, &models.WorkItemHistory{
		WorkItemID:  item.ID,
		ChangedByID: wc.CompletedByID,
		FieldName:   "workflow_step",
		OldValue:    oldName,
		NewValue:    target.Name,
		FromStepID:  from,
		ToStepID:    &target.ID,
		Notes:       joinNotes(fmt.Sprintf("Moved via booking completion: %s.", bookingTitle), wc.Notes),
	})
	if err != nil {
		return fmt.Errorf("write work item history: %w", err)
	}
	res.WorkItemMoved = true
	res.NewStep = target.Name
	res.Messages = append(res.Messages, fmt.Sprintf("Work item moved to %q.", target.Name))
	if target.IsTerminal {
		res.WorkItemCompleted = true
		res.Messages = append(res.Messages, "Work item automatically completed (final step).")
	}
	log.Infof("[CFlows] Work item %d moved to step %d from booking %s", item.ID, target.ID, res.Booking.UUID)
	return nil
}

// stepInWorkflow loads stepID when it belongs to the workflow the item is in.
func (i *Integration) stepInWorkflow(ctx context.Context, item *models.WorkItem, stepID uint) (*models.WorkflowStep, error) {
	if item.CurrentStep == nil {
		return nil, ErrStepNotInWorkflow
	}
	step, err := i.repo.GetWorkflowStep(ctx, stepID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrStepNotInWorkflow
		}
		return nil, err
	}
	if step.WorkflowID != item.CurrentStep.WorkflowID {
		return nil, ErrStepNotInWorkflow
	}
	return step, nil
}

// linkedWorkItem finds the work item behind a booking: from a work item
// provenance, through the team booking it mirrors, or from the work item
// ID in custom data. Items of other organizations are ignored.
func (i *Integration) linkedWorkItem(ctx context.Context, repo Repository, b *models.BookingRequest) (*models.WorkItem, error) {
	var id uint
	if b.SourceService == models.SourceServiceCFlows {
		switch {
		case strings.EqualFold(b.SourceObjectType, models.SourceObjectWorkItem):
			id = parseID(b.SourceObjectID)
		case isTeamBookingSource(b):
			if tbID := parseID(b.SourceObjectID); tbID != 0 {
				tb, err := repo.GetTeamBooking(ctx, tbID)
				switch {
				case err == nil && tb.WorkItemID != nil:
					id = *tb.WorkItemID
				case err != nil && !isNotFound(err):
					return nil, err
				}
			}
		}
	}
	if id == 0 {
		id = customDataID(b.CustomData[models.CustomDataWorkItemID])
	}
	if id == 0 {
		return nil, nil
	}

	item, err := repo.GetWorkItem(ctx, id)
	if err != nil {
		if isNotFound(err) {
			log.Warnf("[CFlows] Work item %d not found for booking %s", id, b.UUID)
			return nil, nil
		}
		return nil, err
	}
	if item.OrganizationID != b.OrganizationID {
		return nil, nil
	}
	return item, nil
}

func parseID(s string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// customDataID reads an ID that went through JSON or was stored as is.
func customDataID(v any) uint {
	switch n := v.(type) {
	case uint:
		return n
	case int:
		if n > 0 {
			return uint(n)
		}
	case float64:
		if n > 0 && n == float64(uint(n)) {
			return uint(n)
		}
	case json.Number:
		return parseID(n.String())
	case string:
		return parseID(n)
	}
	return 0
}

// StepOption is a step a work item can be moved to.
type StepOption struct {
	ID                     uint    `json:"id"`
	Name                   string  `json:"name"`
	IsTerminal             bool    `json:"is_terminal"`
	RequiresBooking        bool    `json:"requires_booking"`
	EstimatedDurationHours float64 `json:"estimated_duration_hours"`
}

func stepOption(s *models.WorkflowStep) StepOption {
	return StepOption{
		ID:                     s.ID,
		Name:                   s.Name,
		IsTerminal:             s.IsTerminal,
		RequiresBooking:        s.RequiresBooking,
		EstimatedDurationHours: s.EstimatedDuration.Hours(),
	}
}

// CompletionOptions lists what completing a booking can do to its work
// item. Prompt is false when there is nothing to decide.
type CompletionOptions struct {
	WorkItem        *models.WorkItem     `json:"work_item,omitempty"`
	CurrentStep     *models.WorkflowStep `json:"current_step,omitempty"`
	NextSteps       []StepOption         `json:"next_steps"`
	BackwardSteps   []StepOption         `json:"backward_steps"`
	CanComplete     bool                 `json:"can_complete"`
	RequiresBooking bool                 `json:"requires_booking"`
	Prompt          bool                 `json:"prompt"`
}

// GetCompletionOptions reports the next steps, up to three previously
// visited steps and whether the current step may finish the work item.
func (i *Integration) GetCompletionOptions(ctx context.Context, bookingID uint) (*CompletionOptions, error) {
	booking, err := i.scheduler.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	opts := &CompletionOptions{NextSteps: []StepOption{}, BackwardSteps: []StepOption{}}
	item, err := i.linkedWorkItem(ctx, i.repo, booking)
	if err != nil || item == nil || item.CurrentStep == nil {
		return opts, err
	}
	current := item.CurrentStep
	opts.WorkItem = item
	opts.CurrentStep = current
	opts.CanComplete = current.IsTerminal
	opts.RequiresBooking = current.RequiresBooking

	transitions, err := i.repo.ListTransitionsFrom(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	next := make([]*models.WorkflowStep, 0, len(transitions))
	for idx := range transitions {
		if to := transitions[idx].ToStep; to != nil {
			next = append(next, to)
		}
	}
	sort.SliceStable(next, func(a, b int) bool { return next[a].Order < next[b].Order })
	for _, s := range next {
		opts.NextSteps = append(opts.NextSteps, stepOption(s))
	}

	visited, err := i.repo.ListVisitedSteps(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	for idx := range visited {
		s := &visited[idx]
		if s.WorkflowID != current.WorkflowID || s.ID == current.ID {
			continue
		}
		if len(opts.BackwardSteps) == maxBackwardSteps {
			break
		}
		opts.BackwardSteps = append(opts.BackwardSteps, stepOption(s))
	}

	opts.Prompt = booking.Status != models.BookingStatusCompleted &&
		!item.IsCompleted &&
		(len(opts.NextSteps) > 0 || opts.CanComplete)
	return opts, nil
}
