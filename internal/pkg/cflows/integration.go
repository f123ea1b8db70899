// Package cflows is the workflow-service side of the booking sync: it
// raises scheduling bookings for work items, mirrors team bookings into
// the scheduling store and reacts to scheduling lifecycle events.
package cflows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	// ResourceServiceType marks resources created by the workflow service.
	ResourceServiceType = "cflows"

	DefaultBookingHours = 2.0
)

var (
	ErrStepWithoutTeam     = errors.New("workflow step must have assigned team")
	ErrTeamBookingNotFound = fmt.Errorf("team booking not found: %w", gorm.ErrRecordNotFound)
)

// Scheduler is the part of the scheduling service the workflow side uses.
type Scheduler interface {
	CreateBookingRequest(ctx context.Context, in scheduling.CreateBookingRequestInput) (*models.BookingRequest, error)
	EnsureTeamResource(ctx context.Context, team *models.Team, serviceType, description string) (*models.SchedulableResource, bool, error)
	FindResource(ctx context.Context, filter scheduling.ResourceFilter) (*models.SchedulableResource, error)
	FindBooking(ctx context.Context, filter scheduling.BookingFilter) (*models.BookingRequest, error)
	ListBookings(ctx context.Context, filter scheduling.BookingFilter) ([]models.BookingRequest, error)
	SaveMirroredBooking(ctx context.Context, b *models.BookingRequest) error
	DeleteMirroredBooking(ctx context.Context, bookingID uint) error
	GetBooking(ctx context.Context, id uint) (*models.BookingRequest, error)
	CompleteBookingWithNotes(ctx context.Context, bookingID uint, completedByID *uint, notes string) (*models.BookingRequest, string, error)
	SuggestAlternativeTimes(ctx context.Context, resourceID uint, preferredStart time.Time, duration time.Duration, maxAlternatives int) ([]scheduling.Alternative, error)
}

// TeamBookingPublisher receives workflow-side completion events.
type TeamBookingPublisher interface {
	PublishTeamBooking(ctx context.Context, n events.TeamBookingNotification) error
}

type Integration struct {
	repo      Repository
	scheduler Scheduler
	publisher TeamBookingPublisher
	now       func() time.Time
}

type Option func(*Integration)

func WithClock(now func() time.Time) Option {
	return func(i *Integration) { i.now = now }
}

func WithPublisher(p TeamBookingPublisher) Option {
	return func(i *Integration) { i.publisher = p }
}

func NewIntegration(repo Repository, scheduler Scheduler, opts ...Option) *Integration {
	i := &Integration{repo: repo, scheduler: scheduler, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func NewIntegrationFromDB(db *gorm.DB, scheduler Scheduler, opts ...Option) *Integration {
	return NewIntegration(NewRepository(db), scheduler, opts...)
}

// RegisterHandlers subscribes the workflow side to scheduling events for
// bookings it owns.
func (i *Integration) RegisterHandlers(bus *events.Bus) {
	bus.SubscribeBooking(models.SourceServiceCFlows, i.HandleBookingCompleted)
}

// bookingPriority maps a work item priority onto the booking scale.
func bookingPriority(p string) string {
	switch strings.ToLower(p) {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
		return strings.ToLower(p)
	case "critical":
		return models.PriorityUrgent
	default:
		return models.PriorityNormal
	}
}

func teamResourceDescription(team *models.Team) string {
	return fmt.Sprintf("Team resource for %s", team.Name)
}

// CreateWorkItemBooking books the team assigned to step for a work item.
// The resource is derived from the team and created on first use.
func (i *Integration) CreateWorkItemBooking(ctx context.Context, item *models.WorkItem, step *models.WorkflowStep, requestedByID *uint, start time.Time, hours float64, customData map[string]any) (*models.BookingRequest, error) {
	if step.AssignedTeam == nil {
		return nil, ErrStepWithoutTeam
	}
	if hours <= 0 {
		hours = DefaultBookingHours
	}
	team := step.AssignedTeam
	resource, _, err := i.scheduler.EnsureTeamResource(ctx, team, ResourceServiceType, teamResourceDescription(team))
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"work_item_id":       item.ID,
		"workflow_step_id":   step.ID,
		"estimated_duration": hours,
		"team_id":            team.ID,
	}
	for k, v := range customData {
		data[k] = v
	}

	return i.scheduler.CreateBookingRequest(ctx, scheduling.CreateBookingRequestInput{
		OrganizationID:   item.OrganizationID,
		ResourceName:     resource.Name,
		Title:            fmt.Sprintf("%s - %s", item.Title, step.Name),
		Description:      fmt.Sprintf("Booking for work item: %s", item.Title),
		Start:            start,
		End:              start.Add(time.Duration(hours * float64(time.Hour))),
		Priority:         bookingPriority(item.Priority),
		SourceService:    models.SourceServiceCFlows,
		SourceObjectType: models.SourceObjectWorkItem,
		SourceObjectID:   strconv.FormatUint(uint64(item.ID), 10),
		RequestedByID:    requestedByID,
		CustomData:       data,
	})
}

func teamBookingSourceID(tb *models.TeamBooking) string {
	return strconv.FormatUint(uint64(tb.ID), 10)
}

// mirrorTitle prefixes the work item title when there is one.
func mirrorTitle(tb *models.TeamBooking) string {
	if tb.WorkItem == nil {
		return tb.Title
	}
	return fmt.Sprintf("%s - %s", tb.WorkItem.Title, tb.Title)
}

func mirrorDescription(tb *models.TeamBooking) string {
	if tb.WorkItem == nil {
		return tb.Description
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Work Item: %s\n", tb.WorkItem.Title)
	if tb.WorkflowStep != nil {
		fmt.Fprintf(&sb, "Workflow Step: %s\n", tb.WorkflowStep.Name)
	}
	fmt.Fprintf(&sb, "Original Booking: %s\n", tb.Title)
	if tb.Description != "" {
		fmt.Fprintf(&sb, "\n%s", tb.Description)
	}
	return sb.String()
}

func mirrorCustomData(tb *models.TeamBooking) map[string]any {
	data := map[string]any{
		"work_item_id":           nil,
		"work_item_title":        nil,
		"workflow_step_id":       nil,
		"workflow_step_name":     nil,
		"team_id":                tb.TeamID,
		"job_id":                 nil,
		"original_booking_title": tb.Title,
		"required_members":       tb.RequiredMembers,
	}
	if tb.WorkItem != nil {
		data["work_item_id"] = tb.WorkItem.ID
		data["work_item_title"] = tb.WorkItem.Title
	}
	if tb.WorkflowStep != nil {
		data["workflow_step_id"] = tb.WorkflowStep.ID
		data["workflow_step_name"] = tb.WorkflowStep.Name
	}
	if tb.Team != nil {
		data["team_name"] = tb.Team.Name
	}
	if tb.JobID != nil {
		data["job_id"] = *tb.JobID
	}
	return data
}

// UpsertFromTeamBooking creates or refreshes the scheduling booking that
// mirrors tb, found by provenance triple. created reports an insert.
func (i *Integration) UpsertFromTeamBooking(ctx context.Context, tb *models.TeamBooking) (booking *models.BookingRequest, created bool, err error) {
	if tb.Team == nil {
		return nil, false, fmt.Errorf("team booking %d has no team loaded", tb.ID)
	}
	existing, err := i.scheduler.FindBooking(ctx, scheduling.BookingFilter{
		OrganizationID:    &tb.Team.OrganizationID,
		SourceService:     models.SourceServiceCFlows,
		SourceObjectTypes: models.TeamBookingSourceTypes,
		SourceObjectID:    teamBookingSourceID(tb),
	})
	switch {
	case err == nil:
		booking = existing
	case isNotFound(err):
		resource, _, err := i.scheduler.EnsureTeamResource(ctx, tb.Team, ResourceServiceType, teamResourceDescription(tb.Team))
		if err != nil {
			return nil, false, err
		}
		booking = &models.BookingRequest{
			OrganizationID:   tb.Team.OrganizationID,
			ResourceID:       resource.ID,
			Status:           models.BookingStatusConfirmed,
			Priority:         models.PriorityNormal,
			SourceService:    models.SourceServiceCFlows,
			SourceObjectType: models.SourceObjectTeamBooking,
			SourceObjectID:   teamBookingSourceID(tb),
			RequestedByID:    tb.BookedByID,
		}
		created = true
	default:
		return nil, false, err
	}

	booking.Title = mirrorTitle(tb)
	booking.Description = mirrorDescription(tb)
	booking.RequestedStart = tb.StartTime
	booking.RequestedEnd = tb.EndTime
	booking.RequiredCapacity = tb.RequiredMembers
	if booking.RequiredCapacity <= 0 {
		booking.RequiredCapacity = 1
	}
	booking.CustomData = mirrorCustomData(tb)

	switch {
	case tb.IsCompleted && booking.Status != models.BookingStatusCompleted:
		start, end := tb.StartTime, tb.EndTime
		booking.Status = models.BookingStatusCompleted
		booking.CompletedAt = tb.CompletedAt
		booking.CompletedByID = tb.CompletedByID
		booking.ActualStart = &start
		booking.ActualEnd = &end
	case !tb.IsCompleted && booking.Status == models.BookingStatusCompleted:
		booking.Status = models.BookingStatusConfirmed
		booking.CompletedAt = nil
		booking.CompletedByID = nil
		booking.ActualStart = nil
		booking.ActualEnd = nil
	}

	if err := i.scheduler.SaveMirroredBooking(ctx, booking); err != nil {
		return nil, false, err
	}
	return booking, created, nil
}

// SyncResult counts the outcome of a batch sync.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncAllTeamBookings mirrors every team booking of the organization, or
// of all organizations when organizationID is nil. A failing record is
// logged and counted; the batch goes on.
func (i *Integration) SyncAllTeamBookings(ctx context.Context, organizationID *uint) (SyncResult, error) {
	var res SyncResult
	teamBookings, err := i.repo.ListTeamBookings(ctx, organizationID)
	if err != nil {
		return res, err
	}
	for idx := range teamBookings {
		tb := &teamBookings[idx]
		if _, _, err := i.UpsertFromTeamBooking(ctx, tb); err != nil {
			log.Errorf("[CFlows] Error syncing team booking %d: %v", tb.ID, err)
			recordSync(opSyncTeamBookings, err)
			res.Errors++
			continue
		}
		recordSync(opSyncTeamBookings, nil)
		res.Synced++
	}
	log.Infof("[CFlows] Team booking sync finished: %d synced, %d errors", res.Synced, res.Errors)
	return res, nil
}

// SyncCompletedBookingsRetroactively marks team bookings complete whose
// scheduling booking was completed without the workflow side noticing.
func (i *Integration) SyncCompletedBookingsRetroactively(ctx context.Context, organizationID *uint) (SyncResult, error) {
	var res SyncResult
	bookings, err := i.scheduler.ListBookings(ctx, scheduling.BookingFilter{
		OrganizationID:    organizationID,
		Statuses:          []string{models.BookingStatusCompleted},
		SourceService:     models.SourceServiceCFlows,
		SourceObjectTypes: models.TeamBookingSourceTypes,
	})
	if err != nil {
		return res, err
	}
	for idx := range bookings {
		b := &bookings[idx]
		done, err := i.completeFromBooking(ctx, b)
		switch {
		case err != nil:
			log.Errorf("[CFlows] Error syncing completed booking %s: %v", b.UUID, err)
			recordSync(opSyncCompleted, err)
			res.Errors++
		case done:
			recordSync(opSyncCompleted, nil)
			res.Synced++
		default:
			res.Skipped++
		}
	}
	log.Infof("[CFlows] Retroactive sync completed: %d synced, %d errors", res.Synced, res.Errors)
	return res, nil
}

// HandleBookingCompleted is the forward direction: a completed scheduling
// booking marks its team booking complete.
func (i *Integration) HandleBookingCompleted(ctx context.Context, n events.BookingNotification) error {
	if n.Event != events.BookingCompleted {
		return nil
	}
	if !isTeamBookingSource(n.Booking) {
		return nil
	}
	_, err := i.completeFromBooking(ctx, n.Booking)
	return err
}

func isTeamBookingSource(b *models.BookingRequest) bool {
	if b.SourceService != models.SourceServiceCFlows {
		return false
	}
	for _, t := range models.TeamBookingSourceTypes {
		if strings.EqualFold(b.SourceObjectType, t) {
			return true
		}
	}
	return false
}

// completeFromBooking marks the team booking behind b complete. It
// reports false when the team booking already was.
func (i *Integration) completeFromBooking(ctx context.Context, b *models.BookingRequest) (bool, error) {
	id, err := strconv.ParseUint(b.SourceObjectID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("booking %s: bad team booking id %q", b.UUID, b.SourceObjectID)
	}
	var changed bool
	err = i.repo.Transaction(ctx, func(repo Repository) error {
		tb, err := repo.GetTeamBooking(ctx, uint(id))
		if err != nil {
			if isNotFound(err) {
				return ErrTeamBookingNotFound
			}
			return err
		}
		if !tb.MarkCompleted(b.CompletedByID, i.now()) {
			return nil
		}
		if err := repo.SaveTeamBooking(ctx, tb); err != nil {
			return fmt.Errorf("save team booking: %w", err)
		}
		changed = true
		return i.advanceWorkItem(ctx, repo, tb)
	})
	if err != nil {
		return false, err
	}
	if changed {
		log.Infof("[CFlows] Team booking %d marked complete from booking %s", id, b.UUID)
	}
	return changed, nil
}

// advanceWorkItem completes the work item once all of its team bookings
// are done and the first booking-free transition leads to a terminal step.
func (i *Integration) advanceWorkItem(ctx context.Context, repo Repository, tb *models.TeamBooking) error {
	if tb.WorkItemID == nil {
		return nil
	}
	item, err := repo.GetWorkItem(ctx, *tb.WorkItemID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if item.CurrentStepID == nil || item.IsCompleted {
		return nil
	}
	open, err := repo.CountOpenTeamBookings(ctx, item.ID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	tr, err := repo.FirstAutoTransition(ctx, *item.CurrentStepID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if tr.ToStep == nil || !tr.ToStep.IsTerminal {
		return nil
	}
	now := i.now()
	item.CurrentStepID = &tr.ToStepID
	item.CurrentStep = tr.ToStep
	item.IsCompleted = true
	item.CompletedAt = &now
	if err := repo.SaveWorkItem(ctx, item); err != nil {
		return fmt.Errorf("save work item: %w", err)
	}
	log.Infof("[CFlows] Work item %d completed after all bookings finished", item.ID)
	return nil
}

// CompleteTeamBooking is the reverse direction: the workflow side finishes
// a team booking and announces it so the scheduling booking follows.
func (i *Integration) CompleteTeamBooking(ctx context.Context, teamBookingID uint, completedByID *uint) (*models.TeamBooking, error) {
	var (
		tb      *models.TeamBooking
		changed bool
	)
	err := i.repo.Transaction(ctx, func(repo Repository) error {
		var err error
		tb, err = repo.GetTeamBooking(ctx, teamBookingID)
		if err != nil {
			if isNotFound(err) {
				return ErrTeamBookingNotFound
			}
			return err
		}
		if !tb.MarkCompleted(completedByID, i.now()) {
			return nil
		}
		if err := repo.SaveTeamBooking(ctx, tb); err != nil {
			return fmt.Errorf("save team booking: %w", err)
		}
		changed = true
		return i.advanceWorkItem(ctx, repo, tb)
	})
	if err != nil {
		return nil, err
	}
	if changed && i.publisher != nil {
		err := i.publisher.PublishTeamBooking(ctx, events.TeamBookingNotification{
			Event:         events.TeamBookingCompleted,
			TeamBooking:   tb,
			CompletedByID: completedByID,
			OccurredAt:    i.now(),
		})
		if err != nil {
			log.Warnf("[CFlows] Completion of team booking %d not mirrored: %v", tb.ID, err)
		}
	}
	return tb, nil
}

// SuggestBookingTimes proposes slots for the organization's active team
// resource called teamName. An unknown team yields no suggestions.
func (i *Integration) SuggestBookingTimes(ctx context.Context, organizationID uint, teamName string, preferredStart time.Time, hours float64, maxAlternatives int) ([]scheduling.Alternative, error) {
	resource, err := i.scheduler.FindResource(ctx, scheduling.ResourceFilter{
		OrganizationID: organizationID,
		Name:           teamName,
		ResourceType:   models.ResourceTypeTeam,
		ActiveOnly:     true,
	})
	if err != nil {
		if isNotFound(err) {
			return []scheduling.Alternative{}, nil
		}
		return nil, err
	}
	duration := time.Duration(hours * float64(time.Hour))
	return i.scheduler.SuggestAlternativeTimes(ctx, resource.ID, preferredStart, duration, maxAlternatives)
}
