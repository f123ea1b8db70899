package cflows

import (
	"context"
	"sort"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"gorm.io/gorm"
)

type memRepo struct {
	workItems    map[uint]*models.WorkItem
	steps        map[uint]*models.WorkflowStep
	transitions  []models.WorkflowTransition
	teamBookings map[uint]*models.TeamBooking
	teams        map[uint]*models.Team
	history      []models.WorkItemHistory
	nextID       uint
}

func newMemRepo() *memRepo {
	return &memRepo{
		workItems:    map[uint]*models.WorkItem{},
		steps:        map[uint]*models.WorkflowStep{},
		teamBookings: map[uint]*models.TeamBooking{},
		teams:        map[uint]*models.Team{},
	}
}

func (r *memRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *memRepo) Transaction(_ context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *memRepo) GetWorkItem(_ context.Context, id uint) (*models.WorkItem, error) {
	item, ok := r.workItems[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	if cp.CurrentStepID != nil {
		cp.CurrentStep = r.steps[*cp.CurrentStepID]
	}
	return &cp, nil
}

func (r *memRepo) SaveWorkItem(_ context.Context, item *models.WorkItem) error {
	cp := *item
	cp.CurrentStep = nil
	r.workItems[item.ID] = &cp
	return nil
}

func (r *memRepo) FirstAutoTransition(_ context.Context, stepID uint) (*models.WorkflowTransition, error) {
	for _, tr := range r.transitions {
		if tr.FromStepID == stepID && !tr.RequiresBooking {
			cp := tr
			cp.ToStep = r.steps[tr.ToStepID]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) ListTransitionsFrom(_ context.Context, stepID uint) ([]models.WorkflowTransition, error) {
	var out []models.WorkflowTransition
	for _, tr := range r.transitions {
		if tr.FromStepID == stepID {
			cp := tr
			cp.ToStep = r.steps[tr.ToStepID]
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *memRepo) GetWorkflowStep(_ context.Context, id uint) (*models.WorkflowStep, error) {
	s, ok := r.steps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListVisitedSteps(_ context.Context, workItemID uint) ([]models.WorkflowStep, error) {
	seen := map[uint]bool{}
	var out []models.WorkflowStep
	for _, h := range r.history {
		if h.WorkItemID != workItemID || h.FromStepID == nil || seen[*h.FromStepID] {
			continue
		}
		seen[*h.FromStepID] = true
		if s, ok := r.steps[*h.FromStepID]; ok {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memRepo) CreateWorkItemHistory(_ context.Context, entry *models.WorkItemHistory) error {
	entry.ID = r.id()
	entry.CreatedAt = testNow
	r.history = append(r.history, *entry)
	return nil
}

func (r *memRepo) GetTeam(_ context.Context, id uint) (*models.Team, error) {
	t, ok := r.teams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) GetTeamBooking(_ context.Context, id uint) (*models.TeamBooking, error) {
	tb, ok := r.teamBookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tb
	if cp.Team == nil {
		cp.Team = r.teams[cp.TeamID]
	}
	return &cp, nil
}

func (r *memRepo) ListTeamBookings(_ context.Context, organizationID *uint) ([]models.TeamBooking, error) {
	ids := make([]uint, 0, len(r.teamBookings))
	for id := range r.teamBookings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.TeamBooking
	for _, id := range ids {
		tb := r.teamBookings[id]
		if organizationID == nil || tb.OrganizationID == *organizationID {
			out = append(out, *tb)
		}
	}
	return out, nil
}

func (r *memRepo) CreateTeamBooking(_ context.Context, tb *models.TeamBooking) error {
	tb.ID = r.id()
	cp := *tb
	r.teamBookings[tb.ID] = &cp
	return nil
}

func (r *memRepo) SaveTeamBooking(_ context.Context, tb *models.TeamBooking) error {
	cp := *tb
	r.teamBookings[tb.ID] = &cp
	return nil
}

func (r *memRepo) DeleteTeamBooking(_ context.Context, id uint) error {
	if _, ok := r.teamBookings[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.teamBookings, id)
	return nil
}

func (r *memRepo) CountOpenTeamBookings(_ context.Context, workItemID uint) (int64, error) {
	var n int64
	for _, tb := range r.teamBookings {
		if tb.WorkItemID != nil && *tb.WorkItemID == workItemID && !tb.IsCompleted {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) addTeam(team *models.Team) *models.Team {
	r.teams[team.ID] = team
	return team
}

func (r *memRepo) addStep(name string, team *models.Team, terminal bool) *models.WorkflowStep {
	s := &models.WorkflowStep{ID: r.id(), WorkflowID: 1, Name: name, Order: len(r.steps) + 1, AssignedTeam: team, IsTerminal: terminal}
	if team != nil {
		s.AssignedTeamID = &team.ID
	}
	r.steps[s.ID] = s
	return s
}

func (r *memRepo) addWorkItem(title string, step *models.WorkflowStep) *models.WorkItem {
	item := &models.WorkItem{ID: r.id(), OrganizationID: 1, Title: title, Priority: models.PriorityNormal, CurrentStepID: &step.ID}
	r.workItems[item.ID] = item
	cp := *item
	return &cp
}

func (r *memRepo) addTeamBooking(team *models.Team, item *models.WorkItem, title string, start time.Time) *models.TeamBooking {
	tb := &models.TeamBooking{
		ID:              r.id(),
		OrganizationID:  team.OrganizationID,
		TeamID:          team.ID,
		Team:            team,
		Title:           title,
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		RequiredMembers: 2,
	}
	if item != nil {
		tb.WorkItemID = &item.ID
		tb.WorkItem = item
	}
	r.teamBookings[tb.ID] = tb
	cp := *tb
	return &cp
}

// fakeScheduler stands in for the scheduling service.
type fakeScheduler struct {
	resources []*models.SchedulableResource
	bookings  []*models.BookingRequest
	requests  []scheduling.CreateBookingRequestInput
	ensured   []string
	suggested []uint
	deleted   []uint
	nextID    uint

	// onComplete plays the part of the completion event handlers.
	onComplete func(b *models.BookingRequest)
}

func (f *fakeScheduler) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeScheduler) CreateBookingRequest(_ context.Context, in scheduling.CreateBookingRequestInput) (*models.BookingRequest, error) {
	f.requests = append(f.requests, in)
	b := &models.BookingRequest{
		ID:               f.id(),
		OrganizationID:   in.OrganizationID,
		Title:            in.Title,
		Status:           models.BookingStatusConfirmed,
		SourceService:    in.SourceService,
		SourceObjectType: in.SourceObjectType,
		SourceObjectID:   in.SourceObjectID,
		CustomData:       in.CustomData,
	}
	f.bookings = append(f.bookings, b)
	return b, nil
}

func (f *fakeScheduler) EnsureTeamResource(_ context.Context, team *models.Team, serviceType, description string) (*models.SchedulableResource, bool, error) {
	for _, r := range f.resources {
		if r.LinkedTeamID != nil && *r.LinkedTeamID == team.ID {
			return r, false, nil
		}
	}
	f.ensured = append(f.ensured, serviceType+": "+description)
	r := &models.SchedulableResource{
		ID:             f.id(),
		OrganizationID: team.OrganizationID,
		Name:           team.Name,
		ResourceType:   models.ResourceTypeTeam,
		LinkedTeamID:   &team.ID,
		ServiceType:    serviceType,
		IsActive:       true,
	}
	f.resources = append(f.resources, r)
	return r, true, nil
}

func (f *fakeScheduler) FindResource(_ context.Context, filter scheduling.ResourceFilter) (*models.SchedulableResource, error) {
	for _, r := range f.resources {
		if r.OrganizationID == filter.OrganizationID && r.Name == filter.Name && r.ResourceType == filter.ResourceType {
			return r, nil
		}
	}
	return nil, scheduling.ErrResourceNotFound
}

func matches(b *models.BookingRequest, filter scheduling.BookingFilter) bool {
	if filter.OrganizationID != nil && b.OrganizationID != *filter.OrganizationID {
		return false
	}
	if filter.SourceService != "" && b.SourceService != filter.SourceService {
		return false
	}
	if filter.SourceObjectID != "" && b.SourceObjectID != filter.SourceObjectID {
		return false
	}
	if len(filter.SourceObjectTypes) > 0 && !contains(filter.SourceObjectTypes, b.SourceObjectType) {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, b.Status) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (f *fakeScheduler) FindBooking(_ context.Context, filter scheduling.BookingFilter) (*models.BookingRequest, error) {
	for _, b := range f.bookings {
		if matches(b, filter) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, scheduling.ErrBookingNotFound
}

func (f *fakeScheduler) ListBookings(_ context.Context, filter scheduling.BookingFilter) ([]models.BookingRequest, error) {
	var out []models.BookingRequest
	for _, b := range f.bookings {
		if matches(b, filter) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeScheduler) SaveMirroredBooking(_ context.Context, b *models.BookingRequest) error {
	b.EnsureUUID()
	cp := *b
	if b.ID == 0 {
		b.ID = f.id()
		cp.ID = b.ID
		f.bookings = append(f.bookings, &cp)
		return nil
	}
	for i, existing := range f.bookings {
		if existing.ID == b.ID {
			f.bookings[i] = &cp
		}
	}
	return nil
}

func (f *fakeScheduler) DeleteMirroredBooking(_ context.Context, bookingID uint) error {
	for i, b := range f.bookings {
		if b.ID == bookingID {
			f.bookings = append(f.bookings[:i], f.bookings[i+1:]...)
			f.deleted = append(f.deleted, bookingID)
			return nil
		}
	}
	return scheduling.ErrBookingNotFound
}

func (f *fakeScheduler) GetBooking(_ context.Context, id uint) (*models.BookingRequest, error) {
	for _, b := range f.bookings {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, scheduling.ErrBookingNotFound
}

func (f *fakeScheduler) CompleteBookingWithNotes(_ context.Context, bookingID uint, completedByID *uint, notes string) (*models.BookingRequest, string, error) {
	for _, b := range f.bookings {
		if b.ID != bookingID {
			continue
		}
		if b.IsTerminal() {
			return b, scheduling.ReasonCannotComplete, nil
		}
		b.Status = models.BookingStatusCompleted
		b.CompletedByID = completedByID
		b.CompletedAt = &testNow
		if notes != "" {
			if b.CustomData == nil {
				b.CustomData = map[string]any{}
			}
			b.CustomData[scheduling.CustomDataCompletionNotes] = notes
		}
		cp := *b
		if f.onComplete != nil {
			f.onComplete(&cp)
		}
		return &cp, "", nil
	}
	return nil, "", scheduling.ErrBookingNotFound
}

func (f *fakeScheduler) SuggestAlternativeTimes(_ context.Context, resourceID uint, preferredStart time.Time, duration time.Duration, _ int) ([]scheduling.Alternative, error) {
	f.suggested = append(f.suggested, resourceID)
	return []scheduling.Alternative{{StartTime: preferredStart, EndTime: preferredStart.Add(duration), Score: 100}}, nil
}

type recordingPublisher struct {
	notes []events.TeamBookingNotification
}

func (p *recordingPublisher) PublishTeamBooking(_ context.Context, n events.TeamBookingNotification) error {
	p.notes = append(p.notes, n)
	return nil
}
