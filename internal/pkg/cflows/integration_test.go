package cflows

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
)

func newTestIntegration(repo *memRepo, sched *fakeScheduler, opts ...Option) *Integration {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewIntegration(repo, sched, opts...)
}

func opsTeam() *models.Team {
	return &models.Team{ID: 500, OrganizationID: 1, Name: "Ops", DefaultCapacity: 2, IsActive: true}
}

func TestCreateWorkItemBooking(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	sched := &fakeScheduler{}
	integ := newTestIntegration(repo, sched)
	team := opsTeam()

	unassigned := repo.addStep("Triage", nil, false)
	item := repo.addWorkItem("Fix pump", unassigned)
	_, err := integ.CreateWorkItemBooking(ctx, item, unassigned, nil, slotStart, 1, nil)
	assert.ErrorIs(t, err, ErrStepWithoutTeam)

	step := repo.addStep("Inspection", team, false)
	item.Priority = "critical"
	b, err := integ.CreateWorkItemBooking(ctx, item, step, nil, slotStart, 1.5, map[string]any{"site": "north"})
	require.NoError(t, err)
	require.NotNil(t, b)

	require.Len(t, sched.requests, 1)
	req := sched.requests[0]
	assert.Equal(t, "Fix pump - Inspection", req.Title)
	assert.Equal(t, "Booking for work item: Fix pump", req.Description)
	assert.Equal(t, "Ops", req.ResourceName)
	assert.Equal(t, slotStart.Add(90*time.Minute), req.End)
	assert.Equal(t, models.PriorityUrgent, req.Priority)
	assert.Equal(t, models.SourceServiceCFlows, req.SourceService)
	assert.Equal(t, models.SourceObjectWorkItem, req.SourceObjectType)
	assert.Equal(t, item.ID, req.CustomData["work_item_id"])
	assert.Equal(t, "north", req.CustomData["site"])
	assert.Equal(t, []string{"cflows: Team resource for Ops"}, sched.ensured)

	_, err = integ.CreateWorkItemBooking(ctx, item, step, nil, slotStart.Add(3*time.Hour), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, slotStart.Add(5*time.Hour), sched.requests[1].End, "defaults to two hours")
	assert.Len(t, sched.ensured, 1, "team resource is reused")
}

func TestBookingPriority(t *testing.T) {
	tests := map[string]string{
		"low":      models.PriorityLow,
		"HIGH":     models.PriorityHigh,
		"critical": models.PriorityUrgent,
		"":         models.PriorityNormal,
		"whenever": models.PriorityNormal,
	}
	for in, want := range tests {
		assert.Equal(t, want, bookingPriority(in), in)
	}
}

func TestUpsertFromTeamBooking(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	sched := &fakeScheduler{}
	integ := newTestIntegration(repo, sched)
	team := opsTeam()
	step := repo.addStep("Inspection", team, false)
	item := repo.addWorkItem("Fix pump", step)
	tb := repo.addTeamBooking(team, item, "On site", slotStart)
	tb.WorkflowStep = step
	tb.Description = "Bring ladder"

	b, created, err := integ.UpsertFromTeamBooking(ctx, tb)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, "Fix pump - On site", b.Title)
	assert.Equal(t, "Work Item: Fix pump\nWorkflow Step: Inspection\nOriginal Booking: On site\n\nBring ladder", b.Description)
	assert.Equal(t, models.SourceObjectTeamBooking, b.SourceObjectType)
	assert.Equal(t, 2, b.RequiredCapacity)
	assert.Equal(t, "Ops", b.CustomData["team_name"])

	worker := uint(77)
	done := slotStart.Add(2 * time.Hour)
	tb.IsCompleted = true
	tb.CompletedAt = &done
	tb.CompletedByID = &worker
	b, created, err = integ.UpsertFromTeamBooking(ctx, tb)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.BookingStatusCompleted, b.Status)
	require.NotNil(t, b.ActualStart)
	assert.Equal(t, slotStart, *b.ActualStart)
	assert.Equal(t, &worker, b.CompletedByID)
	assert.Len(t, sched.bookings, 1)

	tb.IsCompleted = false
	b, _, err = integ.UpsertFromTeamBooking(ctx, tb)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Nil(t, b.CompletedAt)
	assert.Nil(t, b.ActualStart)
}

func TestSyncAllTeamBookings_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	sched := &fakeScheduler{}
	integ := newTestIntegration(repo, sched)
	team := opsTeam()
	repo.addTeamBooking(team, nil, "First", slotStart)
	broken := repo.addTeamBooking(team, nil, "Broken", slotStart.Add(time.Hour))
	repo.teamBookings[broken.ID].Team = nil
	repo.addTeamBooking(team, nil, "Third", slotStart.Add(2*time.Hour))

	org := uint(1)
	res, err := integ.SyncAllTeamBookings(ctx, &org)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 2, Errors: 1}, res)
	assert.Len(t, sched.bookings, 2)

	res, err = integ.SyncAllTeamBookings(ctx, &org)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Len(t, sched.bookings, 2, "second run updates in place")
}

// workflowFixture is a work item at an "Inspection" step with two team
// bookings and a booking-free transition to a terminal "Done" step.
func workflowFixture(repo *memRepo) (item *models.WorkItem, first, second *models.TeamBooking, done *models.WorkflowStep) {
	team := opsTeam()
	inspection := repo.addStep("Inspection", team, false)
	done = repo.addStep("Done", nil, true)
	review := repo.addStep("Review", nil, false)
	repo.transitions = append(repo.transitions,
		models.WorkflowTransition{ID: 1, FromStepID: inspection.ID, ToStepID: review.ID, RequiresBooking: true},
		models.WorkflowTransition{ID: 2, FromStepID: inspection.ID, ToStepID: done.ID},
	)
	item = repo.addWorkItem("Fix pump", inspection)
	first = repo.addTeamBooking(team, item, "Morning", slotStart)
	second = repo.addTeamBooking(team, item, "Afternoon", slotStart.Add(4*time.Hour))
	return item, first, second, done
}

func completedBooking(tb *models.TeamBooking, by *uint) *models.BookingRequest {
	b := &models.BookingRequest{
		OrganizationID:   1,
		Status:           models.BookingStatusCompleted,
		SourceService:    models.SourceServiceCFlows,
		SourceObjectType: models.SourceObjectTeamBooking,
		SourceObjectID:   teamBookingSourceID(tb),
		CompletedByID:    by,
	}
	b.EnsureUUID()
	return b
}

func TestHandleBookingCompleted_AdvancesWorkItem(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	integ := newTestIntegration(repo, &fakeScheduler{})
	bus := events.NewBus()
	integ.RegisterHandlers(bus)
	item, first, second, done := workflowFixture(repo)
	worker := uint(9)

	publish := func(tb *models.TeamBooking, event events.BookingEvent) {
		require.NoError(t, bus.PublishBooking(ctx, events.BookingNotification{Event: event, Booking: completedBooking(tb, &worker)}))
	}

	publish(first, events.BookingStarted)
	assert.False(t, repo.teamBookings[first.ID].IsCompleted, "only completion is mirrored")

	publish(first, events.BookingCompleted)
	assert.True(t, repo.teamBookings[first.ID].IsCompleted)
	assert.Equal(t, &worker, repo.teamBookings[first.ID].CompletedByID)
	assert.False(t, repo.workItems[item.ID].IsCompleted, "second booking still open")

	publish(second, events.BookingCompleted)
	stored := repo.workItems[item.ID]
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.CurrentStepID)
	assert.Equal(t, done.ID, *stored.CurrentStepID)
	assert.Equal(t, testNow, *stored.CompletedAt)

	// Replays change nothing.
	publish(second, events.BookingCompleted)
	assert.Equal(t, testNow, *repo.teamBookings[second.ID].CompletedAt)
}

func TestHandleBookingCompleted_IgnoresOtherBookings(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	integ := newTestIntegration(repo, &fakeScheduler{})

	b := &models.BookingRequest{SourceService: models.SourceServiceCFlows, SourceObjectType: models.SourceObjectWorkItem, SourceObjectID: "1"}
	require.NoError(t, integ.HandleBookingCompleted(ctx, events.BookingNotification{Event: events.BookingCompleted, Booking: b}))

	b = &models.BookingRequest{SourceService: models.SourceServiceCFlows, SourceObjectType: models.SourceObjectTeamBooking, SourceObjectID: "404"}
	err := integ.HandleBookingCompleted(ctx, events.BookingNotification{Event: events.BookingCompleted, Booking: b})
	assert.ErrorIs(t, err, ErrTeamBookingNotFound)
}

func TestCompleteTeamBooking_PublishesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	pub := &recordingPublisher{}
	integ := newTestIntegration(repo, &fakeScheduler{}, WithPublisher(pub))
	_, first, _, _ := workflowFixture(repo)
	worker := uint(3)

	tb, err := integ.CompleteTeamBooking(ctx, first.ID, &worker)
	require.NoError(t, err)
	assert.True(t, tb.IsCompleted)
	require.Len(t, pub.notes, 1)
	assert.Equal(t, events.TeamBookingCompleted, pub.notes[0].Event)
	assert.Equal(t, first.ID, pub.notes[0].TeamBooking.ID)
	assert.Equal(t, &worker, pub.notes[0].CompletedByID)

	_, err = integ.CompleteTeamBooking(ctx, first.ID, &worker)
	require.NoError(t, err)
	assert.Len(t, pub.notes, 1)

	_, err = integ.CompleteTeamBooking(ctx, 404, nil)
	assert.ErrorIs(t, err, ErrTeamBookingNotFound)
}

func TestSyncCompletedBookingsRetroactively(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	sched := &fakeScheduler{}
	integ := newTestIntegration(repo, sched)
	_, first, second, _ := workflowFixture(repo)
	repo.teamBookings[second.ID].IsCompleted = true

	missing := &models.TeamBooking{ID: 404}
	sched.bookings = []*models.BookingRequest{
		completedBooking(first, nil),
		completedBooking(second, nil),
		completedBooking(missing, nil),
	}
	pending := completedBooking(first, nil)
	pending.Status = models.BookingStatusPending
	sched.bookings = append(sched.bookings, pending)

	res, err := integ.SyncCompletedBookingsRetroactively(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 1, Skipped: 1, Errors: 1}, res)
	assert.True(t, repo.teamBookings[first.ID].IsCompleted)
}

func TestSuggestBookingTimes(t *testing.T) {
	ctx := context.Background()
	sched := &fakeScheduler{}
	integ := newTestIntegration(newMemRepo(), sched)

	alts, err := integ.SuggestBookingTimes(ctx, 1, "Ops", slotStart, 2, 5)
	require.NoError(t, err)
	assert.Empty(t, alts)

	res, _, err := sched.EnsureTeamResource(ctx, opsTeam(), ResourceServiceType, "")
	require.NoError(t, err)
	alts, err = integ.SuggestBookingTimes(ctx, 1, "Ops", slotStart, 2, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	assert.Equal(t, slotStart.Add(2*time.Hour), alts[0].EndTime)
	assert.Equal(t, []uint{res.ID}, sched.suggested)
}
