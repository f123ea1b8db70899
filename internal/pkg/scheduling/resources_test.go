package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateResource_Defaults(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)

	res, err := svc.CreateResource(ctx, CreateResourceInput{OrganizationID: 1, Name: "Projector", ResourceType: models.ResourceTypeEquipment})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MaxConcurrentBookings)
	assert.Equal(t, models.DefaultBookingDuration, res.DefaultBookingDuration)
	assert.Equal(t, models.DefaultAvailabilityRules(), res.AvailabilityRules)
	assert.Equal(t, models.DefaultResourceServiceType, res.ServiceType)
	assert.True(t, res.IsActive)

	_, err = svc.CreateResource(ctx, CreateResourceInput{OrganizationID: 1, Name: "Spaceship", ResourceType: "vehicle"})
	assert.Error(t, err)
}

func TestUpdateResource(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)

	name := "Room 101"
	capacity := 3
	updated, err := svc.UpdateResource(ctx, 1, room.ID, ResourceUpdate{Name: &name, MaxConcurrentBookings: &capacity})
	require.NoError(t, err)
	assert.Equal(t, "Room 101", updated.Name)
	assert.Equal(t, 3, updated.MaxConcurrentBookings)
	assert.Equal(t, "Room 101", repo.resources[room.ID].Name)

	_, err = svc.UpdateResource(ctx, 2, room.ID, ResourceUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestDeactivateResource_RefusedWithFutureBookings(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)
	b := repo.addBooking(room, at(monday, 10, 0), at(monday, 11, 0), models.BookingStatusPending)

	ok, err := svc.DeactivateResource(ctx, 1, room.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, repo.resources[room.ID].IsActive)

	_, reason, err := svc.CancelBooking(ctx, b.ID, "")
	require.NoError(t, err)
	require.Empty(t, reason)

	ok, err = svc.DeactivateResource(ctx, 1, room.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, repo.resources[room.ID].IsActive)
}

func TestGetAvailableResources(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	a := repo.addResource(1, "A room", 1)
	repo.addResource(1, "B room", 1)
	repo.addResource(2, "Other org", 1)
	repo.addBooking(a, at(monday, 9, 0), at(monday, 10, 0), models.BookingStatusConfirmed)

	free, err := svc.GetAvailableResources(ctx, 1, at(monday, 9, 0), 0)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, "B room", free[0].Name)

	free, err = svc.GetAvailableResources(ctx, 1, at(monday, 10, 0), time.Hour)
	require.NoError(t, err)
	assert.Len(t, free, 2)
}

func TestSyncTeamResources_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	ops := repo.addTeam(1, "Ops", 3)
	repo.addTeam(1, "Dev", 2)
	repo.teams[repo.addTeam(1, "Retired", 1).ID].IsActive = false

	first, err := svc.SyncTeamResources(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Len(t, repo.resources, 2)

	res, created, err := svc.CreateResourceFromTeam(ctx, ops)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ops", res.Name)
	assert.Equal(t, models.ResourceTypeTeam, res.ResourceType)
	assert.Equal(t, "Schedulable resource for team: Ops", res.Description)
	assert.Equal(t, 3, res.MaxConcurrentBookings)

	second, err := svc.SyncTeamResources(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Len(t, repo.resources, 2)
}

func TestUpdateResourceCapacity_PropagatesToTeam(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	team := repo.addTeam(1, "Ops", 2)
	res, _, err := svc.CreateResourceFromTeam(ctx, team)
	require.NoError(t, err)

	updated, err := svc.UpdateResourceCapacity(ctx, res.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.MaxConcurrentBookings)
	assert.Equal(t, 5, repo.teams[team.ID].DefaultCapacity)

	_, err = svc.UpdateResourceCapacity(ctx, 999, 5)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestSetResourceAvailability(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)

	_, err := svc.SetResourceAvailability(ctx, room.ID, 18, 8, []int{0})
	assert.Error(t, err)
	_, err = svc.SetResourceAvailability(ctx, room.ID, 9, 17, []int{7})
	assert.Error(t, err)

	_, err = svc.SetResourceAvailability(ctx, room.ID, 9, 17, []int{0, 1})
	require.NoError(t, err)

	free, err := svc.IsTimeSlotAvailable(ctx, room.ID, at(monday, 8, 0), at(monday, 9, 0), nil)
	require.NoError(t, err)
	assert.False(t, free)
	free, err = svc.IsTimeSlotAvailable(ctx, room.ID, at(monday, 9, 0), at(monday, 17, 0), nil)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestAddRule(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)

	err := svc.AddRule(ctx, &models.ResourceScheduleRule{ResourceID: room.ID, RuleType: "holiday"})
	assert.Error(t, err)

	err = svc.AddRule(ctx, &models.ResourceScheduleRule{ResourceID: 999, RuleType: models.RuleTypeBlackout})
	assert.ErrorIs(t, err, ErrResourceNotFound)

	require.NoError(t, svc.AddRule(ctx, &models.ResourceScheduleRule{ResourceID: room.ID, RuleType: models.RuleTypeBlackout, IsActive: true}))
	free, err := svc.IsTimeSlotAvailable(ctx, room.ID, at(monday, 9, 0), at(monday, 10, 0), nil)
	require.NoError(t, err)
	assert.False(t, free)
}

func TestGetResourceAvailabilityAndUtilization(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)
	tuesday := monday.AddDate(0, 0, 1)
	repo.addBooking(room, at(monday, 9, 0), at(monday, 11, 0), models.BookingStatusConfirmed)
	repo.addBooking(room, at(monday, 13, 0), at(monday, 14, 0), models.BookingStatusPending)
	repo.addBooking(room, at(tuesday, 9, 0), at(tuesday, 10, 0), models.BookingStatusCompleted)
	repo.addRule(models.ResourceScheduleRule{ResourceID: room.ID, RuleType: models.RuleTypeAvailability, DaysOfWeek: []int{0}})
	repo.addRule(models.ResourceScheduleRule{
		ResourceID: room.ID,
		RuleType:   models.RuleTypeCapacityOverride,
		DaysOfWeek: []int{0},
		RuleConfig: map[string]any{"capacity_hours": 4.0},
	})

	days, err := svc.GetResourceAvailability(ctx, room.ID, monday, tuesday)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2026-03-09", days[0].Date)
	assert.True(t, days[0].IsAvailable)
	assert.Equal(t, 1, days[0].BookingCount)
	assert.Equal(t, 2.0, days[0].TotalHours)
	assert.Equal(t, 4.0, days[0].MaxCapacity)
	assert.Equal(t, 50.0, days[0].UtilizationPercent)

	assert.Equal(t, "2026-03-10", days[1].Date)
	assert.False(t, days[1].IsAvailable)
	assert.Equal(t, 1, days[1].BookingCount)
	assert.Equal(t, DefaultDailyCapacityHours, days[1].MaxCapacity)
	assert.Equal(t, 12.5, days[1].UtilizationPercent)

	stats, err := svc.GetResourceUtilizationStats(ctx, room.ID, monday, tuesday)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalBookings)
	assert.Equal(t, 1, stats.CompletedBookings)
	assert.Equal(t, 50.0, stats.CompletionRate)
	assert.Equal(t, 3.0, stats.TotalBookedHours)
	assert.Equal(t, 1.5, stats.AverageBookingDuration)
	assert.Equal(t, 16.0, stats.TheoreticalMaxHours)
	assert.Equal(t, 18.8, stats.UtilizationRate)
}

func TestGetUpcomingBookingsAndSchedule(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Room", 1)
	ada := repo.addProfile("Ada", "Lovelace")
	soon := repo.addBooking(room, at(monday, 9, 0), at(monday, 11, 0), models.BookingStatusConfirmed)
	repo.bookings[soon.ID].RequestedByID = &ada.ID
	repo.addBooking(room, at(monday, 13, 0), at(monday, 14, 0), models.BookingStatusPending)
	repo.addBooking(room, at(monday.AddDate(0, 0, 10), 9, 0), at(monday.AddDate(0, 0, 10), 10, 0), models.BookingStatusConfirmed)

	upcoming, err := svc.GetUpcomingBookings(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, soon.ID, upcoming[0].ID)

	schedule, err := svc.GetResourceSchedule(ctx, room.ID, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	require.NotNil(t, schedule[0].RequestedBy)
	assert.Equal(t, "Ada Lovelace", *schedule[0].RequestedBy)
	assert.Nil(t, schedule[0].CompletedBy)
}

func TestCreateBookingRequest(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, WithNotifier(notifier))
	room := repo.addResource(1, "Ops", 1)

	_, err := svc.CreateBookingRequest(ctx, CreateBookingRequestInput{OrganizationID: 1, ResourceName: "Nope"})
	assert.ErrorIs(t, err, ErrResourceNotFound)

	in := CreateBookingRequestInput{
		OrganizationID:   1,
		ResourceName:     "Ops",
		Title:            "Deploy",
		Start:            at(monday, 9, 0),
		End:              at(monday, 11, 0),
		SourceService:    models.SourceServiceCFlows,
		SourceObjectType: models.SourceObjectWorkItem,
		SourceObjectID:   "12",
		CustomData:       map[string]any{"work_item_id": 12},
	}
	b, err := svc.CreateBookingRequest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, []events.BookingEvent{events.BookingConfirmed}, notifier.events)

	// The slot is now full: the request is still recorded, but stays pending.
	in.SourceObjectID = "13"
	second, err := svc.CreateBookingRequest(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, second.Status)
	assert.Len(t, repo.bookings, 2)

	found, err := svc.GetBookingBySource(ctx, 1, models.SourceServiceCFlows, models.SourceObjectWorkItem, "13")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
	assert.Equal(t, room.ID, found.ResourceID)
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	room := repo.addResource(1, "Ops", 1)
	b := repo.addBooking(room, at(monday, 9, 0), at(monday, 10, 0), models.BookingStatusConfirmed)
	repo.bookings[b.ID].SourceService = models.SourceServiceCFlows
	repo.bookings[b.ID].SourceObjectType = models.SourceObjectTeamBooking
	repo.bookings[b.ID].SourceObjectID = "7"

	got, err := svc.UpdateBookingStatus(ctx, 1, models.SourceServiceCFlows, models.SourceObjectTeamBooking, "7", models.BookingStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, testNow, *got.CompletedAt)

	_, err = svc.UpdateBookingStatus(ctx, 1, models.SourceServiceCFlows, models.SourceObjectTeamBooking, "8", models.BookingStatusCompleted)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = svc.UpdateBookingStatus(ctx, 1, models.SourceServiceCFlows, models.SourceObjectTeamBooking, "7", "archived")
	assert.Error(t, err)
}

func TestHandleTeamBookingCompleted(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)
	bus := events.NewBus()
	svc.RegisterHandlers(bus)
	room := repo.addResource(1, "Ops", 1)
	b := repo.addBooking(room, at(monday, 9, 0), at(monday, 10, 0), models.BookingStatusPending)
	repo.bookings[b.ID].SourceService = models.SourceServiceCFlows
	repo.bookings[b.ID].SourceObjectType = "team_booking"
	repo.bookings[b.ID].SourceObjectID = "7"
	worker := repo.addProfile("Ada", "Lovelace")

	err := bus.PublishTeamBooking(ctx, events.TeamBookingNotification{
		Event:         events.TeamBookingCompleted,
		TeamBooking:   &models.TeamBooking{ID: 7, OrganizationID: 1},
		CompletedByID: &worker.ID,
	})
	require.NoError(t, err)

	stored, err := svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, stored.Status)
	assert.Equal(t, &worker.ID, stored.CompletedByID)

	// Repeated and unknown completions are no-ops.
	require.NoError(t, bus.PublishTeamBooking(ctx, events.TeamBookingNotification{
		Event:       events.TeamBookingCompleted,
		TeamBooking: &models.TeamBooking{ID: 7, OrganizationID: 1},
	}))
	require.NoError(t, bus.PublishTeamBooking(ctx, events.TeamBookingNotification{
		Event:       events.TeamBookingCompleted,
		TeamBooking: &models.TeamBooking{ID: 99, OrganizationID: 1},
	}))
}

func TestDeleteMirroredBooking(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, WithNotifier(notifier))
	room := repo.addResource(1, "Ops", 1)
	b := repo.addBooking(room, at(monday, 9, 0), at(monday, 10, 0), models.BookingStatusConfirmed)

	require.NoError(t, svc.DeleteMirroredBooking(ctx, b.ID))
	_, err := svc.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Empty(t, notifier.events)

	assert.ErrorIs(t, svc.DeleteMirroredBooking(ctx, b.ID), ErrBookingNotFound)
}

func TestRulePrimitives(t *testing.T) {
	clocks := []struct {
		in   string
		want int
		ok   bool
	}{
		{in: "08:00", want: 8 * 3600, ok: true},
		{in: "13:30:15", want: 13*3600 + 30*60 + 15, ok: true},
		{in: " 09:05 ", want: 9*3600 + 5*60, ok: true},
		{in: "noon"},
	}
	for _, c := range clocks {
		got, ok := parseClock(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	assert.Equal(t, 0, Weekday(monday))
	assert.Equal(t, 6, Weekday(monday.AddDate(0, 0, 6)))

	half := models.ResourceScheduleRule{RuleType: models.RuleTypeBlackout, StartTime: strPtr("09:00")}
	assert.False(t, ruleMatchesWindow(&half, at(monday, 9, 0), at(monday, 10, 0)))
}
