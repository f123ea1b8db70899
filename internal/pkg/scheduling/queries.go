package scheduling

import (
	"context"
	"math"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
)

// GetUpcomingBookings returns confirmed and running bookings of the
// organization that start within the next days.
func (s *Service) GetUpcomingBookings(ctx context.Context, organizationID uint, days int) ([]models.BookingRequest, error) {
	if days <= 0 {
		days = 7
	}
	from := s.now()
	until := from.AddDate(0, 0, days)
	return s.repo.ListBookings(ctx, BookingFilter{
		OrganizationID: &organizationID,
		Statuses:       models.BlockingBookingStatuses,
		StartFrom:      &from,
		StartUntil:     &until,
	})
}

// ScheduleItem is one row of a resource schedule.
type ScheduleItem struct {
	ID            uint           `json:"id"`
	UUID          string         `json:"uuid"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	ActualStart   *time.Time     `json:"actual_start"`
	ActualEnd     *time.Time     `json:"actual_end"`
	Status        string         `json:"status"`
	Priority      string         `json:"priority"`
	SourceService string         `json:"source_service"`
	RequestedBy   *string        `json:"requested_by"`
	CompletedBy   *string        `json:"completed_by"`
	CustomData    map[string]any `json:"custom_data"`
}

func profileName(p *models.UserProfile) *string {
	if p == nil {
		return nil
	}
	name := p.DisplayName()
	return &name
}

// GetResourceSchedule lists the bookings of a resource that intersect
// [from, to), ordered by start.
func (s *Service) GetResourceSchedule(ctx context.Context, resourceID uint, from, to time.Time) ([]ScheduleItem, error) {
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListBookings(ctx, BookingFilter{
		ResourceID:   &resourceID,
		Statuses:     models.ScheduledBookingStatuses,
		OverlapStart: &from,
		OverlapEnd:   &to,
	})
	if err != nil {
		return nil, err
	}
	items := make([]ScheduleItem, 0, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		items = append(items, ScheduleItem{
			ID:            b.ID,
			UUID:          b.UUID,
			Title:         b.Title,
			Description:   b.Description,
			Start:         b.RequestedStart,
			End:           b.RequestedEnd,
			ActualStart:   b.ActualStart,
			ActualEnd:     b.ActualEnd,
			Status:        b.Status,
			Priority:      b.Priority,
			SourceService: b.SourceService,
			RequestedBy:   profileName(b.RequestedBy),
			CompletedBy:   profileName(b.CompletedBy),
			CustomData:    b.CustomData,
		})
	}
	return items, nil
}

// DayBooking is the compact booking view inside DayAvailability.
type DayBooking struct {
	ID             uint      `json:"id"`
	UUID           string    `json:"uuid"`
	Title          string    `json:"title"`
	RequestedStart time.Time `json:"requested_start"`
	RequestedEnd   time.Time `json:"requested_end"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
}

// DayAvailability summarizes one calendar day of a resource.
type DayAvailability struct {
	Date               string       `json:"date"`
	IsAvailable        bool         `json:"is_available"`
	BookingCount       int          `json:"booking_count"`
	TotalHours         float64      `json:"total_hours"`
	MaxCapacity        float64      `json:"max_capacity"`
	UtilizationPercent float64      `json:"utilization_percent"`
	Bookings           []DayBooking `json:"bookings"`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// bookingsInDateRange returns scheduled bookings starting on or after
// fromDate and ending on or before toDate, compared by calendar date.
func (s *Service) bookingsInDateRange(ctx context.Context, resourceID uint, fromDate, toDate time.Time) ([]models.BookingRequest, error) {
	from := models.DateOf(fromDate)
	until := models.DateOf(toDate).AddDate(0, 0, 1).Add(-time.Nanosecond)
	bookings, err := s.repo.ListBookings(ctx, BookingFilter{
		ResourceID: &resourceID,
		Statuses:   models.ScheduledBookingStatuses,
		StartFrom:  &from,
		StartUntil: &until,
	})
	if err != nil {
		return nil, err
	}
	last := civilDate(toDate)
	out := bookings[:0]
	for _, b := range bookings {
		if civilDate(b.RequestedEnd) <= last {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetResourceAvailability returns per-day figures for every date in
// [fromDate, toDate].
func (s *Service) GetResourceAvailability(ctx context.Context, resourceID uint, fromDate, toDate time.Time) ([]DayAvailability, error) {
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	bookings, err := s.bookingsInDateRange(ctx, resourceID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	availability, err := s.repo.ListActiveRules(ctx, resourceID, models.RuleTypeAvailability)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListActiveRules(ctx, resourceID, models.RuleTypeCapacityOverride)
	if err != nil {
		return nil, err
	}

	days := []DayAvailability{}
	for day := models.DateOf(fromDate); civilDate(day) <= civilDate(toDate); day = day.AddDate(0, 0, 1) {
		stats := DayAvailability{
			Date:        day.Format("2006-01-02"),
			IsAvailable: dateAvailable(availability, day),
			MaxCapacity: dailyCapacity(overrides, day),
			Bookings:    []DayBooking{},
		}
		var hours float64
		for i := range bookings {
			b := &bookings[i]
			if civilDate(b.RequestedStart) != civilDate(day) {
				continue
			}
			hours += b.Duration().Hours()
			stats.BookingCount++
			stats.Bookings = append(stats.Bookings, DayBooking{
				ID:             b.ID,
				UUID:           b.UUID,
				Title:          b.Title,
				RequestedStart: b.RequestedStart,
				RequestedEnd:   b.RequestedEnd,
				Status:         b.Status,
				Priority:       b.Priority,
			})
		}
		stats.TotalHours = round(hours, 2)
		if stats.MaxCapacity > 0 {
			stats.UtilizationPercent = round(hours/stats.MaxCapacity*100, 1)
		}
		days = append(days, stats)
	}
	return days, nil
}

// UtilizationStats summarizes a resource over a date range. The
// theoretical maximum assumes eight bookable hours per day per slot.
type UtilizationStats struct {
	TotalBookings          int     `json:"total_bookings"`
	CompletedBookings      int     `json:"completed_bookings"`
	CompletionRate         float64 `json:"completion_rate"`
	TotalBookedHours       float64 `json:"total_booked_hours"`
	AverageBookingDuration float64 `json:"average_booking_duration"`
	TheoreticalMaxHours    float64 `json:"theoretical_max_hours"`
	UtilizationRate        float64 `json:"utilization_rate"`
}

// GetResourceUtilizationStats computes UtilizationStats for
// [fromDate, toDate].
func (s *Service) GetResourceUtilizationStats(ctx context.Context, resourceID uint, fromDate, toDate time.Time) (*UtilizationStats, error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookingsInDateRange(ctx, resourceID, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	stats := &UtilizationStats{TotalBookings: len(bookings)}
	var hours float64
	for i := range bookings {
		hours += bookings[i].Duration().Hours()
		if bookings[i].Status == models.BookingStatusCompleted {
			stats.CompletedBookings++
		}
	}
	days := 0
	for day := models.DateOf(fromDate); civilDate(day) <= civilDate(toDate); day = day.AddDate(0, 0, 1) {
		days++
	}
	stats.TotalBookedHours = round(hours, 2)
	stats.TheoreticalMaxHours = float64(days) * DefaultDailyCapacityHours * float64(resource.MaxConcurrentBookings)
	if stats.TotalBookings > 0 {
		stats.CompletionRate = round(float64(stats.CompletedBookings)/float64(stats.TotalBookings)*100, 1)
		stats.AverageBookingDuration = round(hours/float64(stats.TotalBookings), 2)
	}
	if stats.TheoreticalMaxHours > 0 {
		stats.UtilizationRate = round(hours/stats.TheoreticalMaxHours*100, 1)
	}
	return stats, nil
}
