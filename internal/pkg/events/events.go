package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
)

// BookingEvent is a lifecycle transition of a BookingRequest.
type BookingEvent string

const (
	BookingConfirmed   BookingEvent = "confirmed"
	BookingStarted     BookingEvent = "started"
	BookingCompleted   BookingEvent = "completed"
	BookingCancelled   BookingEvent = "cancelled"
	BookingRescheduled BookingEvent = "rescheduled"
)

// TeamBookingEvent is raised by the workflow side about its own records.
type TeamBookingEvent string

const TeamBookingCompleted TeamBookingEvent = "team_booking_completed"

// BookingNotification is delivered to booking subscribers after the
// transition has been persisted.
type BookingNotification struct {
	Event      BookingEvent
	Booking    *models.BookingRequest
	OccurredAt time.Time
}

type TeamBookingNotification struct {
	Event         TeamBookingEvent
	TeamBooking   *models.TeamBooking
	CompletedByID *uint
	OccurredAt    time.Time
}

type BookingHandler func(ctx context.Context, n BookingNotification) error

type TeamBookingHandler func(ctx context.Context, n TeamBookingNotification) error

// Bus dispatches notifications synchronously and in-process. Handlers for
// booking events are keyed by the booking's source service; handlers
// registered with SubscribeAllBookings see every booking.
type Bus struct {
	mu          sync.RWMutex
	bySource    map[string][]BookingHandler
	allBookings []BookingHandler
	team        []TeamBookingHandler
}

func NewBus() *Bus {
	return &Bus{bySource: make(map[string][]BookingHandler)}
}

// SubscribeBooking registers h for bookings raised by sourceService.
func (b *Bus) SubscribeBooking(sourceService string, h BookingHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySource[sourceService] = append(b.bySource[sourceService], h)
}

// SubscribeAllBookings registers h for every booking notification.
func (b *Bus) SubscribeAllBookings(h BookingHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allBookings = append(b.allBookings, h)
}

func (b *Bus) SubscribeTeamBooking(h TeamBookingHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.team = append(b.team, h)
}

// PublishBooking runs every matching handler. All handlers run even when
// one fails; the joined error is returned for the caller to log.
func (b *Bus) PublishBooking(ctx context.Context, n BookingNotification) error {
	if n.Booking == nil {
		return errors.New("booking notification without booking")
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]BookingHandler, 0, len(b.allBookings)+len(b.bySource[n.Booking.SourceService]))
	handlers = append(handlers, b.bySource[n.Booking.SourceService]...)
	handlers = append(handlers, b.allBookings...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := callBooking(ctx, h, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) PublishTeamBooking(ctx context.Context, n TeamBookingNotification) error {
	if n.TeamBooking == nil {
		return errors.New("team booking notification without team booking")
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := append([]TeamBookingHandler(nil), b.team...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := callTeamBooking(ctx, h, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func callBooking(ctx context.Context, h BookingHandler, n BookingNotification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("booking handler panic on %s: %v", n.Event, r)
		}
	}()
	return h(ctx, n)
}

func callTeamBooking(ctx context.Context, h TeamBookingHandler, n TeamBookingNotification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("team booking handler panic on %s: %v", n.Event, r)
		}
	}()
	return h(ctx, n)
}
