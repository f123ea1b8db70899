package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/ManuelReschke/MetaTask/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrBookingNotFound  = fmt.Errorf("booking not found: %w", gorm.ErrRecordNotFound)
	ErrResourceNotFound = fmt.Errorf("resource not found: %w", gorm.ErrRecordNotFound)
	ErrTeamNotFound     = fmt.Errorf("team not found: %w", gorm.ErrRecordNotFound)
)

// Rejection reasons returned by lifecycle operations.
const (
	ReasonSlotUnavailable  = "Time slot is not available"
	ReasonInvalidInterval  = "End time must be after start time"
	ReasonNotPending       = "Only pending bookings can be confirmed"
	ReasonNotConfirmed     = "Only confirmed bookings can be started"
	ReasonCannotComplete   = "Booking cannot be completed in its current status"
	ReasonAlreadyFinalized = "Booking is already completed or cancelled"
)

// ValidationError is returned by CreateBooking when the request cannot be
// booked as asked.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Notifier receives booking lifecycle notifications after commit.
type Notifier interface {
	PublishBooking(ctx context.Context, n events.BookingNotification) error
}

// Service implements the booking lifecycle, the rule engine queries and
// resource management.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets where lifecycle notifications are published.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a scheduling service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a scheduling service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// GetResource loads a resource by id.
func (s *Service) GetResource(ctx context.Context, id uint) (*models.SchedulableResource, error) {
	r, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, ErrResourceNotFound)
	}
	return r, nil
}

// GetBooking loads a booking by id.
func (s *Service) GetBooking(ctx context.Context, id uint) (*models.BookingRequest, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, ErrBookingNotFound)
	}
	return b, nil
}

// IsTimeSlotAvailable reports whether [start, end) can be booked on the
// resource. excludeID leaves one booking out of the conflict count.
func (s *Service) IsTimeSlotAvailable(ctx context.Context, resourceID uint, start, end time.Time, excludeID *uint) (bool, error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return slotAvailable(ctx, s.repo, resource, start, end, excludeID)
}

// slotAvailable runs the capacity, working window and blackout checks in
// that order.
func slotAvailable(ctx context.Context, repo Repository, resource *models.SchedulableResource, start, end time.Time, excludeID *uint) (bool, error) {
	if !end.After(start) {
		return false, nil
	}
	conflicts, err := repo.CountBookings(ctx, BookingFilter{
		ResourceID:   &resource.ID,
		Statuses:     models.BlockingBookingStatuses,
		OverlapStart: &start,
		OverlapEnd:   &end,
		ExcludeID:    excludeID,
	})
	if err != nil {
		return false, fmt.Errorf("count conflicts: %w", err)
	}
	if conflicts >= int64(resource.MaxConcurrentBookings) {
		return false, nil
	}
	if !withinWorkingWindow(resource.AvailabilityRules, start, end) {
		return false, nil
	}
	blackouts, err := repo.ListActiveRules(ctx, resource.ID, models.RuleTypeBlackout)
	if err != nil {
		return false, fmt.Errorf("load blackout rules: %w", err)
	}
	return !anyRuleMatches(blackouts, start, end), nil
}

// CanAutoConfirm decides whether a booking skips manual approval.
// A matching auto_approval rule wins outright; otherwise the slot must be
// free and no require_approval rule may match.
func (s *Service) CanAutoConfirm(ctx context.Context, booking *models.BookingRequest) (bool, error) {
	resource, err := s.GetResource(ctx, booking.ResourceID)
	if err != nil {
		return false, err
	}
	return canAutoConfirm(ctx, s.repo, resource, booking)
}

func canAutoConfirm(ctx context.Context, repo Repository, resource *models.SchedulableResource, b *models.BookingRequest) (bool, error) {
	auto, err := repo.ListActiveRules(ctx, resource.ID, models.RuleTypeAutoApproval)
	if err != nil {
		return false, err
	}
	if anyRuleMatches(auto, b.RequestedStart, b.RequestedEnd) {
		return true, nil
	}

	var exclude *uint
	if b.ID != 0 {
		exclude = &b.ID
	}
	free, err := slotAvailable(ctx, repo, resource, b.RequestedStart, b.RequestedEnd, exclude)
	if err != nil || !free {
		return false, err
	}
	required, err := repo.ListActiveRules(ctx, resource.ID, models.RuleTypeRequireApproval)
	if err != nil {
		return false, err
	}
	return !anyRuleMatches(required, b.RequestedStart, b.RequestedEnd), nil
}

// notify publishes a committed transition. Subscriber failures are logged
// and counted, never returned.
func (s *Service) notify(ctx context.Context, b *models.BookingRequest, event events.BookingEvent) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.PublishBooking(ctx, events.BookingNotification{
		Event:      event,
		Booking:    b,
		OccurredAt: s.now(),
	})
	if err != nil {
		metrics.BookingNotificationFailures.WithLabelValues(b.SourceService).Inc()
		log.Warnf("[Scheduling] Notification %s for booking %s (source %s) failed: %v", event, b.UUID, b.SourceService, err)
	}
}

func observe(event events.BookingEvent, ok bool, err error) {
	metrics.BookingTransitions.WithLabelValues(string(event), metrics.ResultLabel(ok, err)).Inc()
}
