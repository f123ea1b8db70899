package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/gofiber/fiber/v2/log"
)

// Custom data keys written by lifecycle operations.
const (
	CustomDataCancellationReason = "cancellation_reason"
	CustomDataOldStart           = "old_start"
	CustomDataOldEnd             = "old_end"
	CustomDataRescheduledAt      = "rescheduled_at"
	CustomDataRescheduledBy      = "rescheduled_by"
	CustomDataCompletionNotes    = "completion_notes"
	CustomDataCompletedAt        = "completed_at"
)

// CreateBookingInput describes a booking request from a user-facing form.
// Empty optional fields take the usual defaults.
type CreateBookingInput struct {
	OrganizationID   uint
	ResourceID       uint
	Start            time.Time
	End              time.Time
	Title            string
	Description      string
	Priority         string
	RequiredCapacity int
	RequestedByID    *uint
	SourceService    string
	SourceObjectType string
	SourceObjectID   string
	CustomData       map[string]any
}

// CreateBooking books the slot or returns a *ValidationError. The booking
// starts confirmed when CanAutoConfirm allows it, pending otherwise.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.BookingRequest, error) {
	if !in.End.After(in.Start) {
		return nil, &ValidationError{Reason: ReasonInvalidInterval}
	}

	var booking *models.BookingRequest
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		resource, err := repo.LockResource(ctx, in.ResourceID)
		if err != nil {
			return wrapNotFound(err, ErrResourceNotFound)
		}
		if resource.OrganizationID != in.OrganizationID {
			return ErrResourceNotFound
		}

		free, err := slotAvailable(ctx, repo, resource, in.Start, in.End, nil)
		if err != nil {
			return err
		}
		if !free {
			return &ValidationError{Reason: ReasonSlotUnavailable}
		}

		b := newBooking(in, resource)
		if err := b.Validate(); err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		auto, err := canAutoConfirm(ctx, repo, resource, b)
		if err != nil {
			return err
		}
		if auto {
			b.Status = models.BookingStatusConfirmed
		}
		if err := repo.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		b.Resource = resource
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Scheduling] Booking %s created on resource %d as %s", booking.UUID, booking.ResourceID, booking.Status)
	return booking, nil
}

func newBooking(in CreateBookingInput, resource *models.SchedulableResource) *models.BookingRequest {
	b := &models.BookingRequest{
		OrganizationID:   in.OrganizationID,
		ResourceID:       resource.ID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		RequestedStart:   in.Start,
		RequestedEnd:     in.End,
		RequiredCapacity: in.RequiredCapacity,
		Status:           models.BookingStatusPending,
		Priority:         in.Priority,
		SourceService:    in.SourceService,
		SourceObjectType: in.SourceObjectType,
		SourceObjectID:   in.SourceObjectID,
		RequestedByID:    in.RequestedByID,
		CustomData:       in.CustomData,
	}
	if b.Title == "" {
		b.Title = fmt.Sprintf("Booking for %s", resource.Name)
	}
	if b.Priority == "" {
		b.Priority = models.PriorityNormal
	}
	if b.RequiredCapacity <= 0 {
		b.RequiredCapacity = 1
	}
	if b.SourceService == "" {
		b.SourceService = models.SourceServiceScheduling
	}
	if b.SourceObjectType == "" {
		b.SourceObjectType = models.SourceObjectBooking
	}
	b.EnsureUUID()
	return b
}

// mutation inspects or changes a booking under the resource lock. A
// non-empty reason refuses the transition and nothing is saved.
type mutation func(repo Repository, b *models.BookingRequest, resource *models.SchedulableResource) (reason string, err error)

// transition runs fn in a transaction with the booking's resource row
// locked, persists an accepted change and publishes event after commit.
func (s *Service) transition(ctx context.Context, bookingID uint, event events.BookingEvent, fn mutation) (*models.BookingRequest, string, error) {
	var (
		booking *models.BookingRequest
		reason  string
	)
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		b, err := repo.GetBooking(ctx, bookingID)
		if err != nil {
			return wrapNotFound(err, ErrBookingNotFound)
		}
		resource, err := repo.LockResource(ctx, b.ResourceID)
		if err != nil {
			return wrapNotFound(err, ErrResourceNotFound)
		}
		why, err := fn(repo, b, resource)
		if err != nil {
			return err
		}
		booking = b
		if why != "" {
			reason = why
			return nil
		}
		if err := repo.SaveBooking(ctx, b); err != nil {
			return fmt.Errorf("save booking: %w", err)
		}
		return nil
	})

	observe(event, err == nil && reason == "", err)
	if err != nil {
		return nil, "", err
	}
	if reason != "" {
		return booking, reason, nil
	}
	s.notify(ctx, booking, event)
	return booking, "", nil
}

// ConfirmBooking moves a pending booking to confirmed after checking the
// slot again.
func (s *Service) ConfirmBooking(ctx context.Context, bookingID uint) (*models.BookingRequest, string, error) {
	return s.transition(ctx, bookingID, events.BookingConfirmed, func(repo Repository, b *models.BookingRequest, resource *models.SchedulableResource) (string, error) {
		if b.Status != models.BookingStatusPending {
			return ReasonNotPending, nil
		}
		free, err := slotAvailable(ctx, repo, resource, b.RequestedStart, b.RequestedEnd, &b.ID)
		if err != nil {
			return "", err
		}
		if !free {
			return ReasonSlotUnavailable, nil
		}
		b.Status = models.BookingStatusConfirmed
		return "", nil
	})
}

// StartBooking moves a confirmed or rescheduled booking to in_progress.
func (s *Service) StartBooking(ctx context.Context, bookingID uint) (*models.BookingRequest, string, error) {
	return s.transition(ctx, bookingID, events.BookingStarted, func(_ Repository, b *models.BookingRequest, _ *models.SchedulableResource) (string, error) {
		if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusRescheduled {
			return ReasonNotConfirmed, nil
		}
		now := s.now()
		b.Status = models.BookingStatusInProgress
		b.ActualStart = &now
		return "", nil
	})
}

// CompleteBooking finishes a booking. Pending bookings may only be
// completed when they belong to a work item.
func (s *Service) CompleteBooking(ctx context.Context, bookingID uint, completedByID *uint) (*models.BookingRequest, string, error) {
	return s.CompleteBookingWithNotes(ctx, bookingID, completedByID, "")
}

// CompleteBookingWithNotes is CompleteBooking that also keeps non-empty
// notes and the completion time in custom data.
func (s *Service) CompleteBookingWithNotes(ctx context.Context, bookingID uint, completedByID *uint, notes string) (*models.BookingRequest, string, error) {
	return s.transition(ctx, bookingID, events.BookingCompleted, func(_ Repository, b *models.BookingRequest, _ *models.SchedulableResource) (string, error) {
		switch b.Status {
		case models.BookingStatusConfirmed, models.BookingStatusInProgress, models.BookingStatusRescheduled:
		case models.BookingStatusPending:
			if !b.IsWorkItemBooking() {
				return ReasonCannotComplete, nil
			}
		default:
			return ReasonCannotComplete, nil
		}
		now := s.now()
		b.Status = models.BookingStatusCompleted
		b.CompletedAt = &now
		b.CompletedByID = completedByID
		b.ActualEnd = &now
		if b.ActualStart == nil {
			start := b.RequestedStart
			b.ActualStart = &start
		}
		if notes = strings.TrimSpace(notes); notes != "" {
			if b.CustomData == nil {
				b.CustomData = map[string]any{}
			}
			b.CustomData[CustomDataCompletionNotes] = notes
			b.CustomData[CustomDataCompletedAt] = now.Format(time.RFC3339)
		}
		return "", nil
	})
}

// CancelBooking cancels any booking that is not finalized. A non-empty
// reason is kept in custom data.
func (s *Service) CancelBooking(ctx context.Context, bookingID uint, reason string) (*models.BookingRequest, string, error) {
	return s.transition(ctx, bookingID, events.BookingCancelled, func(_ Repository, b *models.BookingRequest, _ *models.SchedulableResource) (string, error) {
		if b.IsTerminal() {
			return ReasonAlreadyFinalized, nil
		}
		b.Status = models.BookingStatusCancelled
		if reason != "" {
			b.SetCustomData(CustomDataCancellationReason, reason)
		}
		return "", nil
	})
}

// RescheduleBooking moves a booking to a new window. The previous window
// is archived in custom data. A refused reschedule changes nothing.
func (s *Service) RescheduleBooking(ctx context.Context, bookingID uint, newStart, newEnd time.Time, rescheduledByID *uint) (*models.BookingRequest, string, error) {
	return s.transition(ctx, bookingID, events.BookingRescheduled, func(repo Repository, b *models.BookingRequest, resource *models.SchedulableResource) (string, error) {
		if b.IsTerminal() {
			return ReasonAlreadyFinalized, nil
		}
		free, err := slotAvailable(ctx, repo, resource, newStart, newEnd, &b.ID)
		if err != nil {
			return "", err
		}
		if !free {
			return ReasonSlotUnavailable, nil
		}

		var by any
		if rescheduledByID != nil {
			profile, err := repo.GetProfile(ctx, *rescheduledByID)
			if err != nil && !isNotFound(err) {
				return "", err
			}
			if profile != nil {
				by = profile.DisplayName()
			}
		}
		b.SetCustomData(CustomDataOldStart, b.RequestedStart.Format(time.RFC3339))
		b.SetCustomData(CustomDataOldEnd, b.RequestedEnd.Format(time.RFC3339))
		b.SetCustomData(CustomDataRescheduledAt, s.now().Format(time.RFC3339))
		b.SetCustomData(CustomDataRescheduledBy, by)

		b.RequestedStart = newStart
		b.RequestedEnd = newEnd
		b.Status = models.BookingStatusRescheduled
		return "", nil
	})
}

// ApproveBooking confirms a pending booking of the organization.
func (s *Service) ApproveBooking(ctx context.Context, organizationID, bookingID uint, approverID *uint) (*models.BookingRequest, string, error) {
	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	if b.OrganizationID != organizationID || b.Status != models.BookingStatusPending {
		return nil, "", ErrBookingNotFound
	}
	booking, reason, err := s.ConfirmBooking(ctx, bookingID)
	if err == nil && reason == "" && approverID != nil {
		log.Infof("[Scheduling] Booking %s approved by profile %d", booking.UUID, *approverID)
	}
	return booking, reason, err
}

// CancelBookingByID cancels a booking of the organization.
func (s *Service) CancelBookingByID(ctx context.Context, organizationID, bookingID uint, cancelledByID *uint, reason string) (*models.BookingRequest, string, error) {
	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	if b.OrganizationID != organizationID {
		return nil, "", ErrBookingNotFound
	}
	booking, why, err := s.CancelBooking(ctx, bookingID, reason)
	if err == nil && why == "" && cancelledByID != nil {
		log.Infof("[Scheduling] Booking %s cancelled by profile %d", booking.UUID, *cancelledByID)
	}
	return booking, why, err
}
