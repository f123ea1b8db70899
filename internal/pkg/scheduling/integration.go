package scheduling

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/gofiber/fiber/v2/log"
)

// CreateBookingRequestInput is what another service sends to raise a
// booking against a resource it knows by name.
type CreateBookingRequestInput struct {
	OrganizationID   uint
	ResourceName     string
	Title            string
	Description      string
	Start            time.Time
	End              time.Time
	Priority         string
	SourceService    string
	SourceObjectType string
	SourceObjectID   string
	RequestedByID    *uint
	CustomData       map[string]any
}

// CreateBookingRequest inserts a pending booking without checking the slot
// first. The booking is then confirmed through ConfirmBooking when
// CanAutoConfirm allows it, so capacity is still enforced under the
// resource lock.
func (s *Service) CreateBookingRequest(ctx context.Context, in CreateBookingRequestInput) (*models.BookingRequest, error) {
	resource, err := s.repo.FindResource(ctx, ResourceFilter{
		OrganizationID: in.OrganizationID,
		Name:           in.ResourceName,
		ActiveOnly:     true,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrResourceNotFound, in.ResourceName)
		}
		return nil, err
	}

	b := newBooking(CreateBookingInput{
		OrganizationID:   in.OrganizationID,
		ResourceID:       resource.ID,
		Start:            in.Start,
		End:              in.End,
		Title:            in.Title,
		Description:      in.Description,
		Priority:         in.Priority,
		RequestedByID:    in.RequestedByID,
		SourceService:    in.SourceService,
		SourceObjectType: in.SourceObjectType,
		SourceObjectID:   in.SourceObjectID,
		CustomData:       in.CustomData,
	}, resource)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking request: %w", err)
	}
	b.Resource = resource

	auto, err := canAutoConfirm(ctx, s.repo, resource, b)
	if err != nil {
		return nil, err
	}
	if !auto {
		return b, nil
	}
	confirmed, reason, err := s.ConfirmBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		log.Infof("[Scheduling] Booking %s from %s stays pending: %s", b.UUID, b.SourceService, reason)
		return b, nil
	}
	return confirmed, nil
}

// GetBookingBySource looks a booking up by its provenance triple.
func (s *Service) GetBookingBySource(ctx context.Context, organizationID uint, sourceService, sourceObjectType, sourceObjectID string) (*models.BookingRequest, error) {
	b, err := s.repo.FindBooking(ctx, BookingFilter{
		OrganizationID:    &organizationID,
		SourceService:     sourceService,
		SourceObjectTypes: []string{sourceObjectType},
		SourceObjectID:    sourceObjectID,
	})
	if err != nil {
		return nil, wrapNotFound(err, ErrBookingNotFound)
	}
	return b, nil
}

// UpdateBookingStatus overwrites the status of the booking identified by
// its provenance triple. It bypasses the lifecycle rules and publishes
// nothing; callers are trusted integrations.
func (s *Service) UpdateBookingStatus(ctx context.Context, organizationID uint, sourceService, sourceObjectType, sourceObjectID, status string) (*models.BookingRequest, error) {
	b, err := s.GetBookingBySource(ctx, organizationID, sourceService, sourceObjectType, sourceObjectID)
	if err != nil {
		return nil, err
	}
	if !knownStatus(status) {
		return nil, fmt.Errorf("unknown booking status %q", status)
	}
	b.Status = status
	if status == models.BookingStatusCompleted {
		now := s.now()
		b.CompletedAt = &now
	}
	if err := s.repo.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}
	return b, nil
}

// FindBooking returns the first booking matching filter.
func (s *Service) FindBooking(ctx context.Context, filter BookingFilter) (*models.BookingRequest, error) {
	b, err := s.repo.FindBooking(ctx, filter)
	if err != nil {
		return nil, wrapNotFound(err, ErrBookingNotFound)
	}
	return b, nil
}

// ListBookings returns the bookings matching filter ordered by start.
func (s *Service) ListBookings(ctx context.Context, filter BookingFilter) ([]models.BookingRequest, error) {
	return s.repo.ListBookings(ctx, filter)
}

// SaveMirroredBooking writes a booking that mirrors a record owned by
// another service. A zero ID inserts. No availability check runs and no
// notification is published.
func (s *Service) SaveMirroredBooking(ctx context.Context, b *models.BookingRequest) error {
	b.EnsureUUID()
	if !knownStatus(b.Status) {
		return fmt.Errorf("unknown booking status %q", b.Status)
	}
	if b.ID == 0 {
		if err := s.repo.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("create mirrored booking: %w", err)
		}
		return nil
	}
	if err := s.repo.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("save mirrored booking: %w", err)
	}
	return nil
}

// DeleteMirroredBooking removes a booking whose source record was deleted
// in its owning service. Nothing is published.
func (s *Service) DeleteMirroredBooking(ctx context.Context, bookingID uint) error {
	if err := s.repo.DeleteBooking(ctx, bookingID); err != nil {
		return wrapNotFound(err, ErrBookingNotFound)
	}
	log.Infof("[Scheduling] Mirrored booking %d deleted", bookingID)
	return nil
}

func knownStatus(status string) bool {
	switch status {
	case models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusInProgress,
		models.BookingStatusCompleted, models.BookingStatusCancelled, models.BookingStatusRescheduled:
		return true
	}
	return false
}

// HandleTeamBookingCompleted mirrors a workflow-side completion onto the
// booking that tracks the team booking. Missing or already completed
// bookings are left alone.
func (s *Service) HandleTeamBookingCompleted(ctx context.Context, n events.TeamBookingNotification) error {
	if n.Event != events.TeamBookingCompleted {
		return nil
	}
	tb := n.TeamBooking
	b, err := s.repo.FindBooking(ctx, BookingFilter{
		OrganizationID:    &tb.OrganizationID,
		SourceService:     models.SourceServiceCFlows,
		SourceObjectTypes: models.TeamBookingSourceTypes,
		SourceObjectID:    strconv.FormatUint(uint64(tb.ID), 10),
	})
	if err != nil {
		if isNotFound(err) {
			log.Infof("[Scheduling] No booking tracks team booking %d", tb.ID)
			return nil
		}
		return err
	}
	if b.Status == models.BookingStatusCompleted {
		return nil
	}
	_, reason, err := s.CompleteBooking(ctx, b.ID, n.CompletedByID)
	if err != nil {
		return err
	}
	if reason != "" {
		log.Warnf("[Scheduling] Booking %s not completed from team booking %d: %s", b.UUID, tb.ID, reason)
	}
	return nil
}

// RegisterHandlers subscribes the scheduling side of the workflow sync to
// bus.
func (s *Service) RegisterHandlers(bus *events.Bus) {
	bus.SubscribeTeamBooking(s.HandleTeamBookingCompleted)
}
