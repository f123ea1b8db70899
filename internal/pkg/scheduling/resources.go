package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// DefaultAvailabilityCheckDuration is used by GetAvailableResources when
// no duration is given.
const DefaultAvailabilityCheckDuration = time.Hour

// CreateResourceInput describes a new resource. Capacity defaults to 1
// and a nil AvailabilityRules to 08-18 Monday to Friday.
type CreateResourceInput struct {
	OrganizationID    uint
	Name              string
	ResourceType      string
	Description       string
	Capacity          int
	BookingDuration   time.Duration
	AvailabilityRules *models.AvailabilityRules
}

func (s *Service) CreateResource(ctx context.Context, in CreateResourceInput) (*models.SchedulableResource, error) {
	resource := &models.SchedulableResource{
		OrganizationID:         in.OrganizationID,
		Name:                   in.Name,
		ResourceType:           in.ResourceType,
		Description:            in.Description,
		MaxConcurrentBookings:  in.Capacity,
		DefaultBookingDuration: in.BookingDuration,
		ServiceType:            models.DefaultResourceServiceType,
		IsActive:               true,
	}
	if resource.MaxConcurrentBookings <= 0 {
		resource.MaxConcurrentBookings = models.DefaultMaxConcurrentBookings
	}
	if resource.DefaultBookingDuration <= 0 {
		resource.DefaultBookingDuration = models.DefaultBookingDuration
	}
	if in.AvailabilityRules != nil {
		resource.AvailabilityRules = *in.AvailabilityRules
	} else {
		resource.AvailabilityRules = models.DefaultAvailabilityRules()
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateResource(ctx, resource); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return resource, nil
}

// ResourceUpdate carries the fields UpdateResource may change. Nil
// fields are left alone.
type ResourceUpdate struct {
	Name                  *string
	Description           *string
	MaxConcurrentBookings *int
	AvailabilityRules     *models.AvailabilityRules
	IsActive              *bool
}

func (s *Service) UpdateResource(ctx context.Context, organizationID, resourceID uint, upd ResourceUpdate) (*models.SchedulableResource, error) {
	resource, err := s.organizationResource(ctx, organizationID, resourceID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		resource.Name = *upd.Name
	}
	if upd.Description != nil {
		resource.Description = *upd.Description
	}
	if upd.MaxConcurrentBookings != nil {
		resource.MaxConcurrentBookings = *upd.MaxConcurrentBookings
	}
	if upd.AvailabilityRules != nil {
		resource.AvailabilityRules = *upd.AvailabilityRules
	}
	if upd.IsActive != nil {
		resource.IsActive = *upd.IsActive
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.SaveResource(ctx, resource); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}
	return resource, nil
}

func (s *Service) organizationResource(ctx context.Context, organizationID, resourceID uint) (*models.SchedulableResource, error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.OrganizationID != organizationID {
		return nil, ErrResourceNotFound
	}
	return resource, nil
}

// DeactivateResource switches a resource off unless pending or confirmed
// bookings still lie ahead of it.
func (s *Service) DeactivateResource(ctx context.Context, organizationID, resourceID uint) (bool, error) {
	resource, err := s.organizationResource(ctx, organizationID, resourceID)
	if err != nil {
		return false, err
	}
	now := s.now()
	future, err := s.repo.CountBookings(ctx, BookingFilter{
		ResourceID: &resource.ID,
		Statuses:   []string{models.BookingStatusPending, models.BookingStatusConfirmed},
		StartAfter: &now,
	})
	if err != nil {
		return false, err
	}
	if future > 0 {
		log.Infof("[Scheduling] Resource %d keeps %d future booking(s); not deactivated", resource.ID, future)
		return false, nil
	}
	resource.IsActive = false
	if err := s.repo.SaveResource(ctx, resource); err != nil {
		return false, fmt.Errorf("save resource: %w", err)
	}
	return true, nil
}

// GetAvailableResources lists the organization's active resources free at
// [at, at+duration).
func (s *Service) GetAvailableResources(ctx context.Context, organizationID uint, at time.Time, duration time.Duration) ([]models.SchedulableResource, error) {
	if duration <= 0 {
		duration = DefaultAvailabilityCheckDuration
	}
	resources, err := s.repo.ListResources(ctx, ResourceFilter{OrganizationID: organizationID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := []models.SchedulableResource{}
	for i := range resources {
		free, err := slotAvailable(ctx, s.repo, &resources[i], at, at.Add(duration), nil)
		if err != nil {
			return nil, err
		}
		if free {
			out = append(out, resources[i])
		}
	}
	return out, nil
}

// CreateResourceFromTeam returns the resource linked to team, creating it
// on first use. created reports whether a row was inserted.
func (s *Service) CreateResourceFromTeam(ctx context.Context, team *models.Team) (resource *models.SchedulableResource, created bool, err error) {
	return s.EnsureTeamResource(ctx, team, models.DefaultResourceServiceType,
		fmt.Sprintf("Schedulable resource for team: %s", team.Name))
}

// EnsureTeamResource is the get-or-create behind CreateResourceFromTeam,
// keyed on (organization, linked team). serviceType and description only
// apply to a newly created resource.
func (s *Service) EnsureTeamResource(ctx context.Context, team *models.Team, serviceType, description string) (*models.SchedulableResource, bool, error) {
	existing, err := s.repo.FindResource(ctx, ResourceFilter{OrganizationID: team.OrganizationID, LinkedTeamID: &team.ID})
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	resource := &models.SchedulableResource{
		OrganizationID:         team.OrganizationID,
		Name:                   team.Name,
		ResourceType:           models.ResourceTypeTeam,
		Description:            description,
		MaxConcurrentBookings:  team.DefaultCapacity,
		DefaultBookingDuration: models.DefaultBookingDuration,
		AvailabilityRules:      models.DefaultAvailabilityRules(),
		LinkedTeamID:           &team.ID,
		ServiceType:            serviceType,
		IsActive:               true,
	}
	if err := s.repo.CreateResource(ctx, resource); err != nil {
		return nil, false, fmt.Errorf("create team resource: %w", err)
	}
	return resource, true, nil
}

// FindResource returns the first resource matching filter.
func (s *Service) FindResource(ctx context.Context, filter ResourceFilter) (*models.SchedulableResource, error) {
	r, err := s.repo.FindResource(ctx, filter)
	if err != nil {
		return nil, wrapNotFound(err, ErrResourceNotFound)
	}
	return r, nil
}

// SyncTeamResources makes sure every active team of the organization has
// a linked resource.
func (s *Service) SyncTeamResources(ctx context.Context, organizationID uint) ([]models.SchedulableResource, error) {
	teams, err := s.repo.ListActiveTeams(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	out := make([]models.SchedulableResource, 0, len(teams))
	for i := range teams {
		resource, created, err := s.CreateResourceFromTeam(ctx, &teams[i])
		if err != nil {
			return nil, fmt.Errorf("team %d: %w", teams[i].ID, err)
		}
		if created {
			log.Infof("[Scheduling] Created resource %q for team %d", resource.Name, teams[i].ID)
		}
		out = append(out, *resource)
	}
	return out, nil
}

// UpdateResourceCapacity sets the concurrent booking cap and mirrors it
// onto the linked team.
func (s *Service) UpdateResourceCapacity(ctx context.Context, resourceID uint, capacity int) (*models.SchedulableResource, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("capacity must not be negative")
	}
	var resource *models.SchedulableResource
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		r, err := repo.LockResource(ctx, resourceID)
		if err != nil {
			return wrapNotFound(err, ErrResourceNotFound)
		}
		r.MaxConcurrentBookings = capacity
		if err := repo.SaveResource(ctx, r); err != nil {
			return fmt.Errorf("save resource: %w", err)
		}
		if r.LinkedTeamID != nil {
			team, err := repo.GetTeam(ctx, *r.LinkedTeamID)
			if err != nil {
				return wrapNotFound(err, ErrTeamNotFound)
			}
			team.DefaultCapacity = capacity
			if err := repo.SaveTeam(ctx, team); err != nil {
				return fmt.Errorf("save team: %w", err)
			}
			r.LinkedTeam = team
		}
		resource = r
		return nil
	})
	return resource, err
}

// SetResourceAvailability replaces the default working window.
func (s *Service) SetResourceAvailability(ctx context.Context, resourceID uint, startHour, endHour int, workingDays []int) (*models.SchedulableResource, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, fmt.Errorf("invalid working hours %d-%d", startHour, endHour)
	}
	for _, d := range workingDays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %d", d)
		}
	}
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	resource.AvailabilityRules = models.AvailabilityRules{
		WorkingDays: append([]int{}, workingDays...),
		StartHour:   models.IntPtr(startHour),
		EndHour:     models.IntPtr(endHour),
	}
	if err := s.repo.SaveResource(ctx, resource); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}
	return resource, nil
}

// AddRule attaches a schedule rule to its resource.
func (s *Service) AddRule(ctx context.Context, rule *models.ResourceScheduleRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := s.GetResource(ctx, rule.ResourceID); err != nil {
		return err
	}
	return s.repo.CreateRule(ctx, rule)
}
