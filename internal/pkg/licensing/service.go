package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrLicenseNotFound       = fmt.Errorf("license not found: %w", gorm.ErrRecordNotFound)
	ErrCustomLicenseNotFound = fmt.Errorf("custom license not found: %w", gorm.ErrRecordNotFound)
	ErrAssignmentNotFound    = fmt.Errorf("license assignment not found: %w", gorm.ErrRecordNotFound)
	ErrServiceNotFound       = fmt.Errorf("service not found: %w", gorm.ErrRecordNotFound)
	ErrLicenseTypeNotFound   = fmt.Errorf("license type not found: %w", gorm.ErrRecordNotFound)
	ErrUserNotFound          = fmt.Errorf("user not found: %w", gorm.ErrRecordNotFound)
)

// Service implements the license ledger and seat assignment rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a licensing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a licensing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// GetLicense loads a license with its tier and service.
func (s *Service) GetLicense(ctx context.Context, id uint) (*models.License, error) {
	l, err := s.repo.GetLicense(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, ErrLicenseNotFound)
	}
	return l, nil
}

// GetAssignment loads a seat assignment with its license.
func (s *Service) GetAssignment(ctx context.Context, id uint) (*models.UserLicenseAssignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, ErrAssignmentNotFound)
	}
	return a, nil
}

// SeatsOf returns the seat view of a license.
func (s *Service) SeatsOf(ctx context.Context, licenseID uint) (SeatHolder, error) {
	l, err := s.GetLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	return seatHolderFor(ctx, s.repo, l)
}

// AssignUserToLicense gives profileID a seat on licenseID. A business-rule
// rejection yields a nil assignment and a reason; err is reserved for
// infrastructure failures. The seat check, insert, counter update and
// audit entry commit together with the license row locked.
func (s *Service) AssignUserToLicense(ctx context.Context, licenseID, profileID uint, actorID *uint) (*models.UserLicenseAssignment, string, error) {
	var (
		assignment *models.UserLicenseAssignment
		reason     string
	)
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		license, err := repo.LockLicense(ctx, licenseID)
		if err != nil {
			return wrapNotFound(err, ErrLicenseNotFound)
		}
		seats, err := seatHolderFor(ctx, repo, license)
		if err != nil {
			return err
		}
		if ok, why := seats.CanAssign(s.now()); !ok {
			reason = why
			return nil
		}

		service := seats.Service()
		if service == nil {
			return errNoService
		}
		existing, err := repo.FindActiveAssignmentForService(ctx, profileID, service.ID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if existing != nil {
			reason = fmt.Sprintf("User already has license for %s", service.Name)
			return nil
		}

		a := &models.UserLicenseAssignment{
			LicenseID:     license.ID,
			UserProfileID: profileID,
			AssignedByID:  actorID,
			AssignedAt:    s.now(),
			IsActive:      true,
		}
		if err := repo.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}

		seats.RecordAssignment()
		if err := repo.UpdateLicenseUsers(ctx, license.ID, license.CurrentUsers); err != nil {
			return fmt.Errorf("update license users: %w", err)
		}

		entry := &models.LicenseAuditLog{
			LicenseID:        &license.ID,
			CustomLicenseID:  license.CustomLicenseID,
			UserAssignmentID: &a.ID,
			Action:           models.AuditActionAssign,
			PerformedByID:    actorID,
			AffectedUserID:   &profileID,
			Description:      fmt.Sprintf("User assigned to %s license", service.Name),
			NewValues: map[string]any{
				"user_id": fmt.Sprint(profileID),
				"service": service.Name,
			},
			Timestamp: s.now(),
		}
		if err := repo.CreateAuditLog(ctx, entry); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		a.License = license
		assignment = a
		return nil
	})

	metrics.LicenseAssignments.WithLabelValues(metrics.ResultLabel(assignment != nil, err)).Inc()
	if err != nil {
		return nil, "", err
	}
	if reason != "" {
		log.Infof("[Licensing] Assignment of profile %d to license %d rejected: %s", profileID, licenseID, reason)
	}
	return assignment, reason, nil
}

// RevokeUserLicense deactivates an assignment. The message is either the
// rejection reason or MessageRevoked.
func (s *Service) RevokeUserLicense(ctx context.Context, assignmentID uint, actorID *uint, reason string) (bool, string, error) {
	var (
		ok      bool
		message string
	)
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		a, err := repo.GetAssignment(ctx, assignmentID)
		if err != nil {
			return wrapNotFound(err, ErrAssignmentNotFound)
		}
		if !a.IsActive {
			message = ReasonAlreadyInactive
			return nil
		}

		license, err := repo.LockLicense(ctx, a.LicenseID)
		if err != nil {
			return wrapNotFound(err, ErrLicenseNotFound)
		}
		// Another revoke may have committed while we waited for the lock.
		a, err = repo.LockAssignment(ctx, assignmentID)
		if err != nil {
			return wrapNotFound(err, ErrAssignmentNotFound)
		}
		if !a.IsActive {
			message = ReasonAlreadyInactive
			return nil
		}
		seats, err := seatHolderFor(ctx, repo, license)
		if err != nil {
			return err
		}
		service := seats.Service()
		if service == nil {
			return errNoService
		}

		a.Revoke(actorID, s.now())
		if err := repo.SaveAssignment(ctx, a); err != nil {
			return fmt.Errorf("save assignment: %w", err)
		}
		seats.RecordRevocation()
		if err := repo.UpdateLicenseUsers(ctx, license.ID, license.CurrentUsers); err != nil {
			return fmt.Errorf("update license users: %w", err)
		}

		description := fmt.Sprintf("User license revoked for %s", service.Name)
		if reason != "" {
			description += ": " + reason
		}
		entry := &models.LicenseAuditLog{
			LicenseID:        &license.ID,
			CustomLicenseID:  license.CustomLicenseID,
			UserAssignmentID: &a.ID,
			Action:           models.AuditActionRevoke,
			PerformedByID:    actorID,
			AffectedUserID:   &a.UserProfileID,
			Description:      description,
			OldValues: map[string]any{
				"user_id": fmt.Sprint(a.UserProfileID),
				"service": service.Name,
			},
			Timestamp: s.now(),
		}
		if err := repo.CreateAuditLog(ctx, entry); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		ok = true
		message = MessageRevoked
		return nil
	})

	metrics.LicenseRevocations.WithLabelValues(metrics.ResultLabel(ok, err)).Inc()
	if err != nil {
		return false, "", err
	}
	return ok, message, nil
}

// LicenseSeats is one row of an organization summary. MaxUsers and
// AvailableSeats are nil for unlimited tiers.
type LicenseSeats struct {
	Ref            LicenseRef `json:"ref"`
	Name           string     `json:"name"`
	ServiceID      uint       `json:"service_id"`
	ServiceSlug    string     `json:"service_slug"`
	ServiceName    string     `json:"service_name"`
	Status         string     `json:"status,omitempty"`
	AssignedUsers  int64      `json:"assigned_users"`
	MaxUsers       *int       `json:"max_users"`
	AvailableSeats *int64     `json:"available_seats"`
	Unlimited      bool       `json:"unlimited"`
}

type OrganizationSummary struct {
	StandardLicenses    []LicenseSeats `json:"standard_licenses"`
	CustomLicenses      []LicenseSeats `json:"custom_licenses"`
	TotalUsers          int64          `json:"total_users"`
	TotalAvailableSeats int64          `json:"total_available_seats"`
}

// GetOrganizationLicenseSummary aggregates seats over the organization's
// entitling standard licenses and active custom licenses. Unlimited tiers
// do not contribute to TotalAvailableSeats.
func (s *Service) GetOrganizationLicenseSummary(ctx context.Context, organizationID uint) (*OrganizationSummary, error) {
	summary := &OrganizationSummary{
		StandardLicenses: []LicenseSeats{},
		CustomLicenses:   []LicenseSeats{},
	}

	standard, err := s.repo.ListStandardLicenses(ctx, organizationID, nil)
	if err != nil {
		return nil, fmt.Errorf("list standard licenses: %w", err)
	}
	for i := range standard {
		l := &standard[i]
		assigned, err := s.repo.CountActiveAssignments(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		row := LicenseSeats{
			Ref:           RefOf(l),
			Status:        l.Status,
			AssignedUsers: assigned,
		}
		if lt := l.LicenseType; lt != nil {
			row.Name = lt.DisplayName
			row.MaxUsers = lt.MaxUsers
			if lt.Service != nil {
				row.ServiceID, row.ServiceSlug, row.ServiceName = lt.Service.ID, lt.Service.Slug, lt.Service.Name
			}
		}
		if row.MaxUsers == nil {
			row.Unlimited = true
		} else {
			available := int64(*row.MaxUsers) - assigned
			row.AvailableSeats = &available
			summary.TotalAvailableSeats += available
		}
		summary.TotalUsers += assigned
		summary.StandardLicenses = append(summary.StandardLicenses, row)
	}

	customs, err := s.repo.ListActiveCustomLicenses(ctx, organizationID, nil)
	if err != nil {
		return nil, fmt.Errorf("list custom licenses: %w", err)
	}
	for i := range customs {
		c := &customs[i]
		var assigned int64
		if c.LicenseInstance != nil {
			if assigned, err = s.repo.CountActiveAssignments(ctx, c.LicenseInstance.ID); err != nil {
				return nil, err
			}
		}
		counted, err := s.repo.CountCustomAssignments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		available := int64(c.RemainingSeats(counted))
		maxUsers := c.MaxUsers
		row := LicenseSeats{
			Ref:            LicenseRef{Kind: KindCustom, CustomLicenseID: c.ID},
			Name:           c.Name,
			AssignedUsers:  assigned,
			MaxUsers:       &maxUsers,
			AvailableSeats: &available,
		}
		if c.LicenseInstance != nil {
			row.Ref.LicenseID = c.LicenseInstance.ID
			row.Status = c.LicenseInstance.Status
		}
		if c.Service != nil {
			row.ServiceID, row.ServiceSlug, row.ServiceName = c.Service.ID, c.Service.Slug, c.Service.Name
		}
		summary.TotalUsers += assigned
		summary.TotalAvailableSeats += available
		summary.CustomLicenses = append(summary.CustomLicenses, row)
	}
	return summary, nil
}

// AvailableLicense is a license that can take at least one more seat.
type AvailableLicense struct {
	Ref            LicenseRef `json:"ref"`
	ServiceSlug    string     `json:"service_slug"`
	AvailableSeats *int       `json:"available_seats"`
}

// GetAvailableLicensesForUser lists licenses of the organization that still
// have a free seat, optionally restricted to one service.
func (s *Service) GetAvailableLicensesForUser(ctx context.Context, organizationID uint, serviceID *uint) ([]AvailableLicense, error) {
	now := s.now()
	out := []AvailableLicense{}

	standard, err := s.repo.ListStandardLicenses(ctx, organizationID, serviceID)
	if err != nil {
		return nil, err
	}
	for i := range standard {
		seats := &standardSeats{license: &standard[i]}
		if ok, _ := seats.CanAssign(now); !ok {
			continue
		}
		row := AvailableLicense{Ref: seats.Ref()}
		if svc := seats.Service(); svc != nil {
			row.ServiceSlug = svc.Slug
		}
		if remaining, limited := seats.RemainingSeats(); limited {
			row.AvailableSeats = &remaining
		}
		out = append(out, row)
	}

	customs, err := s.repo.ListActiveCustomLicenses(ctx, organizationID, serviceID)
	if err != nil {
		return nil, err
	}
	for i := range customs {
		c := &customs[i]
		if c.LicenseInstance == nil {
			continue
		}
		assigned, err := s.repo.CountCustomAssignments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		seats := &customSeats{license: c.LicenseInstance, custom: c, assigned: assigned}
		if ok, _ := seats.CanAssign(now); !ok {
			continue
		}
		remaining, _ := seats.RemainingSeats()
		row := AvailableLicense{Ref: LicenseRef{Kind: KindCustom, LicenseID: c.LicenseInstance.ID, CustomLicenseID: c.ID}, AvailableSeats: &remaining}
		if c.Service != nil {
			row.ServiceSlug = c.Service.Slug
		}
		out = append(out, row)
	}
	return out, nil
}

// GetUserServices returns the services reachable through the profile's
// active assignments on valid licenses.
func (s *Service) GetUserServices(ctx context.Context, profileID uint) ([]models.Service, error) {
	assignments, err := s.repo.ListActiveAssignmentsForProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	seen := map[uint]struct{}{}
	out := []models.Service{}
	for i := range assignments {
		svc := entitledService(assignments[i].License, now)
		if svc == nil {
			continue
		}
		if _, dup := seen[svc.ID]; dup {
			continue
		}
		seen[svc.ID] = struct{}{}
		out = append(out, *svc)
	}
	return out, nil
}

// HasServiceAccess reports whether the profile holds a valid seat for the
// active service identified by slug.
func (s *Service) HasServiceAccess(ctx context.Context, profileID uint, slug string) (bool, error) {
	svc, err := s.repo.GetServiceBySlug(ctx, slug)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !svc.IsActive {
		return false, nil
	}
	services, err := s.GetUserServices(ctx, profileID)
	if err != nil {
		return false, err
	}
	for _, candidate := range services {
		if candidate.ID == svc.ID {
			return true, nil
		}
	}
	return false, nil
}

// entitledService returns the service a license grants at now, judging
// custom-backed licenses by the custom license's own validity.
func entitledService(l *models.License, now time.Time) *models.Service {
	if l == nil {
		return nil
	}
	if l.CustomLicense != nil {
		if !l.CustomLicense.IsValid(now) {
			return nil
		}
		return l.CustomLicense.Service
	}
	if !l.IsValid(now) || l.LicenseType == nil {
		return nil
	}
	return l.LicenseType.Service
}

// ListAuditLogs returns audit entries newest first.
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]models.LicenseAuditLog, error) {
	return s.repo.ListAuditLogs(ctx, filter)
}

// UsagePercentage reports the usage of one resource kind on a license.
func (s *Service) UsagePercentage(ctx context.Context, licenseID uint, kind models.ResourceKind) (float64, bool, error) {
	l, err := s.GetLicense(ctx, licenseID)
	if err != nil {
		return 0, false, err
	}
	return l.UsagePercentage(kind), l.IsAtLimit(kind), nil
}

// RecordUsageSnapshot stores the license's current counters in the usage log.
func (s *Service) RecordUsageSnapshot(ctx context.Context, licenseID uint, activeSessions int) (*models.LicenseUsageLog, error) {
	l, err := s.GetLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	entry := &models.LicenseUsageLog{
		LicenseID:      l.ID,
		UsersCount:     l.CurrentUsers,
		ProjectsCount:  l.CurrentProjects,
		StorageGB:      l.CurrentStorageGB,
		APICalls:       l.CurrentAPICallsToday,
		ActiveSessions: activeSessions,
		RecordedAt:     s.now(),
	}
	if err := s.repo.CreateUsageLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// IsNotFound reports whether err is any licensing not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
