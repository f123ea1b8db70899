package licensing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// CustomLicenseInput describes a support-issued license.
type CustomLicenseInput struct {
	OrganizationID   uint
	OrganizationName string
	ServiceSlug      string
	MaxUsers         int
	Name             string

	// DurationDays of zero means no end date.
	DurationDays int

	Features    []string
	CreatedByID *uint
	Activate    bool

	// AllowAdditional activates even when the organization already holds
	// an entitling license for the service.
	AllowAdditional bool
}

// CustomLicenseResult reports what CreateCustomLicense did.
type CustomLicenseResult struct {
	CustomLicense *models.CustomLicense
	// License is the backing row, nil when not activated.
	License *models.License
	// Existing lists entitling licenses that blocked activation.
	Existing []models.License
}

// CreateCustomLicense creates a custom license and, when requested,
// activates it by creating the backing License on the service's custom tier.
func (s *Service) CreateCustomLicense(ctx context.Context, in CustomLicenseInput) (*CustomLicenseResult, error) {
	if in.MaxUsers < 0 {
		return nil, fmt.Errorf("max users must not be negative")
	}
	if in.DurationDays < 0 {
		return nil, fmt.Errorf("duration must not be negative")
	}
	result := &CustomLicenseResult{}
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		service, err := repo.GetServiceBySlug(ctx, in.ServiceSlug)
		if err != nil {
			return wrapNotFound(err, ErrServiceNotFound)
		}

		now := s.now()
		var end *time.Time
		if in.DurationDays > 0 {
			e := now.AddDate(0, 0, in.DurationDays)
			end = &e
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = fmt.Sprintf("%s - %s Custom License", in.OrganizationName, service.Name)
		}
		features := in.Features
		if features == nil {
			features = []string{}
		}

		custom := &models.CustomLicense{
			Name:             name,
			OrganizationID:   in.OrganizationID,
			ServiceID:        service.ID,
			MaxUsers:         in.MaxUsers,
			Description:      fmt.Sprintf("Custom license created for %s", in.OrganizationName),
			StartDate:        now,
			EndDate:          end,
			IsActive:         true,
			IncludedFeatures: features,
			Restrictions:     map[string]any{},
			CreatedByID:      in.CreatedByID,
			Notes:            fmt.Sprintf("Created via admin tooling on %s", now.Format("2006-01-02 15:04:05")),
		}
		if err := custom.Validate(); err != nil {
			return err
		}
		if err := repo.CreateCustomLicense(ctx, custom); err != nil {
			return fmt.Errorf("create custom license: %w", err)
		}
		custom.Service = service
		result.CustomLicense = custom

		if err := repo.CreateAuditLog(ctx, &models.LicenseAuditLog{
			CustomLicenseID: &custom.ID,
			Action:          models.AuditActionCreate,
			PerformedByID:   in.CreatedByID,
			Description:     "Custom license created via admin tooling",
			NewValues: map[string]any{
				"name":          name,
				"max_users":     in.MaxUsers,
				"duration_days": in.DurationDays,
				"features":      features,
			},
			Timestamp: now,
		}); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}

		if !in.Activate {
			return nil
		}
		existing, err := repo.ListEntitlingLicensesForService(ctx, in.OrganizationID, service.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 && !in.AllowAdditional {
			result.Existing = existing
			log.Warnf("[Licensing] Organization %d already holds %d license(s) for %s; custom license %d left inactive",
				in.OrganizationID, len(existing), service.Slug, custom.ID)
			return nil
		}
		license, err := activateCustomLicense(ctx, repo, custom, in.CreatedByID, now)
		if err != nil {
			return err
		}
		result.License = license
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ActivateCustomLicense creates the backing License of a custom license.
func (s *Service) ActivateCustomLicense(ctx context.Context, customLicenseID uint, actorID *uint) (*models.License, error) {
	var license *models.License
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		custom, err := repo.GetCustomLicense(ctx, customLicenseID)
		if err != nil {
			return wrapNotFound(err, ErrCustomLicenseNotFound)
		}
		if custom.LicenseInstance != nil {
			license = custom.LicenseInstance
			return nil
		}
		license, err = activateCustomLicense(ctx, repo, custom, actorID, s.now())
		return err
	})
	return license, err
}

func activateCustomLicense(ctx context.Context, repo Repository, custom *models.CustomLicense, actorID *uint, now time.Time) (*models.License, error) {
	customType := &models.LicenseType{
		ServiceID:    custom.ServiceID,
		Name:         models.LicenseTierCustom,
		DisplayName:  "Custom License",
		Features:     []string{"custom_configuration"},
		Restrictions: []string{},
		IsActive:     true,
	}
	if _, err := repo.FirstOrCreateLicenseType(ctx, customType); err != nil {
		return nil, fmt.Errorf("custom license type: %w", err)
	}

	license := &models.License{
		LicenseTypeID:     customType.ID,
		OrganizationID:    custom.OrganizationID,
		CustomLicenseID:   &custom.ID,
		AccountType:       models.AccountTypeOrganization,
		Status:            models.LicenseStatusActive,
		BillingCycle:      models.BillingCycleMonthly,
		StartDate:         custom.StartDate,
		EndDate:           custom.EndDate,
		APICallsResetDate: models.DateOf(now),
		CreatedByID:       actorID,
	}
	if err := repo.CreateLicense(ctx, license); err != nil {
		return nil, fmt.Errorf("create backing license: %w", err)
	}
	license.LicenseType = customType
	license.CustomLicense = custom
	custom.LicenseInstance = license

	if err := repo.CreateAuditLog(ctx, &models.LicenseAuditLog{
		LicenseID:       &license.ID,
		CustomLicenseID: &custom.ID,
		Action:          models.AuditActionCreate,
		PerformedByID:   actorID,
		Description:     "License instance activated for custom license",
		NewValues: map[string]any{
			"license_id": fmt.Sprint(license.ID),
			"status":     license.Status,
		},
		Timestamp: now,
	}); err != nil {
		return nil, fmt.Errorf("write audit log: %w", err)
	}
	return license, nil
}

// ExtendCustomLicense pushes the end date of a custom license by days.
// A license without end date stays unlimited.
func (s *Service) ExtendCustomLicense(ctx context.Context, customLicenseID uint, days int, actorID *uint) (*models.CustomLicense, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extension must be positive")
	}
	return s.mutateCustomLicense(ctx, customLicenseID, actorID, models.AuditActionExtend,
		fmt.Sprintf("Custom license extended by %d days", days),
		func(c *models.CustomLicense) {
			if c.EndDate == nil {
				return
			}
			base := *c.EndDate
			if now := s.now(); base.Before(now) {
				base = now
			}
			end := base.AddDate(0, 0, days)
			c.EndDate = &end
		})
}

// SuspendCustomLicense deactivates a custom license. Existing assignments
// stay but stop granting access.
func (s *Service) SuspendCustomLicense(ctx context.Context, customLicenseID uint, actorID *uint, reason string) (*models.CustomLicense, error) {
	description := "Custom license suspended"
	if reason != "" {
		description += ": " + reason
	}
	return s.mutateCustomLicense(ctx, customLicenseID, actorID, models.AuditActionSuspend, description,
		func(c *models.CustomLicense) { c.IsActive = false })
}

func (s *Service) ReactivateCustomLicense(ctx context.Context, customLicenseID uint, actorID *uint) (*models.CustomLicense, error) {
	return s.mutateCustomLicense(ctx, customLicenseID, actorID, models.AuditActionReactivate,
		"Custom license reactivated",
		func(c *models.CustomLicense) { c.IsActive = true })
}

func (s *Service) mutateCustomLicense(
	ctx context.Context,
	customLicenseID uint,
	actorID *uint,
	action string,
	description string,
	mutate func(*models.CustomLicense),
) (*models.CustomLicense, error) {
	var custom *models.CustomLicense
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		c, err := repo.GetCustomLicense(ctx, customLicenseID)
		if err != nil {
			return wrapNotFound(err, ErrCustomLicenseNotFound)
		}
		before := c.Snapshot()
		mutate(c)
		if err := repo.SaveCustomLicense(ctx, c); err != nil {
			return fmt.Errorf("save custom license: %w", err)
		}
		entry := &models.LicenseAuditLog{
			CustomLicenseID: &c.ID,
			Action:          action,
			PerformedByID:   actorID,
			Description:     description,
			OldValues:       before,
			NewValues:       c.Snapshot(),
			Timestamp:       s.now(),
		}
		if c.LicenseInstance != nil {
			entry.LicenseID = &c.LicenseInstance.ID
		}
		if err := repo.CreateAuditLog(ctx, entry); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		custom = c
		return nil
	})
	return custom, err
}

// GetOrCreatePersonalFree returns the personal free license of serviceSlug
// for the user's organization, creating a personal organization and admin
// profile first when the user has none.
func (s *Service) GetOrCreatePersonalFree(ctx context.Context, userID uint, serviceSlug string) (*models.License, error) {
	var license *models.License
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		var organizationID uint
		profile, err := repo.FindActiveProfile(ctx, userID)
		switch {
		case err == nil:
			organizationID = profile.OrganizationID
		case isNotFound(err):
			user, uerr := repo.GetUser(ctx, userID)
			if uerr != nil {
				return wrapNotFound(uerr, ErrUserNotFound)
			}
			org := &models.Organization{
				Name:             fmt.Sprintf("%s (Personal)", user.DisplayName()),
				OrganizationType: models.OrganizationTypePersonal,
				Description:      "Personal account",
				IsActive:         true,
			}
			if err := repo.FirstOrCreateOrganization(ctx, org); err != nil {
				return fmt.Errorf("personal organization: %w", err)
			}
			if err := repo.CreateProfile(ctx, &models.UserProfile{
				UserID:              user.ID,
				OrganizationID:      org.ID,
				IsOrganizationAdmin: true,
				IsActive:            true,
			}); err != nil {
				return fmt.Errorf("personal profile: %w", err)
			}
			organizationID = org.ID
		default:
			return err
		}

		service, err := repo.GetServiceBySlug(ctx, serviceSlug)
		if err != nil {
			return wrapNotFound(err, ErrServiceNotFound)
		}
		lt, err := repo.GetLicenseType(ctx, service.ID, models.LicenseTierPersonalFree)
		if err != nil {
			return wrapNotFound(err, ErrLicenseTypeNotFound)
		}
		license, err = s.firstOrCreatePersonalLicense(ctx, repo, organizationID, lt, 0, &userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

func (s *Service) firstOrCreatePersonalLicense(ctx context.Context, repo Repository, organizationID uint, lt *models.LicenseType, members int, createdByID *uint) (*models.License, error) {
	existing, err := repo.FindLicense(ctx, organizationID, lt.ID)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	now := s.now()
	license := &models.License{
		LicenseTypeID:     lt.ID,
		OrganizationID:    organizationID,
		AccountType:       models.AccountTypePersonal,
		IsPersonalFree:    true,
		Status:            models.LicenseStatusActive,
		BillingCycle:      models.BillingCycleLifetime,
		StartDate:         now,
		CurrentUsers:      members,
		APICallsResetDate: models.DateOf(now),
		CreatedByID:       createdByID,
	}
	if err := repo.CreateLicense(ctx, license); err != nil {
		return nil, fmt.Errorf("create personal license: %w", err)
	}
	license.LicenseType = lt
	return license, nil
}
