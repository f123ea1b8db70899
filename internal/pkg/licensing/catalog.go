package licensing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// tierSpec is one seeded LicenseType.
type tierSpec struct {
	name         string
	displayName  string
	monthly      float64
	yearly       float64
	caps         [5]*int // users, projects, workflows, storage_gb, api_calls_per_day
	features     []string
	restrictions []string
	personalOnly bool
}

type serviceSpec struct {
	service models.Service
	tiers   []tierSpec
}

func caps(users, projects, workflows, storage, apiCalls int) [5]*int {
	return [5]*int{
		models.IntPtr(users),
		models.IntPtr(projects),
		models.IntPtr(workflows),
		models.IntPtr(storage),
		models.IntPtr(apiCalls),
	}
}

// catalog returns the default services and tiers. Enterprise tiers are
// unlimited on every axis.
func catalog() []serviceSpec {
	return []serviceSpec{
		{
			service: models.Service{
				Name:               "CFlows",
				Slug:               "cflows",
				Description:        "Workflow Management System",
				Version:            "1.0.0",
				IsActive:           true,
				Icon:               "fas fa-project-diagram",
				Color:              "#2563eb",
				SortOrder:          1,
				AllowsPersonalFree: true,
				PersonalFreeLimits: map[string]int{"users": 1, "workflows": 3, "work_items": 100, "projects": 2},
			},
			tiers: []tierSpec{
				{models.LicenseTierPersonalFree, "Personal Free", 0, 0, caps(1, 2, 3, 1, 100),
					[]string{"Basic workflows", "Personal workspace", "Email notifications"},
					[]string{"No team collaboration", "Limited integrations"}, true},
				{models.LicenseTierBasic, "Basic Team", 29, 290, caps(10, 10, 25, 10, 1000),
					[]string{"Team collaboration", "Custom workflows", "Basic integrations", "Email & SMS notifications"},
					[]string{"Limited admin features"}, false},
				{models.LicenseTierProfessional, "Professional", 79, 790, caps(50, 50, 100, 100, 10000),
					[]string{"Advanced workflows", "All integrations", "Advanced analytics", "Priority support"},
					[]string{}, false},
				{models.LicenseTierEnterprise, "Enterprise", 299, 2990, [5]*int{},
					[]string{"Unlimited everything", "Custom integrations", "Dedicated support", "SLA guarantee"},
					[]string{}, false},
			},
		},
		{
			service: models.Service{
				Name:               "Scheduling",
				Slug:               "scheduling",
				Description:        "Resource Allocation and Scheduling System",
				Version:            "1.0.0",
				IsActive:           true,
				Icon:               "fas fa-calendar-alt",
				Color:              "#059669",
				SortOrder:          2,
				AllowsPersonalFree: true,
				PersonalFreeLimits: map[string]int{"users": 1, "projects": 2, "resources": 5, "events": 20},
			},
			tiers: []tierSpec{
				{models.LicenseTierPersonalFree, "Personal Free", 0, 0, caps(1, 2, 5, 1, 100),
					[]string{"Basic scheduling", "Personal calendar", "Resource management", "Event notifications"},
					[]string{"No team collaboration", "Limited integrations"}, true},
				{models.LicenseTierBasic, "Basic Team", 19, 190, caps(10, 10, 50, 10, 1000),
					[]string{"Team scheduling", "Resource booking", "Calendar sharing", "Basic analytics"},
					[]string{"Limited advanced features"}, false},
				{models.LicenseTierProfessional, "Professional", 49, 490, caps(50, 50, 200, 100, 10000),
					[]string{"Advanced scheduling", "Resource optimization", "Advanced analytics", "Integrations"},
					[]string{}, false},
				{models.LicenseTierEnterprise, "Enterprise", 199, 1990, [5]*int{},
					[]string{"Unlimited scheduling", "Custom integrations", "Dedicated support", "SLA guarantee"},
					[]string{}, false},
			},
		},
	}
}

func (t tierSpec) licenseType(serviceID uint) *models.LicenseType {
	return &models.LicenseType{
		ServiceID:            serviceID,
		Name:                 t.name,
		DisplayName:          t.displayName,
		PriceMonthly:         t.monthly,
		PriceYearly:          t.yearly,
		MaxUsers:             t.caps[0],
		MaxProjects:          t.caps[1],
		MaxWorkflows:         t.caps[2],
		MaxStorageGB:         t.caps[3],
		MaxAPICallsPerDay:    t.caps[4],
		Features:             t.features,
		Restrictions:         t.restrictions,
		IsPersonalOnly:       t.personalOnly,
		RequiresOrganization: !t.personalOnly,
		IsActive:             true,
	}
}

// SetupReport counts what SetupLicensing created.
type SetupReport struct {
	Services         int `json:"services"`
	LicenseTypes     int `json:"license_types"`
	PersonalLicenses int `json:"personal_licenses"`
}

// SetupLicensing seeds services and tiers and gives every personal
// organization a personal free license per service. Running it again only
// refreshes service presentation fields.
func (s *Service) SetupLicensing(ctx context.Context) (*SetupReport, error) {
	report := &SetupReport{}
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		personalOrgs, err := repo.ListPersonalOrganizations(ctx)
		if err != nil {
			return err
		}
		for _, spec := range catalog() {
			svc := spec.service
			if err := repo.UpsertService(ctx, &svc); err != nil {
				return fmt.Errorf("upsert service %s: %w", spec.service.Slug, err)
			}
			report.Services++

			var personalFree *models.LicenseType
			for _, tier := range spec.tiers {
				lt := tier.licenseType(svc.ID)
				created, err := repo.FirstOrCreateLicenseType(ctx, lt)
				if err != nil {
					return fmt.Errorf("license type %s/%s: %w", svc.Slug, tier.name, err)
				}
				if created {
					report.LicenseTypes++
					log.Infof("[Licensing] Created %s license type: %s", svc.Name, tier.displayName)
				}
				if tier.name == models.LicenseTierPersonalFree {
					personalFree = lt
				}
			}

			for _, org := range personalOrgs {
				if _, err := repo.FindLicense(ctx, org.ID, personalFree.ID); err == nil {
					continue
				} else if !isNotFound(err) {
					return err
				}
				members, err := repo.CountOrganizationMembers(ctx, org.ID)
				if err != nil {
					return err
				}
				if _, err := s.firstOrCreatePersonalLicense(ctx, repo, org.ID, personalFree, int(members), nil); err != nil {
					return err
				}
				report.PersonalLicenses++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
