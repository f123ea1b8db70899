package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/app/repository"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cache"
	"github.com/ManuelReschke/MetaTask/internal/pkg/cflows"
	"github.com/ManuelReschke/MetaTask/internal/pkg/database"
	"github.com/ManuelReschke/MetaTask/internal/pkg/env"
	"github.com/ManuelReschke/MetaTask/internal/pkg/events"
	"github.com/ManuelReschke/MetaTask/internal/pkg/licensing"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
)

var (
	organizationRef string
	serviceSlug     string
	maxUsers        int
	licenseName     string
	durationDays    int
	features        []string
	createdByID     uint
	activate        bool
	allowAdditional bool
	teamBookingID   uint
	completedByID   uint

	rootCmd = &cobra.Command{
		Use:   "metatask-admin",
		Short: "Management commands for MetaTask licensing and scheduling",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
			database.SetupDatabase()
			repository.InitializeFactory(database.GetDB())
		},
	}

	setupLicensingCmd = &cobra.Command{
		Use:   "setup-licensing",
		Short: "Seed services and license tiers, and personal free licenses",
		RunE:  runSetupLicensing,
	}

	createCustomLicenseCmd = &cobra.Command{
		Use:   "create-custom-license",
		Short: "Issue a custom license to an organization",
		RunE:  runCreateCustomLicense,
	}

	syncCFlowsBookingsCmd = &cobra.Command{
		Use:   "sync-cflows-bookings",
		Short: "Mirror workflow team bookings into the scheduling service",
		RunE:  runSyncCFlowsBookings,
	}

	syncCompletedBookingsCmd = &cobra.Command{
		Use:   "sync-completed-bookings",
		Short: "Complete team bookings whose scheduling booking already completed",
		RunE:  runSyncCompletedBookings,
	}

	syncTeamResourcesCmd = &cobra.Command{
		Use:   "sync-team-resources",
		Short: "Create a schedulable resource for every active team",
		RunE:  runSyncTeamResources,
	}

	completeTeamBookingCmd = &cobra.Command{
		Use:   "complete-team-booking",
		Short: "Complete a workflow team booking and its scheduling booking",
		RunE:  runCompleteTeamBooking,
	}

	flushAPICallsCmd = &cobra.Command{
		Use:   "flush-api-calls",
		Short: "Apply buffered API call counters to licenses",
		PreRun: func(cmd *cobra.Command, args []string) {
			cache.SetupCache()
		},
		RunE: runFlushAPICalls,
	}
)

func init() {
	rootCmd.AddCommand(setupLicensingCmd)

	rootCmd.AddCommand(createCustomLicenseCmd)
	createCustomLicenseCmd.Flags().StringVar(&organizationRef, "organization", "", "Organization ID or name")
	createCustomLicenseCmd.Flags().StringVar(&serviceSlug, "service", "", "Service slug")
	createCustomLicenseCmd.Flags().IntVar(&maxUsers, "users", 0, "Maximum number of seats")
	createCustomLicenseCmd.Flags().StringVar(&licenseName, "name", "", "License name (derived from organization and service when empty)")
	createCustomLicenseCmd.Flags().IntVar(&durationDays, "duration", 365, "Validity in days, 0 for no end date")
	createCustomLicenseCmd.Flags().StringSliceVar(&features, "features", nil, "Comma separated feature list")
	createCustomLicenseCmd.Flags().UintVar(&createdByID, "created-by", 0, "Profile ID recorded as creator")
	createCustomLicenseCmd.Flags().BoolVar(&activate, "activate", false, "Create the backing license right away")
	createCustomLicenseCmd.Flags().BoolVar(&allowAdditional, "allow-additional", false, "Activate even if the organization already holds a license for the service")
	_ = createCustomLicenseCmd.MarkFlagRequired("organization")
	_ = createCustomLicenseCmd.MarkFlagRequired("service")
	_ = createCustomLicenseCmd.MarkFlagRequired("users")

	rootCmd.AddCommand(syncCFlowsBookingsCmd)
	syncCFlowsBookingsCmd.Flags().StringVar(&organizationRef, "organization", "", "Limit to one organization (ID or name)")

	rootCmd.AddCommand(syncCompletedBookingsCmd)
	syncCompletedBookingsCmd.Flags().StringVar(&organizationRef, "organization", "", "Limit to one organization (ID or name)")

	rootCmd.AddCommand(syncTeamResourcesCmd)
	syncTeamResourcesCmd.Flags().StringVar(&organizationRef, "organization", "", "Organization ID or name")
	_ = syncTeamResourcesCmd.MarkFlagRequired("organization")

	rootCmd.AddCommand(completeTeamBookingCmd)
	completeTeamBookingCmd.Flags().UintVar(&teamBookingID, "id", 0, "Team booking ID")
	completeTeamBookingCmd.Flags().UintVar(&completedByID, "by", 0, "Profile ID recorded as completer")
	_ = completeTeamBookingCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(flushAPICallsCmd)
}

// resolveOrganization accepts a numeric ID or an organization name.
func resolveOrganization(ref string) (*models.Organization, error) {
	orgs := repository.GetGlobalFactory().GetOrganizationRepository()
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		org, err := orgs.GetByID(uint(id))
		if err != nil {
			return nil, fmt.Errorf("organization %d: %w", id, err)
		}
		return org, nil
	}
	org, err := orgs.GetByName(ref)
	if err != nil {
		return nil, fmt.Errorf("organization %q: %w", ref, err)
	}
	return org, nil
}

// organizationFilter resolves an optional --organization flag.
func organizationFilter() (*uint, error) {
	if organizationRef == "" {
		return nil, nil
	}
	org, err := resolveOrganization(organizationRef)
	if err != nil {
		return nil, err
	}
	return &org.ID, nil
}

func newIntegration() *cflows.Integration {
	db := database.GetDB()
	bus := events.NewBus()
	sched := scheduling.NewServiceFromDB(db, scheduling.WithNotifier(bus))
	sched.RegisterHandlers(bus)
	flows := cflows.NewIntegrationFromDB(db, sched, cflows.WithPublisher(bus))
	flows.RegisterHandlers(bus)
	return flows
}

func runSetupLicensing(cmd *cobra.Command, args []string) error {
	svc := licensing.NewServiceFromDB(database.GetDB())
	report, err := svc.SetupLicensing(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Services created: %d\n", report.Services)
	fmt.Printf("License types created: %d\n", report.LicenseTypes)
	fmt.Printf("Personal free licenses created: %d\n", report.PersonalLicenses)
	return nil
}

func runCreateCustomLicense(cmd *cobra.Command, args []string) error {
	org, err := resolveOrganization(organizationRef)
	if err != nil {
		return err
	}
	in := licensing.CustomLicenseInput{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		ServiceSlug:      serviceSlug,
		MaxUsers:         maxUsers,
		Name:             licenseName,
		DurationDays:     durationDays,
		Features:         features,
		Activate:         activate,
		AllowAdditional:  allowAdditional,
	}
	if createdByID != 0 {
		in.CreatedByID = &createdByID
	}

	svc := licensing.NewServiceFromDB(database.GetDB())
	result, err := svc.CreateCustomLicense(context.Background(), in)
	if err != nil {
		return err
	}

	custom := result.CustomLicense
	fmt.Printf("Created custom license %d %q for %s (%d seats)\n", custom.ID, custom.Name, org.Name, custom.MaxUsers)
	switch {
	case result.License != nil:
		fmt.Printf("Activated with backing license %d\n", result.License.ID)
	case len(result.Existing) > 0:
		fmt.Printf("Not activated: organization already holds %d license(s) for %s; use --allow-additional\n", len(result.Existing), serviceSlug)
		for _, l := range result.Existing {
			fmt.Printf("  license %d status=%s\n", l.ID, l.Status)
		}
	default:
		fmt.Println("Not activated")
	}
	return nil
}

func printSync(label string, res cflows.SyncResult) {
	fmt.Printf("%s: synced=%d skipped=%d errors=%d\n", label, res.Synced, res.Skipped, res.Errors)
}

func runSyncCFlowsBookings(cmd *cobra.Command, args []string) error {
	orgID, err := organizationFilter()
	if err != nil {
		return err
	}
	res, err := newIntegration().SyncAllTeamBookings(context.Background(), orgID)
	if err != nil {
		return err
	}
	printSync("Team bookings", res)
	return nil
}

func runSyncCompletedBookings(cmd *cobra.Command, args []string) error {
	orgID, err := organizationFilter()
	if err != nil {
		return err
	}
	res, err := newIntegration().SyncCompletedBookingsRetroactively(context.Background(), orgID)
	if err != nil {
		return err
	}
	printSync("Completed bookings", res)
	return nil
}

func runSyncTeamResources(cmd *cobra.Command, args []string) error {
	org, err := resolveOrganization(organizationRef)
	if err != nil {
		return err
	}
	svc := scheduling.NewServiceFromDB(database.GetDB())
	resources, err := svc.SyncTeamResources(context.Background(), org.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%d team resource(s) in %s\n", len(resources), org.Name)
	for _, r := range resources {
		fmt.Printf("  %d %s (capacity %d)\n", r.ID, r.Name, r.MaxConcurrentBookings)
	}
	return nil
}

func runCompleteTeamBooking(cmd *cobra.Command, args []string) error {
	var by *uint
	if completedByID != 0 {
		by = &completedByID
	}
	tb, err := newIntegration().CompleteTeamBooking(context.Background(), teamBookingID, by)
	if err != nil {
		return err
	}
	fmt.Printf("Team booking %d %q completed at %s\n", tb.ID, tb.Title, tb.CompletedAt.Format("2006-01-02 15:04"))
	return nil
}

func runFlushAPICalls(cmd *cobra.Command, args []string) error {
	svc := licensing.NewServiceFromDB(database.GetDB())
	n, err := svc.FlushAPICalls(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Applied API call counters to %d license(s)\n", n)
	return nil
}
