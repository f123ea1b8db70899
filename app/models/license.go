package models

import (
	"math"
	"time"
)

const (
	LicenseStatusActive    = "active"
	LicenseStatusExpired   = "expired"
	LicenseStatusSuspended = "suspended"
	LicenseStatusCancelled = "cancelled"
	LicenseStatusPending   = "pending"
	LicenseStatusTrial     = "trial"
)

const (
	BillingCycleMonthly  = "monthly"
	BillingCycleYearly   = "yearly"
	BillingCycleLifetime = "lifetime"
)

const (
	AccountTypePersonal        = "personal"
	AccountTypeOrganization    = "organization"
	AccountTypeCustomerService = "customer-service"
)

// EntitlingLicenseStatuses are the statuses a license may be valid in.
var EntitlingLicenseStatuses = []string{LicenseStatusActive, LicenseStatusTrial}

// License is one entitlement held by an organization for a LicenseType.
// When CustomLicenseID is set the row only backs a CustomLicense for seat
// tracking and its LicenseType is the service's "custom" tier.
type License struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	LicenseTypeID   uint           `gorm:"not null;uniqueIndex:ux_licenses_org_type,priority:2" json:"license_type_id"`
	LicenseType     *LicenseType   `gorm:"foreignKey:LicenseTypeID" json:"license_type,omitempty"`
	OrganizationID  uint           `gorm:"not null;uniqueIndex:ux_licenses_org_type,priority:1;index:idx_licenses_org_status,priority:1" json:"organization_id"`
	Organization    *Organization  `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	CustomLicenseID *uint          `gorm:"uniqueIndex" json:"custom_license_id,omitempty"`
	CustomLicense   *CustomLicense `gorm:"foreignKey:CustomLicenseID" json:"custom_license,omitempty"`

	AccountType    string `gorm:"type:varchar(20);not null;default:'organization';index:idx_licenses_account,priority:1" json:"account_type"`
	IsPersonalFree bool   `gorm:"default:false;index:idx_licenses_account,priority:2" json:"is_personal_free"`
	Status         string `gorm:"type:varchar(20);not null;default:'pending';index:idx_licenses_org_status,priority:2" json:"status"`
	BillingCycle   string `gorm:"type:varchar(20);not null;default:'monthly'" json:"billing_cycle"`

	StartDate    time.Time  `gorm:"not null" json:"start_date"`
	EndDate      *time.Time `gorm:"index;default:null" json:"end_date,omitempty"`
	TrialEndDate *time.Time `gorm:"default:null" json:"trial_end_date,omitempty"`

	CurrentUsers         int       `gorm:"not null;default:0" json:"current_users"`
	CurrentProjects      int       `gorm:"not null;default:0" json:"current_projects"`
	CurrentWorkflows     int       `gorm:"not null;default:0" json:"current_workflows"`
	CurrentStorageGB     float64   `gorm:"type:decimal(10,2);not null;default:0" json:"current_storage_gb"`
	CurrentAPICallsToday int       `gorm:"not null;default:0" json:"current_api_calls_today"`
	APICallsResetDate    time.Time `gorm:"type:date" json:"api_calls_reset_date"`

	LastBillingDate *time.Time `gorm:"default:null" json:"last_billing_date,omitempty"`
	NextBillingDate *time.Time `gorm:"default:null" json:"next_billing_date,omitempty"`
	AmountPaid      float64    `gorm:"type:decimal(10,2);default:0" json:"amount_paid"`

	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedByID *uint     `gorm:"default:null" json:"created_by_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValid evaluates validity lazily against now. There is no expiry sweep,
// so every consumer has to ask at read time.
func (l *License) IsValid(now time.Time) bool {
	if l.Status != LicenseStatusActive && l.Status != LicenseStatusTrial {
		return false
	}
	if l.EndDate != nil && l.EndDate.Before(now) {
		return false
	}
	if l.Status == LicenseStatusTrial && l.TrialEndDate != nil && l.TrialEndDate.Before(now) {
		return false
	}
	return true
}

// IsCustom reports whether this row backs a CustomLicense.
func (l *License) IsCustom() bool {
	return l.CustomLicenseID != nil
}

// CurrentUsage returns the usage counter for kind.
func (l *License) CurrentUsage(kind ResourceKind) (float64, bool) {
	switch kind {
	case ResourceUsers:
		return float64(l.CurrentUsers), true
	case ResourceProjects:
		return float64(l.CurrentProjects), true
	case ResourceWorkflows:
		return float64(l.CurrentWorkflows), true
	case ResourceStorageGB:
		return l.CurrentStorageGB, true
	case ResourceAPICallsPerDay:
		return float64(l.CurrentAPICallsToday), true
	default:
		return 0, false
	}
}

// limit returns the tier cap for kind; unknown kinds and a missing tier
// are treated as unlimited.
func (l *License) limit(kind ResourceKind) *int {
	if l.LicenseType == nil {
		return nil
	}
	limit, _ := l.LicenseType.Limit(kind)
	return limit
}

// UsagePercentage returns usage against the tier cap in [0, 100].
// A nil cap yields 0 whatever the usage; a zero cap yields 100.
func (l *License) UsagePercentage(kind ResourceKind) float64 {
	current, ok := l.CurrentUsage(kind)
	if !ok {
		return 0
	}
	limit := l.limit(kind)
	if limit == nil {
		return 0
	}
	if *limit == 0 {
		return 100
	}
	return math.Min(100, current/float64(*limit)*100)
}

// IsAtLimit reports whether kind is at or over its cap.
func (l *License) IsAtLimit(kind ResourceKind) bool {
	return l.UsagePercentage(kind) >= 100
}

func (l *License) canAdd(kind ResourceKind) bool {
	return l.limit(kind) == nil || !l.IsAtLimit(kind)
}

func (l *License) CanAddUser() bool {
	return l.canAdd(ResourceUsers)
}

func (l *License) CanAddProject() bool {
	return l.canAdd(ResourceProjects)
}

func (l *License) CanAddWorkflow() bool {
	return l.canAdd(ResourceWorkflows)
}

// ResetDailyAPICalls zeroes the API call counter when the reset date lies
// before today's date. It reports whether anything changed.
func (l *License) ResetDailyAPICalls(now time.Time) bool {
	today := DateOf(now)
	if !DateOf(l.APICallsResetDate).Before(today) {
		return false
	}
	l.CurrentAPICallsToday = 0
	l.APICallsResetDate = today
	return true
}

// DateOf truncates t to midnight in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
