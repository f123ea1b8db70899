package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Tier names for LicenseType.Name.
const (
	LicenseTierPersonalFree = "personal_free"
	LicenseTierBasic        = "basic"
	LicenseTierProfessional = "professional"
	LicenseTierEnterprise   = "enterprise"
	LicenseTierCustom       = "custom"
)

// ResourceKind names a capped dimension of a license.
type ResourceKind string

const (
	ResourceUsers          ResourceKind = "users"
	ResourceProjects       ResourceKind = "projects"
	ResourceWorkflows      ResourceKind = "workflows"
	ResourceStorageGB      ResourceKind = "storage_gb"
	ResourceAPICallsPerDay ResourceKind = "api_calls_per_day"
)

// ResourceKinds lists every capped dimension in display order.
var ResourceKinds = []ResourceKind{
	ResourceUsers,
	ResourceProjects,
	ResourceWorkflows,
	ResourceStorageGB,
	ResourceAPICallsPerDay,
}

// Service is a sellable product line (e.g. cflows, scheduling).
type Service struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"name" validate:"required,max=100"`
	Slug               string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"slug" validate:"required,max=50"`
	Description        string         `gorm:"type:text" json:"description"`
	Version            string         `gorm:"type:varchar(20);default:'1.0.0'" json:"version"`
	IsActive           bool           `gorm:"not null;default:true" json:"is_active"`
	Icon               string         `gorm:"type:varchar(100)" json:"icon"`
	Color              string         `gorm:"type:varchar(7);default:'#000000'" json:"color"`
	SortOrder          int            `gorm:"default:0" json:"sort_order"`
	AllowsPersonalFree bool           `gorm:"default:true" json:"allows_personal_free"`
	PersonalFreeLimits map[string]int `gorm:"serializer:json;type:json" json:"personal_free_limits"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Service) Validate() error {
	v := validator.New()
	return v.Struct(s)
}

// LicenseType is a pricing tier of one Service. A nil cap means unlimited.
type LicenseType struct {
	ID                   uint     `gorm:"primaryKey" json:"id"`
	Name                 string   `gorm:"type:varchar(50);not null;uniqueIndex:ux_license_types_service_name,priority:2" json:"name" validate:"required,oneof=personal_free basic professional enterprise custom"`
	ServiceID            uint     `gorm:"not null;uniqueIndex:ux_license_types_service_name,priority:1" json:"service_id"`
	Service              *Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	DisplayName          string   `gorm:"type:varchar(100)" json:"display_name"`
	PriceMonthly         float64  `gorm:"type:decimal(10,2);default:0" json:"price_monthly" validate:"min=0"`
	PriceYearly          float64  `gorm:"type:decimal(10,2);default:0" json:"price_yearly" validate:"min=0"`
	MaxUsers             *int     `gorm:"default:null" json:"max_users"`
	MaxProjects          *int     `gorm:"default:null" json:"max_projects"`
	MaxWorkflows         *int     `gorm:"default:null" json:"max_workflows"`
	MaxStorageGB         *int     `gorm:"default:null" json:"max_storage_gb"`
	MaxAPICallsPerDay    *int     `gorm:"default:null" json:"max_api_calls_per_day"`
	Features             []string `gorm:"serializer:json;type:json" json:"features"`
	Restrictions         []string `gorm:"serializer:json;type:json" json:"restrictions"`
	IsPersonalOnly       bool     `gorm:"default:false" json:"is_personal_only"`
	RequiresOrganization bool     `gorm:"default:false" json:"requires_organization"`
	IsActive             bool     `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (lt *LicenseType) Validate() error {
	v := validator.New()
	return v.Struct(lt)
}

// Limit returns the cap for kind. ok is false for unknown kinds; a nil cap
// with ok=true means unlimited.
func (lt *LicenseType) Limit(kind ResourceKind) (limit *int, ok bool) {
	switch kind {
	case ResourceUsers:
		return lt.MaxUsers, true
	case ResourceProjects:
		return lt.MaxProjects, true
	case ResourceWorkflows:
		return lt.MaxWorkflows, true
	case ResourceStorageGB:
		return lt.MaxStorageGB, true
	case ResourceAPICallsPerDay:
		return lt.MaxAPICallsPerDay, true
	default:
		return nil, false
	}
}

// LimitsDict returns every cap keyed by resource kind.
func (lt *LicenseType) LimitsDict() map[ResourceKind]*int {
	limits := make(map[ResourceKind]*int, len(ResourceKinds))
	for _, kind := range ResourceKinds {
		limits[kind], _ = lt.Limit(kind)
	}
	return limits
}

// IntPtr is a small helper for building tier caps.
func IntPtr(v int) *int {
	return &v
}
