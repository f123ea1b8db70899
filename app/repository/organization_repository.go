package repository

import (
	"strings"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// organizationRepository implements the OrganizationRepository interface
type organizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository instance
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(org *models.Organization) error {
	if err := org.Validate(); err != nil {
		return err
	}
	return r.db.Create(org).Error
}

func (r *organizationRepository) GetByID(id uint) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.First(&org, id).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// GetByName looks an organization up by its unique name
func (r *organizationRepository) GetByName(name string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.Where("name = ?", strings.TrimSpace(name)).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) Update(org *models.Organization) error {
	return r.db.Save(org).Error
}

// List retrieves a paginated list of organizations ordered by name
func (r *organizationRepository) List(offset, limit int) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.Order("name").Offset(offset).Limit(limit).Find(&orgs).Error
	return orgs, err
}

func (r *organizationRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Organization{}).Count(&count).Error
	return count, err
}

// ListMembers returns the active profiles of an organization with their users
func (r *organizationRepository) ListMembers(organizationID uint) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	err := r.db.Preload("User").
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("id").
		Find(&profiles).Error
	return profiles, err
}
