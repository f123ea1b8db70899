package repository

import (
	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// teamRepository implements the TeamRepository interface
type teamRepository struct {
	db *gorm.DB
}

// NewTeamRepository creates a new team repository instance
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) Create(team *models.Team) error {
	if err := team.Validate(); err != nil {
		return err
	}
	return r.db.Omit("Organization", "Members").Create(team).Error
}

func (r *teamRepository) GetByID(id uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.First(&team, id).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// GetByName finds an active team by name within one organization
func (r *teamRepository) GetByName(organizationID uint, name string) (*models.Team, error) {
	var team models.Team
	err := r.db.Where("organization_id = ? AND name = ? AND is_active = ?", organizationID, name, true).
		First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) Update(team *models.Team) error {
	return r.db.Omit("Organization", "Members").Save(team).Error
}

// ListByOrganization returns the active teams of an organization
func (r *teamRepository) ListByOrganization(organizationID uint) ([]models.Team, error) {
	var teams []models.Team
	err := r.db.Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("name").
		Find(&teams).Error
	return teams, err
}

// AddMember links a profile to a team
func (r *teamRepository) AddMember(teamID, profileID uint) error {
	team := models.Team{ID: teamID}
	return r.db.Model(&team).Association("Members").Append(&models.UserProfile{ID: profileID})
}
