package repository

import (
	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// OrganizationRepository defines the interface for organization-related database operations
type OrganizationRepository interface {
	Create(org *models.Organization) error
	GetByID(id uint) (*models.Organization, error)
	GetByName(name string) (*models.Organization, error)
	Update(org *models.Organization) error
	List(offset, limit int) ([]models.Organization, error)
	Count() (int64, error)
	ListMembers(organizationID uint) ([]models.UserProfile, error)
}

// UserRepository defines the interface for user and profile database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	CreateProfile(profile *models.UserProfile) error
	GetProfile(id uint) (*models.UserProfile, error)
	GetActiveProfile(userID uint) (*models.UserProfile, error)
}

// TeamRepository defines the interface for team-related database operations
type TeamRepository interface {
	Create(team *models.Team) error
	GetByID(id uint) (*models.Team, error)
	GetByName(organizationID uint, name string) (*models.Team, error)
	Update(team *models.Team) error
	ListByOrganization(organizationID uint) ([]models.Team, error)
	AddMember(teamID, profileID uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Organization OrganizationRepository
	User         UserRepository
	Team         TeamRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Organization: NewOrganizationRepository(db),
		User:         NewUserRepository(db),
		Team:         NewTeamRepository(db),
	}
}
