package repository

import (
	"strings"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by their login name
func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *userRepository) CreateProfile(profile *models.UserProfile) error {
	return r.db.Omit("User", "Organization").Create(profile).Error
}

// GetProfile loads a profile together with its user and organization
func (r *userRepository) GetProfile(id uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.Preload("User").Preload("Organization").First(&profile, id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetActiveProfile returns the first active profile of a user
func (r *userRepository) GetActiveProfile(userID uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.Preload("User").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
