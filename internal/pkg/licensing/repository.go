package licensing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditFilter narrows ListAuditLogs. Zero fields are ignored.
type AuditFilter struct {
	LicenseID       *uint
	CustomLicenseID *uint
	PerformedByID   *uint
	Action          string
	Limit           int
}

// Repository provides DB operations used by the licensing service.
type Repository interface {
	// Transaction runs fn against a repository bound to one DB transaction.
	Transaction(ctx context.Context, fn func(Repository) error) error

	GetLicense(ctx context.Context, id uint) (*models.License, error)
	LockLicense(ctx context.Context, id uint) (*models.License, error)
	FindLicense(ctx context.Context, organizationID, licenseTypeID uint) (*models.License, error)
	CreateLicense(ctx context.Context, license *models.License) error
	UpdateLicenseUsers(ctx context.Context, licenseID uint, currentUsers int) error
	ListStandardLicenses(ctx context.Context, organizationID uint, serviceID *uint) ([]models.License, error)
	ListEntitlingLicensesForService(ctx context.Context, organizationID, serviceID uint) ([]models.License, error)

	GetCustomLicense(ctx context.Context, id uint) (*models.CustomLicense, error)
	CreateCustomLicense(ctx context.Context, custom *models.CustomLicense) error
	SaveCustomLicense(ctx context.Context, custom *models.CustomLicense) error
	ListActiveCustomLicenses(ctx context.Context, organizationID uint, serviceID *uint) ([]models.CustomLicense, error)

	CountActiveAssignments(ctx context.Context, licenseID uint) (int64, error)
	CountCustomAssignments(ctx context.Context, customLicenseID uint) (int64, error)
	FindActiveAssignmentForService(ctx context.Context, profileID, serviceID uint) (*models.UserLicenseAssignment, error)
	CreateAssignment(ctx context.Context, assignment *models.UserLicenseAssignment) error
	GetAssignment(ctx context.Context, id uint) (*models.UserLicenseAssignment, error)
	// LockAssignment loads the assignment row FOR UPDATE.
	LockAssignment(ctx context.Context, id uint) (*models.UserLicenseAssignment, error)
	SaveAssignment(ctx context.Context, assignment *models.UserLicenseAssignment) error
	ListActiveAssignmentsForProfile(ctx context.Context, profileID uint) ([]models.UserLicenseAssignment, error)

	CreateAuditLog(ctx context.Context, entry *models.LicenseAuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]models.LicenseAuditLog, error)
	CreateUsageLog(ctx context.Context, entry *models.LicenseUsageLog) error

	GetServiceBySlug(ctx context.Context, slug string) (*models.Service, error)
	UpsertService(ctx context.Context, service *models.Service) error
	GetLicenseType(ctx context.Context, serviceID uint, name string) (*models.LicenseType, error)
	FirstOrCreateLicenseType(ctx context.Context, licenseType *models.LicenseType) (bool, error)

	FindActiveProfile(ctx context.Context, userID uint) (*models.UserProfile, error)
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	FirstOrCreateOrganization(ctx context.Context, org *models.Organization) error
	CreateProfile(ctx context.Context, profile *models.UserProfile) error
	ListPersonalOrganizations(ctx context.Context) ([]models.Organization, error)
	CountOrganizationMembers(ctx context.Context, organizationID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a licensing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) licenseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("LicenseType.Service").
		Preload("CustomLicense.Service")
}

func (r *gormRepository) GetLicense(ctx context.Context, id uint) (*models.License, error) {
	var l models.License
	if err := r.licenseQuery(ctx).First(&l, id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *gormRepository) LockLicense(ctx context.Context, id uint) (*models.License, error) {
	var l models.License
	err := r.licenseQuery(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *gormRepository) FindLicense(ctx context.Context, organizationID, licenseTypeID uint) (*models.License, error) {
	var l models.License
	err := r.licenseQuery(ctx).
		Where("organization_id = ? AND license_type_id = ?", organizationID, licenseTypeID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *gormRepository) CreateLicense(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

func (r *gormRepository) UpdateLicenseUsers(ctx context.Context, licenseID uint, currentUsers int) error {
	return r.db.WithContext(ctx).Model(&models.License{}).
		Where("id = ?", licenseID).
		Update("current_users", currentUsers).Error
}

func (r *gormRepository) ListStandardLicenses(ctx context.Context, organizationID uint, serviceID *uint) ([]models.License, error) {
	q := r.licenseQuery(ctx).
		Where("licenses.organization_id = ? AND licenses.custom_license_id IS NULL AND licenses.status IN ?",
			organizationID, models.EntitlingLicenseStatuses)
	if serviceID != nil {
		q = q.Joins("JOIN license_types ON license_types.id = licenses.license_type_id").
			Where("license_types.service_id = ?", *serviceID)
	}
	var out []models.License
	err := q.Order("licenses.id").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListEntitlingLicensesForService(ctx context.Context, organizationID, serviceID uint) ([]models.License, error) {
	var out []models.License
	err := r.licenseQuery(ctx).
		Joins("JOIN license_types ON license_types.id = licenses.license_type_id").
		Where("licenses.organization_id = ? AND license_types.service_id = ? AND licenses.status IN ?",
			organizationID, serviceID, models.EntitlingLicenseStatuses).
		Order("licenses.id").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) GetCustomLicense(ctx context.Context, id uint) (*models.CustomLicense, error) {
	var c models.CustomLicense
	err := r.db.WithContext(ctx).
		Preload("Service").
		Preload("LicenseInstance").
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) CreateCustomLicense(ctx context.Context, custom *models.CustomLicense) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(custom).Error
}

func (r *gormRepository) SaveCustomLicense(ctx context.Context, custom *models.CustomLicense) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(custom).Error
}

func (r *gormRepository) ListActiveCustomLicenses(ctx context.Context, organizationID uint, serviceID *uint) ([]models.CustomLicense, error) {
	q := r.db.WithContext(ctx).
		Preload("Service").
		Preload("LicenseInstance").
		Where("organization_id = ? AND is_active = ?", organizationID, true)
	if serviceID != nil {
		q = q.Where("service_id = ?", *serviceID)
	}
	var out []models.CustomLicense
	err := q.Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) CountActiveAssignments(ctx context.Context, licenseID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UserLicenseAssignment{}).
		Where("license_id = ? AND is_active = ?", licenseID, true).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CountCustomAssignments(ctx context.Context, customLicenseID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UserLicenseAssignment{}).
		Joins("JOIN licenses ON licenses.id = user_license_assignments.license_id").
		Where("licenses.custom_license_id = ? AND user_license_assignments.is_active = ?", customLicenseID, true).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) FindActiveAssignmentForService(ctx context.Context, profileID, serviceID uint) (*models.UserLicenseAssignment, error) {
	var a models.UserLicenseAssignment
	err := r.db.WithContext(ctx).
		Joins("JOIN licenses ON licenses.id = user_license_assignments.license_id").
		Joins("JOIN license_types ON license_types.id = licenses.license_type_id").
		Where("user_license_assignments.user_profile_id = ? AND user_license_assignments.is_active = ? AND license_types.service_id = ?",
			profileID, true, serviceID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) CreateAssignment(ctx context.Context, assignment *models.UserLicenseAssignment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(assignment).Error
}

func (r *gormRepository) GetAssignment(ctx context.Context, id uint) (*models.UserLicenseAssignment, error) {
	var a models.UserLicenseAssignment
	err := r.db.WithContext(ctx).
		Preload("License.LicenseType.Service").
		Preload("License.CustomLicense.Service").
		Preload("UserProfile").
		First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) LockAssignment(ctx context.Context, id uint) (*models.UserLicenseAssignment, error) {
	var a models.UserLicenseAssignment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) SaveAssignment(ctx context.Context, assignment *models.UserLicenseAssignment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(assignment).Error
}

func (r *gormRepository) ListActiveAssignmentsForProfile(ctx context.Context, profileID uint) ([]models.UserLicenseAssignment, error) {
	var out []models.UserLicenseAssignment
	err := r.db.WithContext(ctx).
		Preload("License.LicenseType.Service").
		Preload("License.CustomLicense.Service").
		Joins("JOIN licenses ON licenses.id = user_license_assignments.license_id").
		Where("user_license_assignments.user_profile_id = ? AND user_license_assignments.is_active = ? AND licenses.status IN ?",
			profileID, true, models.EntitlingLicenseStatuses).
		Order("user_license_assignments.id").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateAuditLog(ctx context.Context, entry *models.LicenseAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]models.LicenseAuditLog, error) {
	q := r.db.WithContext(ctx).Model(&models.LicenseAuditLog{})
	if filter.LicenseID != nil {
		q = q.Where("license_id = ?", *filter.LicenseID)
	}
	if filter.CustomLicenseID != nil {
		q = q.Where("custom_license_id = ?", *filter.CustomLicenseID)
	}
	if filter.PerformedByID != nil {
		q = q.Where("performed_by_id = ?", *filter.PerformedByID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []models.LicenseAuditLog
	err := q.Order("timestamp DESC, id DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateUsageLog(ctx context.Context, entry *models.LicenseUsageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) GetServiceBySlug(ctx context.Context, slug string) (*models.Service, error) {
	var s models.Service
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertService inserts the service or refreshes its presentation fields,
// keyed by slug.
func (r *gormRepository) UpsertService(ctx context.Context, service *models.Service) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"icon",
			"color",
			"sort_order",
			"is_active",
			"personal_free_limits",
			"updated_at",
		}),
	}).Create(service).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("slug = ?", service.Slug).First(service).Error
}

func (r *gormRepository) GetLicenseType(ctx context.Context, serviceID uint, name string) (*models.LicenseType, error) {
	var lt models.LicenseType
	err := r.db.WithContext(ctx).Preload("Service").
		Where("service_id = ? AND name = ?", serviceID, name).
		First(&lt).Error
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

// FirstOrCreateLicenseType loads the (service, name) tier into licenseType
// or inserts it. It reports whether a row was created.
func (r *gormRepository) FirstOrCreateLicenseType(ctx context.Context, licenseType *models.LicenseType) (bool, error) {
	existing, err := r.GetLicenseType(ctx, licenseType.ServiceID, licenseType.Name)
	if err == nil {
		*licenseType = *existing
		return false, nil
	}
	if !isNotFound(err) {
		return false, err
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(licenseType).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *gormRepository) FindActiveProfile(ctx context.Context, userID uint) (*models.UserProfile, error) {
	var p models.UserProfile
	err := r.db.WithContext(ctx).Preload("Organization").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FirstOrCreateOrganization(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).
		Where("name = ?", org.Name).
		Attrs(*org).
		FirstOrCreate(org).Error
}

func (r *gormRepository) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(profile).Error
}

func (r *gormRepository) ListPersonalOrganizations(ctx context.Context) ([]models.Organization, error) {
	var out []models.Organization
	err := r.db.WithContext(ctx).
		Where("organization_type = ?", models.OrganizationTypePersonal).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CountOrganizationMembers(ctx context.Context, organizationID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Count(&n).Error
	return n, err
}

// isNotFound reports whether err is a missing-row error.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// wrapNotFound maps gorm's not-found onto the package sentinel.
func wrapNotFound(err error, sentinel error) error {
	if isNotFound(err) {
		return sentinel
	}
	return fmt.Errorf("licensing: %w", err)
}
