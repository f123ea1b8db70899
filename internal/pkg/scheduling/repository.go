package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingFilter narrows booking queries. Zero fields are ignored.
type BookingFilter struct {
	OrganizationID *uint
	ResourceID     *uint
	Statuses       []string

	// OverlapStart/OverlapEnd select bookings intersecting the half-open
	// window: requested_start < OverlapEnd AND requested_end > OverlapStart.
	OverlapStart *time.Time
	OverlapEnd   *time.Time

	// StartFrom/StartUntil bound requested_start inclusively.
	StartFrom  *time.Time
	StartUntil *time.Time
	// StartAfter bounds requested_start exclusively.
	StartAfter *time.Time

	SourceService     string
	SourceObjectTypes []string
	SourceObjectID    string

	ExcludeID *uint
	Limit     int
}

// ResourceFilter narrows resource lookups. Zero fields are ignored.
type ResourceFilter struct {
	OrganizationID uint
	Name           string
	ResourceType   string
	LinkedTeamID   *uint
	ActiveOnly     bool
}

// Repository provides DB operations used by the scheduling service.
type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error

	GetResource(ctx context.Context, id uint) (*models.SchedulableResource, error)
	// LockResource loads the resource row FOR UPDATE.
	LockResource(ctx context.Context, id uint) (*models.SchedulableResource, error)
	FindResource(ctx context.Context, filter ResourceFilter) (*models.SchedulableResource, error)
	ListResources(ctx context.Context, filter ResourceFilter) ([]models.SchedulableResource, error)
	CreateResource(ctx context.Context, resource *models.SchedulableResource) error
	SaveResource(ctx context.Context, resource *models.SchedulableResource) error

	ListActiveRules(ctx context.Context, resourceID uint, ruleType string) ([]models.ResourceScheduleRule, error)
	CreateRule(ctx context.Context, rule *models.ResourceScheduleRule) error

	GetBooking(ctx context.Context, id uint) (*models.BookingRequest, error)
	FindBooking(ctx context.Context, filter BookingFilter) (*models.BookingRequest, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]models.BookingRequest, error)
	CountBookings(ctx context.Context, filter BookingFilter) (int64, error)
	CreateBooking(ctx context.Context, booking *models.BookingRequest) error
	SaveBooking(ctx context.Context, booking *models.BookingRequest) error
	DeleteBooking(ctx context.Context, id uint) error

	GetProfile(ctx context.Context, id uint) (*models.UserProfile, error)
	GetTeam(ctx context.Context, id uint) (*models.Team, error)
	ListActiveTeams(ctx context.Context, organizationID uint) ([]models.Team, error)
	SaveTeam(ctx context.Context, team *models.Team) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a scheduling repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetResource(ctx context.Context, id uint) (*models.SchedulableResource, error) {
	var res models.SchedulableResource
	if err := r.db.WithContext(ctx).Preload("LinkedTeam").First(&res, id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *gormRepository) LockResource(ctx context.Context, id uint) (*models.SchedulableResource, error) {
	var res models.SchedulableResource
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *gormRepository) resourceQuery(ctx context.Context, f ResourceFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Where("organization_id = ?", f.OrganizationID)
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.LinkedTeamID != nil {
		q = q.Where("linked_team_id = ?", *f.LinkedTeamID)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	return q
}

func (r *gormRepository) FindResource(ctx context.Context, filter ResourceFilter) (*models.SchedulableResource, error) {
	var res models.SchedulableResource
	if err := r.resourceQuery(ctx, filter).Order("id").First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *gormRepository) ListResources(ctx context.Context, filter ResourceFilter) ([]models.SchedulableResource, error) {
	var out []models.SchedulableResource
	err := r.resourceQuery(ctx, filter).Order("name").Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateResource(ctx context.Context, resource *models.SchedulableResource) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(resource).Error
}

func (r *gormRepository) SaveResource(ctx context.Context, resource *models.SchedulableResource) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(resource).Error
}

func (r *gormRepository) ListActiveRules(ctx context.Context, resourceID uint, ruleType string) ([]models.ResourceScheduleRule, error) {
	var out []models.ResourceScheduleRule
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND rule_type = ? AND is_active = ?", resourceID, ruleType, true).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateRule(ctx context.Context, rule *models.ResourceScheduleRule) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(rule).Error
}

func (r *gormRepository) bookingQuery(ctx context.Context, f BookingFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.BookingRequest{})
	if f.OrganizationID != nil {
		q = q.Where("organization_id = ?", *f.OrganizationID)
	}
	if f.ResourceID != nil {
		q = q.Where("resource_id = ?", *f.ResourceID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.OverlapEnd != nil {
		q = q.Where("requested_start < ?", *f.OverlapEnd)
	}
	if f.OverlapStart != nil {
		q = q.Where("requested_end > ?", *f.OverlapStart)
	}
	if f.StartFrom != nil {
		q = q.Where("requested_start >= ?", *f.StartFrom)
	}
	if f.StartUntil != nil {
		q = q.Where("requested_start <= ?", *f.StartUntil)
	}
	if f.StartAfter != nil {
		q = q.Where("requested_start > ?", *f.StartAfter)
	}
	if f.SourceService != "" {
		q = q.Where("source_service = ?", f.SourceService)
	}
	if len(f.SourceObjectTypes) > 0 {
		q = q.Where("source_object_type IN ?", f.SourceObjectTypes)
	}
	if f.SourceObjectID != "" {
		q = q.Where("source_object_id = ?", f.SourceObjectID)
	}
	if f.ExcludeID != nil {
		q = q.Where("id <> ?", *f.ExcludeID)
	}
	return q
}

func (r *gormRepository) withBookingAssociations(q *gorm.DB) *gorm.DB {
	return q.Preload("Resource").
		Preload("RequestedBy.User").
		Preload("CompletedBy.User")
}

func (r *gormRepository) GetBooking(ctx context.Context, id uint) (*models.BookingRequest, error) {
	var b models.BookingRequest
	if err := r.withBookingAssociations(r.db.WithContext(ctx)).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) FindBooking(ctx context.Context, filter BookingFilter) (*models.BookingRequest, error) {
	var b models.BookingRequest
	err := r.withBookingAssociations(r.bookingQuery(ctx, filter)).Order("id").First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) ListBookings(ctx context.Context, filter BookingFilter) ([]models.BookingRequest, error) {
	q := r.withBookingAssociations(r.bookingQuery(ctx, filter)).Order("requested_start, id")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []models.BookingRequest
	err := q.Find(&out).Error
	return out, err
}

func (r *gormRepository) CountBookings(ctx context.Context, filter BookingFilter) (int64, error) {
	var n int64
	err := r.bookingQuery(ctx, filter).Count(&n).Error
	return n, err
}

func (r *gormRepository) CreateBooking(ctx context.Context, booking *models.BookingRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(booking).Error
}

func (r *gormRepository) SaveBooking(ctx context.Context, booking *models.BookingRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(booking).Error
}

// DeleteBooking removes the booking; assignee rows go with it.
func (r *gormRepository) DeleteBooking(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.BookingRequest{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) GetProfile(ctx context.Context, id uint) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := r.db.WithContext(ctx).Preload("User").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var t models.Team
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) ListActiveTeams(ctx context.Context, organizationID uint) ([]models.Team, error) {
	var out []models.Team
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("name").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) SaveTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(team).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func wrapNotFound(err error, sentinel error) error {
	if isNotFound(err) {
		return sentinel
	}
	return fmt.Errorf("scheduling: %w", err)
}
