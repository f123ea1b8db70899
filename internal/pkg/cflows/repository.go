package cflows

import (
	"context"
	"errors"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the workflow-side DB operations.
type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error

	GetWorkItem(ctx context.Context, id uint) (*models.WorkItem, error)
	SaveWorkItem(ctx context.Context, item *models.WorkItem) error
	// FirstAutoTransition returns the first transition out of stepID that
	// does not require a booking, with ToStep loaded.
	FirstAutoTransition(ctx context.Context, stepID uint) (*models.WorkflowTransition, error)
	// ListTransitionsFrom returns every transition out of stepID with
	// ToStep loaded.
	ListTransitionsFrom(ctx context.Context, stepID uint) ([]models.WorkflowTransition, error)
	GetWorkflowStep(ctx context.Context, id uint) (*models.WorkflowStep, error)
	// ListVisitedSteps returns the steps a work item has been moved away
	// from, ordered by step order.
	ListVisitedSteps(ctx context.Context, workItemID uint) ([]models.WorkflowStep, error)
	CreateWorkItemHistory(ctx context.Context, entry *models.WorkItemHistory) error

	GetTeam(ctx context.Context, id uint) (*models.Team, error)

	GetTeamBooking(ctx context.Context, id uint) (*models.TeamBooking, error)
	// ListTeamBookings lists team bookings of an organization, or of all
	// organizations when organizationID is nil.
	ListTeamBookings(ctx context.Context, organizationID *uint) ([]models.TeamBooking, error)
	CreateTeamBooking(ctx context.Context, tb *models.TeamBooking) error
	SaveTeamBooking(ctx context.Context, tb *models.TeamBooking) error
	DeleteTeamBooking(ctx context.Context, id uint) error
	CountOpenTeamBookings(ctx context.Context, workItemID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetWorkItem(ctx context.Context, id uint) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := r.db.WithContext(ctx).Preload("CurrentStep").First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) SaveWorkItem(ctx context.Context, item *models.WorkItem) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(item).Error
}

func (r *gormRepository) FirstAutoTransition(ctx context.Context, stepID uint) (*models.WorkflowTransition, error) {
	var tr models.WorkflowTransition
	err := r.db.WithContext(ctx).
		Preload("ToStep").
		Where("from_step_id = ? AND requires_booking = ?", stepID, false).
		Order("id").
		First(&tr).Error
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (r *gormRepository) ListTransitionsFrom(ctx context.Context, stepID uint) ([]models.WorkflowTransition, error) {
	var out []models.WorkflowTransition
	err := r.db.WithContext(ctx).
		Preload("ToStep").
		Where("from_step_id = ?", stepID).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) GetWorkflowStep(ctx context.Context, id uint) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	if err := r.db.WithContext(ctx).First(&step, id).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *gormRepository) ListVisitedSteps(ctx context.Context, workItemID uint) ([]models.WorkflowStep, error) {
	visited := r.db.Model(&models.WorkItemHistory{}).
		Select("from_step_id").
		Where("work_item_id = ? AND from_step_id IS NOT NULL", workItemID)
	var out []models.WorkflowStep
	err := r.db.WithContext(ctx).
		Where("id IN (?)", visited).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateWorkItemHistory(ctx context.Context, entry *models.WorkItemHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).First(&team, id).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *gormRepository) teamBookings(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Team").
		Preload("WorkItem").
		Preload("WorkflowStep")
}

func (r *gormRepository) GetTeamBooking(ctx context.Context, id uint) (*models.TeamBooking, error) {
	var tb models.TeamBooking
	if err := r.teamBookings(ctx).First(&tb, id).Error; err != nil {
		return nil, err
	}
	return &tb, nil
}

func (r *gormRepository) ListTeamBookings(ctx context.Context, organizationID *uint) ([]models.TeamBooking, error) {
	q := r.teamBookings(ctx)
	if organizationID != nil {
		q = q.Where("organization_id = ?", *organizationID)
	}
	var out []models.TeamBooking
	err := q.Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) CreateTeamBooking(ctx context.Context, tb *models.TeamBooking) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(tb).Error
}

func (r *gormRepository) SaveTeamBooking(ctx context.Context, tb *models.TeamBooking) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(tb).Error
}

// DeleteTeamBooking removes the team booking; assignee rows go with it.
func (r *gormRepository) DeleteTeamBooking(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.TeamBooking{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) CountOpenTeamBookings(ctx context.Context, workItemID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.TeamBooking{}).
		Where("work_item_id = ? AND is_completed = ?", workItemID, false).
		Count(&n).Error
	return n, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
