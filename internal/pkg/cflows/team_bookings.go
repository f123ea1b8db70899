package cflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"github.com/ManuelReschke/MetaTask/internal/pkg/scheduling"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrTeamNotFound         = fmt.Errorf("team not found: %w", gorm.ErrRecordNotFound)
	ErrWorkItemNotFound     = fmt.Errorf("work item not found: %w", gorm.ErrRecordNotFound)
	ErrTeamBookingWindow    = errors.New("team booking must end after it starts")
	ErrTeamBookingTitle     = errors.New("team booking title is required")
	ErrTeamBookingNoMembers = errors.New("team booking needs at least one member")
)

// TeamBookingUpdate carries the changed fields of a team booking. Nil
// fields are left alone.
type TeamBookingUpdate struct {
	Title           *string
	Description     *string
	StartTime       *time.Time
	EndTime         *time.Time
	RequiredMembers *int
}

func (u TeamBookingUpdate) apply(tb *models.TeamBooking) {
	if u.Title != nil {
		tb.Title = *u.Title
	}
	if u.Description != nil {
		tb.Description = *u.Description
	}
	if u.StartTime != nil {
		tb.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		tb.EndTime = *u.EndTime
	}
	if u.RequiredMembers != nil {
		tb.RequiredMembers = *u.RequiredMembers
	}
}

func validateTeamBooking(tb *models.TeamBooking) error {
	tb.Title = strings.TrimSpace(tb.Title)
	switch {
	case tb.Title == "":
		return ErrTeamBookingTitle
	case !tb.EndTime.After(tb.StartTime):
		return ErrTeamBookingWindow
	case tb.RequiredMembers < 1:
		return ErrTeamBookingNoMembers
	}
	return nil
}

// CreateTeamBooking stores a new team booking for a team of the booking's
// organization and mirrors it into the scheduling store.
func (i *Integration) CreateTeamBooking(ctx context.Context, tb *models.TeamBooking) (*models.TeamBooking, error) {
	if tb.RequiredMembers == 0 {
		tb.RequiredMembers = 1
	}
	if err := validateTeamBooking(tb); err != nil {
		return nil, err
	}
	err := i.repo.Transaction(ctx, func(repo Repository) error {
		team, err := repo.GetTeam(ctx, tb.TeamID)
		if err != nil {
			if isNotFound(err) {
				return ErrTeamNotFound
			}
			return err
		}
		if team.OrganizationID != tb.OrganizationID {
			return ErrTeamNotFound
		}
		if tb.WorkItemID != nil {
			item, err := repo.GetWorkItem(ctx, *tb.WorkItemID)
			if err != nil && !isNotFound(err) {
				return err
			}
			if item == nil || item.OrganizationID != tb.OrganizationID {
				return ErrWorkItemNotFound
			}
		}
		tb.IsCompleted, tb.CompletedAt, tb.CompletedByID = false, nil, nil
		if err := repo.CreateTeamBooking(ctx, tb); err != nil {
			return fmt.Errorf("create team booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[CFlows] Team booking %d created for team %d", tb.ID, tb.TeamID)
	return i.mirror(ctx, tb.ID)
}

// UpdateTeamBooking changes a team booking of the organization and
// refreshes its scheduling mirror.
func (i *Integration) UpdateTeamBooking(ctx context.Context, organizationID, teamBookingID uint, upd TeamBookingUpdate) (*models.TeamBooking, error) {
	err := i.repo.Transaction(ctx, func(repo Repository) error {
		tb, err := organizationTeamBooking(ctx, repo, organizationID, teamBookingID)
		if err != nil {
			return err
		}
		upd.apply(tb)
		if err := validateTeamBooking(tb); err != nil {
			return err
		}
		if err := repo.SaveTeamBooking(ctx, tb); err != nil {
			return fmt.Errorf("save team booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return i.mirror(ctx, teamBookingID)
}

// DeleteTeamBooking removes a team booking of the organization together
// with its scheduling mirror. A team booking that was never mirrored is
// deleted all the same. The mirror goes first so a failure leaves both
// records in place.
func (i *Integration) DeleteTeamBooking(ctx context.Context, organizationID, teamBookingID uint) error {
	tb, err := organizationTeamBooking(ctx, i.repo, organizationID, teamBookingID)
	if err != nil {
		return err
	}
	if err := i.deleteMirror(ctx, tb); err != nil {
		recordSync(opMirrorDelete, err)
		return err
	}
	recordSync(opMirrorDelete, nil)

	err = i.repo.Transaction(ctx, func(repo Repository) error {
		if err := repo.DeleteTeamBooking(ctx, tb.ID); err != nil {
			if isNotFound(err) {
				return ErrTeamBookingNotFound
			}
			return fmt.Errorf("delete team booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("[CFlows] Team booking %d deleted", tb.ID)
	return nil
}

func organizationTeamBooking(ctx context.Context, repo Repository, organizationID, id uint) (*models.TeamBooking, error) {
	tb, err := repo.GetTeamBooking(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTeamBookingNotFound
		}
		return nil, err
	}
	if tb.OrganizationID != organizationID {
		return nil, ErrTeamBookingNotFound
	}
	return tb, nil
}

// mirror reloads the committed team booking and upserts its scheduling
// booking. A failed mirror is logged and left to sync-cflows-bookings.
func (i *Integration) mirror(ctx context.Context, teamBookingID uint) (*models.TeamBooking, error) {
	tb, err := i.repo.GetTeamBooking(ctx, teamBookingID)
	if err != nil {
		return nil, err
	}
	_, _, err = i.UpsertFromTeamBooking(ctx, tb)
	recordSync(opMirrorSave, err)
	if err != nil {
		log.Warnf("[CFlows] Team booking %d not mirrored: %v", tb.ID, err)
	}
	return tb, nil
}

func (i *Integration) deleteMirror(ctx context.Context, tb *models.TeamBooking) error {
	b, err := i.scheduler.FindBooking(ctx, scheduling.BookingFilter{
		OrganizationID:    &tb.OrganizationID,
		SourceService:     models.SourceServiceCFlows,
		SourceObjectTypes: models.TeamBookingSourceTypes,
		SourceObjectID:    teamBookingSourceID(tb),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	err = i.scheduler.DeleteMirroredBooking(ctx, b.ID)
	if isNotFound(err) {
		return nil
	}
	return err
}
