package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// memRepo is an in-memory Repository used by the service tests.
type memRepo struct {
	resources map[uint]*models.SchedulableResource
	rules     map[uint]*models.ResourceScheduleRule
	bookings  map[uint]*models.BookingRequest
	profiles  map[uint]*models.UserProfile
	teams     map[uint]*models.Team
	nextID    uint
	locks     int
}

func newMemRepo() *memRepo {
	return &memRepo{
		resources: map[uint]*models.SchedulableResource{},
		rules:     map[uint]*models.ResourceScheduleRule{},
		bookings:  map[uint]*models.BookingRequest{},
		profiles:  map[uint]*models.UserProfile{},
		teams:     map[uint]*models.Team{},
	}
}

func (r *memRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *memRepo) Transaction(_ context.Context, fn func(Repository) error) error {
	return fn(r)
}

func copyResource(res *models.SchedulableResource) *models.SchedulableResource {
	cp := *res
	return &cp
}

func (r *memRepo) GetResource(_ context.Context, id uint) (*models.SchedulableResource, error) {
	res, ok := r.resources[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := copyResource(res)
	if cp.LinkedTeamID != nil {
		if t, ok := r.teams[*cp.LinkedTeamID]; ok {
			team := *t
			cp.LinkedTeam = &team
		}
	}
	return cp, nil
}

func (r *memRepo) LockResource(ctx context.Context, id uint) (*models.SchedulableResource, error) {
	r.locks++
	res, ok := r.resources[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyResource(res), nil
}

func (r *memRepo) matchResource(res *models.SchedulableResource, f ResourceFilter) bool {
	if res.OrganizationID != f.OrganizationID {
		return false
	}
	if f.Name != "" && res.Name != f.Name {
		return false
	}
	if f.ResourceType != "" && res.ResourceType != f.ResourceType {
		return false
	}
	if f.LinkedTeamID != nil && (res.LinkedTeamID == nil || *res.LinkedTeamID != *f.LinkedTeamID) {
		return false
	}
	if f.ActiveOnly && !res.IsActive {
		return false
	}
	return true
}

func (r *memRepo) FindResource(_ context.Context, f ResourceFilter) (*models.SchedulableResource, error) {
	for _, id := range sortedKeys(r.resources) {
		if r.matchResource(r.resources[id], f) {
			return copyResource(r.resources[id]), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) ListResources(_ context.Context, f ResourceFilter) ([]models.SchedulableResource, error) {
	var out []models.SchedulableResource
	for _, id := range sortedKeys(r.resources) {
		if r.matchResource(r.resources[id], f) {
			out = append(out, *r.resources[id])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) CreateResource(_ context.Context, res *models.SchedulableResource) error {
	res.ID = r.id()
	r.resources[res.ID] = copyResource(res)
	return nil
}

func (r *memRepo) SaveResource(_ context.Context, res *models.SchedulableResource) error {
	cp := copyResource(res)
	cp.LinkedTeam = nil
	r.resources[res.ID] = cp
	return nil
}

func (r *memRepo) ListActiveRules(_ context.Context, resourceID uint, ruleType string) ([]models.ResourceScheduleRule, error) {
	var out []models.ResourceScheduleRule
	for _, id := range sortedKeys(r.rules) {
		rule := r.rules[id]
		if rule.ResourceID == resourceID && rule.RuleType == ruleType && rule.IsActive {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (r *memRepo) CreateRule(_ context.Context, rule *models.ResourceScheduleRule) error {
	rule.ID = r.id()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *memRepo) copyBooking(b *models.BookingRequest) *models.BookingRequest {
	cp := *b
	cp.CustomData = map[string]any{}
	for k, v := range b.CustomData {
		cp.CustomData[k] = v
	}
	if res, ok := r.resources[b.ResourceID]; ok {
		cp.Resource = copyResource(res)
	}
	if b.RequestedByID != nil {
		cp.RequestedBy = r.profiles[*b.RequestedByID]
	}
	if b.CompletedByID != nil {
		cp.CompletedBy = r.profiles[*b.CompletedByID]
	}
	return &cp
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func matchBooking(b *models.BookingRequest, f BookingFilter) bool {
	switch {
	case f.OrganizationID != nil && b.OrganizationID != *f.OrganizationID:
		return false
	case f.ResourceID != nil && b.ResourceID != *f.ResourceID:
		return false
	case len(f.Statuses) > 0 && !containsString(f.Statuses, b.Status):
		return false
	case f.OverlapEnd != nil && !b.RequestedStart.Before(*f.OverlapEnd):
		return false
	case f.OverlapStart != nil && !b.RequestedEnd.After(*f.OverlapStart):
		return false
	case f.StartFrom != nil && b.RequestedStart.Before(*f.StartFrom):
		return false
	case f.StartUntil != nil && b.RequestedStart.After(*f.StartUntil):
		return false
	case f.StartAfter != nil && !b.RequestedStart.After(*f.StartAfter):
		return false
	case f.SourceService != "" && b.SourceService != f.SourceService:
		return false
	case len(f.SourceObjectTypes) > 0 && !containsString(f.SourceObjectTypes, b.SourceObjectType):
		return false
	case f.SourceObjectID != "" && b.SourceObjectID != f.SourceObjectID:
		return false
	case f.ExcludeID != nil && b.ID == *f.ExcludeID:
		return false
	}
	return true
}

func (r *memRepo) GetBooking(_ context.Context, id uint) (*models.BookingRequest, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.copyBooking(b), nil
}

func (r *memRepo) FindBooking(_ context.Context, f BookingFilter) (*models.BookingRequest, error) {
	for _, id := range sortedKeys(r.bookings) {
		if matchBooking(r.bookings[id], f) {
			return r.copyBooking(r.bookings[id]), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) ListBookings(_ context.Context, f BookingFilter) ([]models.BookingRequest, error) {
	var out []models.BookingRequest
	for _, id := range sortedKeys(r.bookings) {
		if matchBooking(r.bookings[id], f) {
			out = append(out, *r.copyBooking(r.bookings[id]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestedStart.Before(out[j].RequestedStart) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) CountBookings(ctx context.Context, f BookingFilter) (int64, error) {
	var n int64
	for _, b := range r.bookings {
		if matchBooking(b, f) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CreateBooking(_ context.Context, b *models.BookingRequest) error {
	b.EnsureUUID()
	b.ID = r.id()
	cp := r.copyBooking(b)
	cp.Resource, cp.RequestedBy, cp.CompletedBy = nil, nil, nil
	r.bookings[b.ID] = cp
	return nil
}

func (r *memRepo) SaveBooking(_ context.Context, b *models.BookingRequest) error {
	cp := r.copyBooking(b)
	cp.Resource, cp.RequestedBy, cp.CompletedBy = nil, nil, nil
	r.bookings[b.ID] = cp
	return nil
}

func (r *memRepo) DeleteBooking(_ context.Context, id uint) error {
	if _, ok := r.bookings[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *memRepo) GetProfile(_ context.Context, id uint) (*models.UserProfile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetTeam(_ context.Context, id uint) (*models.Team, error) {
	t, ok := r.teams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) ListActiveTeams(_ context.Context, organizationID uint) ([]models.Team, error) {
	var out []models.Team
	for _, id := range sortedKeys(r.teams) {
		if t := r.teams[id]; t.OrganizationID == organizationID && t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memRepo) SaveTeam(_ context.Context, t *models.Team) error {
	cp := *t
	r.teams[t.ID] = &cp
	return nil
}

// Seeding helpers.

func (r *memRepo) addResource(orgID uint, name string, capacity int) *models.SchedulableResource {
	res := &models.SchedulableResource{
		OrganizationID:         orgID,
		Name:                   name,
		ResourceType:           models.ResourceTypeRoom,
		MaxConcurrentBookings:  capacity,
		DefaultBookingDuration: models.DefaultBookingDuration,
		AvailabilityRules:      models.DefaultAvailabilityRules(),
		ServiceType:            models.DefaultResourceServiceType,
		IsActive:               true,
	}
	res.ID = r.id()
	r.resources[res.ID] = res
	return copyResource(res)
}

func (r *memRepo) addRule(rule models.ResourceScheduleRule) {
	rule.ID = r.id()
	rule.IsActive = true
	r.rules[rule.ID] = &rule
}

func (r *memRepo) addBooking(res *models.SchedulableResource, start, end time.Time, status string) *models.BookingRequest {
	b := &models.BookingRequest{
		OrganizationID:   res.OrganizationID,
		ResourceID:       res.ID,
		Title:            "Existing",
		RequestedStart:   start,
		RequestedEnd:     end,
		RequiredCapacity: 1,
		Status:           status,
		Priority:         models.PriorityNormal,
		SourceService:    models.SourceServiceScheduling,
		SourceObjectType: models.SourceObjectBooking,
	}
	b.EnsureUUID()
	b.ID = r.id()
	r.bookings[b.ID] = b
	return r.copyBooking(b)
}

func (r *memRepo) addProfile(first, last string) *models.UserProfile {
	p := &models.UserProfile{
		OrganizationID: 1,
		IsActive:       true,
		User:           &models.User{Username: first, FirstName: first, LastName: last},
	}
	p.ID = r.id()
	r.profiles[p.ID] = p
	return p
}

func (r *memRepo) addTeam(orgID uint, name string, capacity int) *models.Team {
	t := &models.Team{OrganizationID: orgID, Name: name, DefaultCapacity: capacity, IsActive: true}
	t.ID = r.id()
	r.teams[t.ID] = t
	cp := *t
	return &cp
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
