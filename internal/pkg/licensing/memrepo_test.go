package licensing

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuelReschke/MetaTask/app/models"
	"gorm.io/gorm"
)

// memRepo is an in-memory Repository. Reads hand out copies with the
// same associations the GORM implementation preloads.
type memRepo struct {
	mu     sync.Mutex
	nextID uint

	users         map[uint]*models.User
	organizations map[uint]*models.Organization
	profiles      map[uint]*models.UserProfile
	services      map[uint]*models.Service
	licenseTypes  map[uint]*models.LicenseType
	licenses      map[uint]*models.License
	customs       map[uint]*models.CustomLicense
	assignments   map[uint]*models.UserLicenseAssignment
	audits        []models.LicenseAuditLog
	usage         []models.LicenseUsageLog

	// onLockLicense runs once before the next LockLicense, standing in
	// for a transaction that commits while the caller waits on the lock.
	onLockLicense func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:         map[uint]*models.User{},
		organizations: map[uint]*models.Organization{},
		profiles:      map[uint]*models.UserProfile{},
		services:      map[uint]*models.Service{},
		licenseTypes:  map[uint]*models.LicenseType{},
		licenses:      map[uint]*models.License{},
		customs:       map[uint]*models.CustomLicense{},
		assignments:   map[uint]*models.UserLicenseAssignment{},
	}
}

func (r *memRepo) id() uint {
	r.nextID++
	return r.nextID
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (r *memRepo) Transaction(_ context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *memRepo) serviceCopy(id uint) *models.Service {
	s, ok := r.services[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *memRepo) licenseTypeCopy(id uint) *models.LicenseType {
	lt, ok := r.licenseTypes[id]
	if !ok {
		return nil
	}
	cp := *lt
	cp.Service = r.serviceCopy(lt.ServiceID)
	return &cp
}

func (r *memRepo) licenseCopy(l *models.License) *models.License {
	cp := *l
	cp.LicenseType = r.licenseTypeCopy(l.LicenseTypeID)
	cp.CustomLicense = nil
	if l.CustomLicenseID != nil {
		if c, ok := r.customs[*l.CustomLicenseID]; ok {
			cc := *c
			cc.Service = r.serviceCopy(c.ServiceID)
			cc.LicenseInstance = nil
			cp.CustomLicense = &cc
		}
	}
	return &cp
}

func (r *memRepo) customCopy(c *models.CustomLicense) *models.CustomLicense {
	cp := *c
	cp.Service = r.serviceCopy(c.ServiceID)
	cp.LicenseInstance = nil
	for _, id := range sortedKeys(r.licenses) {
		l := r.licenses[id]
		if l.CustomLicenseID != nil && *l.CustomLicenseID == c.ID {
			lc := *l
			lc.LicenseType, lc.CustomLicense = nil, nil
			cp.LicenseInstance = &lc
			break
		}
	}
	return &cp
}

func (r *memRepo) serviceOf(l *models.License) uint {
	if lt, ok := r.licenseTypes[l.LicenseTypeID]; ok {
		return lt.ServiceID
	}
	return 0
}

func entitling(status string) bool {
	for _, s := range models.EntitlingLicenseStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *memRepo) GetLicense(_ context.Context, id uint) (*models.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.licenses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.licenseCopy(l), nil
}

func (r *memRepo) LockLicense(ctx context.Context, id uint) (*models.License, error) {
	if hook := r.onLockLicense; hook != nil {
		r.onLockLicense = nil
		hook()
	}
	return r.GetLicense(ctx, id)
}

func (r *memRepo) FindLicense(_ context.Context, organizationID, licenseTypeID uint) (*models.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.licenses) {
		l := r.licenses[id]
		if l.OrganizationID == organizationID && l.LicenseTypeID == licenseTypeID {
			return r.licenseCopy(l), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateLicense(_ context.Context, license *models.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	license.ID = r.id()
	cp := *license
	cp.LicenseType, cp.CustomLicense, cp.Organization = nil, nil, nil
	r.licenses[cp.ID] = &cp
	return nil
}

func (r *memRepo) UpdateLicenseUsers(_ context.Context, licenseID uint, currentUsers int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.licenses[licenseID]; ok {
		l.CurrentUsers = currentUsers
	}
	return nil
}

func (r *memRepo) ListStandardLicenses(_ context.Context, organizationID uint, serviceID *uint) ([]models.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.License
	for _, id := range sortedKeys(r.licenses) {
		l := r.licenses[id]
		if l.OrganizationID != organizationID || l.CustomLicenseID != nil || !entitling(l.Status) {
			continue
		}
		if serviceID != nil && r.serviceOf(l) != *serviceID {
			continue
		}
		out = append(out, *r.licenseCopy(l))
	}
	return out, nil
}

func (r *memRepo) ListEntitlingLicensesForService(_ context.Context, organizationID, serviceID uint) ([]models.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.License
	for _, id := range sortedKeys(r.licenses) {
		l := r.licenses[id]
		if l.OrganizationID == organizationID && r.serviceOf(l) == serviceID && entitling(l.Status) {
			out = append(out, *r.licenseCopy(l))
		}
	}
	return out, nil
}

func (r *memRepo) GetCustomLicense(_ context.Context, id uint) (*models.CustomLicense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.customCopy(c), nil
}

func (r *memRepo) CreateCustomLicense(_ context.Context, custom *models.CustomLicense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	custom.ID = r.id()
	cp := *custom
	cp.Service, cp.LicenseInstance, cp.Organization = nil, nil, nil
	r.customs[cp.ID] = &cp
	return nil
}

func (r *memRepo) SaveCustomLicense(_ context.Context, custom *models.CustomLicense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *custom
	cp.Service, cp.LicenseInstance, cp.Organization = nil, nil, nil
	r.customs[cp.ID] = &cp
	return nil
}

func (r *memRepo) ListActiveCustomLicenses(_ context.Context, organizationID uint, serviceID *uint) ([]models.CustomLicense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CustomLicense
	for _, id := range sortedKeys(r.customs) {
		c := r.customs[id]
		if c.OrganizationID != organizationID || !c.IsActive {
			continue
		}
		if serviceID != nil && c.ServiceID != *serviceID {
			continue
		}
		out = append(out, *r.customCopy(c))
	}
	return out, nil
}

func (r *memRepo) CountActiveAssignments(_ context.Context, licenseID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.assignments {
		if a.LicenseID == licenseID && a.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountCustomAssignments(_ context.Context, customLicenseID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.assignments {
		l, ok := r.licenses[a.LicenseID]
		if ok && a.IsActive && l.CustomLicenseID != nil && *l.CustomLicenseID == customLicenseID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) FindActiveAssignmentForService(_ context.Context, profileID, serviceID uint) (*models.UserLicenseAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.assignments) {
		a := r.assignments[id]
		if a.UserProfileID != profileID || !a.IsActive {
			continue
		}
		if l, ok := r.licenses[a.LicenseID]; ok && r.serviceOf(l) == serviceID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateAssignment(_ context.Context, assignment *models.UserLicenseAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment.ID = r.id()
	cp := *assignment
	cp.License, cp.UserProfile = nil, nil
	r.assignments[cp.ID] = &cp
	return nil
}

func (r *memRepo) GetAssignment(_ context.Context, id uint) (*models.UserLicenseAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	if l, ok := r.licenses[a.LicenseID]; ok {
		cp.License = r.licenseCopy(l)
	}
	return &cp, nil
}

func (r *memRepo) LockAssignment(_ context.Context, id uint) (*models.UserLicenseAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) SaveAssignment(_ context.Context, assignment *models.UserLicenseAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *assignment
	cp.License, cp.UserProfile = nil, nil
	r.assignments[cp.ID] = &cp
	return nil
}

func (r *memRepo) ListActiveAssignmentsForProfile(_ context.Context, profileID uint) ([]models.UserLicenseAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserLicenseAssignment
	for _, id := range sortedKeys(r.assignments) {
		a := r.assignments[id]
		if a.UserProfileID != profileID || !a.IsActive {
			continue
		}
		l, ok := r.licenses[a.LicenseID]
		if !ok || !entitling(l.Status) {
			continue
		}
		cp := *a
		cp.License = r.licenseCopy(l)
		out = append(out, cp)
	}
	return out, nil
}

func (r *memRepo) CreateAuditLog(_ context.Context, entry *models.LicenseAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.id()
	r.audits = append(r.audits, *entry)
	return nil
}

func (r *memRepo) ListAuditLogs(_ context.Context, filter AuditFilter) ([]models.LicenseAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LicenseAuditLog
	for i := len(r.audits) - 1; i >= 0; i-- {
		e := r.audits[i]
		if filter.LicenseID != nil && (e.LicenseID == nil || *e.LicenseID != *filter.LicenseID) {
			continue
		}
		if filter.CustomLicenseID != nil && (e.CustomLicenseID == nil || *e.CustomLicenseID != *filter.CustomLicenseID) {
			continue
		}
		if filter.PerformedByID != nil && (e.PerformedByID == nil || *e.PerformedByID != *filter.PerformedByID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) CreateUsageLog(_ context.Context, entry *models.LicenseUsageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.id()
	r.usage = append(r.usage, *entry)
	return nil
}

func (r *memRepo) GetServiceBySlug(_ context.Context, slug string) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.services) {
		if r.services[id].Slug == slug {
			return r.serviceCopy(id), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) UpsertService(_ context.Context, service *models.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.services {
		if s.Slug == service.Slug {
			s.Icon, s.Color, s.SortOrder, s.IsActive = service.Icon, service.Color, service.SortOrder, service.IsActive
			s.PersonalFreeLimits = service.PersonalFreeLimits
			*service = *s
			return nil
		}
	}
	service.ID = r.id()
	cp := *service
	r.services[cp.ID] = &cp
	return nil
}

func (r *memRepo) GetLicenseType(_ context.Context, serviceID uint, name string) (*models.LicenseType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.licenseTypes) {
		lt := r.licenseTypes[id]
		if lt.ServiceID == serviceID && lt.Name == name {
			return r.licenseTypeCopy(id), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) FirstOrCreateLicenseType(ctx context.Context, licenseType *models.LicenseType) (bool, error) {
	if existing, err := r.GetLicenseType(ctx, licenseType.ServiceID, licenseType.Name); err == nil {
		*licenseType = *existing
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	licenseType.ID = r.id()
	cp := *licenseType
	cp.Service = nil
	r.licenseTypes[cp.ID] = &cp
	return true, nil
}

func (r *memRepo) FindActiveProfile(_ context.Context, userID uint) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.profiles) {
		p := r.profiles[id]
		if p.UserID == userID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) GetUser(_ context.Context, userID uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) FirstOrCreateOrganization(_ context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.organizations {
		if o.Name == org.Name {
			*org = *o
			return nil
		}
	}
	org.ID = r.id()
	cp := *org
	r.organizations[cp.ID] = &cp
	return nil
}

func (r *memRepo) CreateProfile(_ context.Context, profile *models.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile.ID = r.id()
	cp := *profile
	cp.User, cp.Organization = nil, nil
	r.profiles[cp.ID] = &cp
	return nil
}

func (r *memRepo) ListPersonalOrganizations(_ context.Context) ([]models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Organization
	for _, id := range sortedKeys(r.organizations) {
		if o := r.organizations[id]; o.OrganizationType == models.OrganizationTypePersonal {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memRepo) CountOrganizationMembers(_ context.Context, organizationID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.profiles {
		if p.OrganizationID == organizationID && p.IsActive {
			n++
		}
	}
	return n, nil
}

// Seeding helpers.

func (r *memRepo) addService(slug, name string) *models.Service {
	s := &models.Service{Slug: slug, Name: name, IsActive: true}
	_ = r.UpsertService(context.Background(), s)
	return s
}

func (r *memRepo) addTier(serviceID uint, name string, maxUsers *int) *models.LicenseType {
	lt := &models.LicenseType{ServiceID: serviceID, Name: name, DisplayName: name, MaxUsers: maxUsers, IsActive: true}
	_, _ = r.FirstOrCreateLicenseType(context.Background(), lt)
	return lt
}

func (r *memRepo) addLicense(orgID, licenseTypeID uint, status string) *models.License {
	l := &models.License{
		LicenseTypeID:  licenseTypeID,
		OrganizationID: orgID,
		AccountType:    models.AccountTypeOrganization,
		Status:         status,
		StartDate:      testNow.AddDate(0, -1, 0),
	}
	_ = r.CreateLicense(context.Background(), l)
	return l
}

func (r *memRepo) addOrganization(name, orgType string) *models.Organization {
	o := &models.Organization{Name: name, OrganizationType: orgType, IsActive: true}
	_ = r.FirstOrCreateOrganization(context.Background(), o)
	return o
}

func (r *memRepo) addUser(username, first, last string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &models.User{ID: r.id(), Username: username, FirstName: first, LastName: last, Status: models.STATUS_ACTIVE}
	r.users[u.ID] = u
	return u
}

var _ Repository = (*memRepo)(nil)
