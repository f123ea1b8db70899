package licensing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MetaTask/app/models"
)

const (
	ReasonNoCustomSeats    = "No available seats in custom license"
	ReasonUserLimitReached = "License user limit reached"
	ReasonAlreadyInactive  = "Assignment is already inactive"
	MessageRevoked         = "License revoked successfully"
)

// LicenseKind tags a LicenseRef.
type LicenseKind string

const (
	KindStandard LicenseKind = "standard"
	KindCustom   LicenseKind = "custom"
)

// LicenseRef identifies a seat-bearing license: either a standard License
// or a CustomLicense together with its backing License.
type LicenseRef struct {
	Kind            LicenseKind `json:"kind"`
	LicenseID       uint        `json:"license_id"`
	CustomLicenseID uint        `json:"custom_license_id,omitempty"`
}

// RefOf derives the ref of a loaded License row.
func RefOf(l *models.License) LicenseRef {
	if l.CustomLicenseID != nil {
		return LicenseRef{Kind: KindCustom, LicenseID: l.ID, CustomLicenseID: *l.CustomLicenseID}
	}
	return LicenseRef{Kind: KindStandard, LicenseID: l.ID}
}

// SeatHolder is the capacity view shared by standard and custom licenses.
type SeatHolder interface {
	Ref() LicenseRef
	License() *models.License
	Service() *models.Service
	// RemainingSeats returns the free seats; limited is false for an
	// unlimited tier, in which case remaining is meaningless.
	RemainingSeats() (remaining int, limited bool)
	IsValid(now time.Time) bool
	// CanAssign returns a rejection reason when no seat may be taken.
	CanAssign(now time.Time) (bool, string)
	RecordAssignment()
	RecordRevocation()
}

type standardSeats struct {
	license *models.License
}

func (s *standardSeats) Ref() LicenseRef            { return RefOf(s.license) }
func (s *standardSeats) License() *models.License   { return s.license }
func (s *standardSeats) IsValid(now time.Time) bool { return s.license.IsValid(now) }

func (s *standardSeats) Service() *models.Service {
	if s.license.LicenseType == nil {
		return nil
	}
	return s.license.LicenseType.Service
}

func (s *standardSeats) RemainingSeats() (int, bool) {
	if s.license.LicenseType == nil || s.license.LicenseType.MaxUsers == nil {
		return 0, false
	}
	remaining := *s.license.LicenseType.MaxUsers - s.license.CurrentUsers
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func (s *standardSeats) CanAssign(time.Time) (bool, string) {
	if !s.license.CanAddUser() {
		return false, ReasonUserLimitReached
	}
	return true, ""
}

func (s *standardSeats) RecordAssignment() {
	s.license.CurrentUsers++
}

func (s *standardSeats) RecordRevocation() {
	if s.license.CurrentUsers > 0 {
		s.license.CurrentUsers--
	}
}

type customSeats struct {
	license  *models.License
	custom   *models.CustomLicense
	assigned int64
}

func (c *customSeats) Ref() LicenseRef          { return RefOf(c.license) }
func (c *customSeats) License() *models.License { return c.license }
func (c *customSeats) Service() *models.Service { return c.custom.Service }

func (c *customSeats) IsValid(now time.Time) bool {
	return c.custom.IsValid(now)
}

func (c *customSeats) RemainingSeats() (int, bool) {
	return c.custom.RemainingSeats(c.assigned), true
}

func (c *customSeats) CanAssign(now time.Time) (bool, string) {
	remaining, _ := c.RemainingSeats()
	if remaining <= 0 || !c.custom.IsValid(now) {
		return false, ReasonNoCustomSeats
	}
	return true, ""
}

func (c *customSeats) RecordAssignment() {
	c.assigned++
	c.license.CurrentUsers++
}

func (c *customSeats) RecordRevocation() {
	if c.assigned > 0 {
		c.assigned--
	}
	if c.license.CurrentUsers > 0 {
		c.license.CurrentUsers--
	}
}

// seatHolderFor builds the seat view of a loaded License. Custom-backed
// licenses count their seats from active assignments of the custom license.
func seatHolderFor(ctx context.Context, repo Repository, l *models.License) (SeatHolder, error) {
	if l.CustomLicenseID == nil {
		return &standardSeats{license: l}, nil
	}
	custom := l.CustomLicense
	if custom == nil || custom.Service == nil {
		loaded, err := repo.GetCustomLicense(ctx, *l.CustomLicenseID)
		if err != nil {
			return nil, wrapNotFound(err, ErrCustomLicenseNotFound)
		}
		custom = loaded
		l.CustomLicense = loaded
	}
	assigned, err := repo.CountCustomAssignments(ctx, custom.ID)
	if err != nil {
		return nil, err
	}
	return &customSeats{license: l, custom: custom, assigned: assigned}, nil
}

var errNoService = errors.New("licensing: license has no service")
