package identity

import (
	"context"
	"fmt"
	"time"
)

// Profiles is the contract over the users profile table.
type Profiles interface {
	Profile(ctx context.Context, id string) (User, error)
	StudentIDs(ctx context.Context) ([]string, error)
	FilterStudentIDs(ctx context.Context, ids []string) ([]string, error)
	EmailInUse(ctx context.Context, email, exceptID string) (bool, error)
	UpdateEmail(ctx context.Context, id, email string, at time.Time) error
}

// Directory joins auth accounts with their profile rows.
type Directory struct {
	admin    *AuthAdmin
	profiles Profiles
	now      func() time.Time
}

func NewDirectory(admin *AuthAdmin, profiles Profiles) *Directory {
	return &Directory{admin: admin, profiles: profiles, now: time.Now}
}

func (d *Directory) UserByID(ctx context.Context, id string) (User, error) {
	return d.admin.UserByID(ctx, id)
}

func (d *Directory) UserByEmail(ctx context.Context, email string) (User, error) {
	return d.admin.UserByEmail(ctx, email)
}

func (d *Directory) ProfileRole(ctx context.Context, id string) (Role, error) {
	profile, err := d.profiles.Profile(ctx, id)
	if err != nil {
		return RoleUnknown, err
	}
	return profile.Role, nil
}

func (d *Directory) Profile(ctx context.Context, id string) (User, error) {
	return d.profiles.Profile(ctx, id)
}

func (d *Directory) UpdatePassword(ctx context.Context, id, password string) error {
	return d.admin.UpdatePassword(ctx, id, password)
}

// UpdateEmail changes the auth account first, then mirrors the address into
// the profile row.
func (d *Directory) UpdateEmail(ctx context.Context, id, email string) error {
	if err := d.admin.UpdateEmail(ctx, id, email); err != nil {
		return err
	}
	if err := d.profiles.UpdateEmail(ctx, id, email, d.now()); err != nil {
		return fmt.Errorf("identity: profile email out of sync for %s: %w", id, err)
	}
	return nil
}

func (d *Directory) EmailInUse(ctx context.Context, email, exceptID string) (bool, error) {
	return d.profiles.EmailInUse(ctx, email, exceptID)
}

func (d *Directory) StudentIDs(ctx context.Context) ([]string, error) {
	return d.profiles.StudentIDs(ctx)
}

func (d *Directory) FilterStudentIDs(ctx context.Context, ids []string) ([]string, error) {
	return d.profiles.FilterStudentIDs(ctx, ids)
}
