package auth

import (
	"context"
	"errors"
	"fmt"

	"sgq/backend/internal/identity"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrProfileMissing  = errors.New("profile_missing")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the caller resolved for a single request.
type Identity struct {
	SubjectID string
	Role      identity.Role
}

// Directory is the slice of the identity provider the verifier needs.
type Directory interface {
	UserByID(ctx context.Context, id string) (identity.User, error)
	ProfileRole(ctx context.Context, id string) (identity.Role, error)
}

// Verifier re-checks every token against the directory. Nothing is cached
// between calls.
type Verifier struct {
	dir Directory
}

func NewVerifier(dir Directory) *Verifier {
	return &Verifier{dir: dir}
}

func (v *Verifier) Resolve(ctx context.Context, token string) (Identity, error) {
	subject, err := DecodeSubject(token)
	if err != nil {
		return Identity{}, err
	}

	if _, err := v.dir.UserByID(ctx, subject); err != nil {
		if errors.Is(err, identity.ErrMisconfigured) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	role, err := v.dir.ProfileRole(ctx, subject)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrMisconfigured):
			return Identity{}, err
		case errors.Is(err, identity.ErrNotFound):
			return Identity{}, ErrProfileMissing
		default:
			return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
	}

	return Identity{SubjectID: subject, Role: role}, nil
}

// RequireRole compares roles exactly; there is no hierarchy.
func RequireRole(id Identity, expected identity.Role) error {
	if id.Role != expected {
		return ErrForbidden
	}
	return nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
