package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGProfiles reads and writes the users profile table over a direct
// Postgres connection.
type PGProfiles struct {
	pool *pgxpool.Pool
}

func NewPGProfiles(pool *pgxpool.Pool) *PGProfiles {
	return &PGProfiles{pool: pool}
}

func (s *PGProfiles) Profile(ctx context.Context, id string) (User, error) {
	var (
		user User
		role string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, coalesce(email, ''), coalesce(role, '')
		FROM public.users
		WHERE id::text = $1
	`, id)
	if err := row.Scan(&user.ID, &user.Email, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.Role = ParseRole(role)
	return user, nil
}

func (s *PGProfiles) StudentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text FROM public.users WHERE role = $1`, string(RoleStudent))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGProfiles) FilterStudentIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text FROM public.users
		WHERE role = $1 AND id::text = ANY($2)
	`, string(RoleStudent), ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGProfiles) EmailInUse(ctx context.Context, email, exceptID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM public.users WHERE lower(email) = lower($1) AND id::text <> $2)
	`, email, exceptID).Scan(&exists)
	return exists, err
}

func (s *PGProfiles) UpdateEmail(ctx context.Context, id, email string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE public.users
		SET email = $1, updated_at = $2
		WHERE id::text = $3
	`, email, at.UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
