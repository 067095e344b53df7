package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

const (
	profilesTable = "users"
	rowPageSize   = 500
)

// RESTProfiles reads and writes the users profile table through the REST
// gateway.
type RESTProfiles struct {
	client   *postgrest.Client
	elevated bool
}

func NewRESTProfiles(baseURL string, keys Keys) *RESTProfiles {
	headers := map[string]string{"apikey": keys.apikey()}
	if keys.Elevated != "" {
		headers["Authorization"] = "Bearer " + keys.Elevated
	}
	return &RESTProfiles{
		client:   postgrest.NewClient(strings.TrimRight(baseURL, "/")+"/rest/v1", "public", headers),
		elevated: keys.Elevated != "",
	}
}

type profileRow struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// from fails closed before any request when the service role key is absent.
func (p *RESTProfiles) from() (*postgrest.QueryBuilder, error) {
	if !p.elevated {
		return nil, ErrMisconfigured
	}
	return p.client.From(profilesTable), nil
}

func (p *RESTProfiles) Profile(ctx context.Context, id string) (User, error) {
	q, err := p.from()
	if err != nil {
		return User{}, err
	}
	var rows []profileRow
	if _, err := q.Select("id,email,role", "", false).Eq("id", id).ExecuteToWithContext(ctx, &rows); err != nil {
		return User{}, restError("get_profile", err)
	}
	if len(rows) == 0 {
		return User{}, ErrNotFound
	}
	return User{ID: rows[0].ID, Email: rows[0].Email, Role: ParseRole(rows[0].Role)}, nil
}

// StudentIDs pages through the roster with an exact count so a server-side
// row cap cannot truncate it.
func (p *RESTProfiles) StudentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; {
		q, err := p.from()
		if err != nil {
			return nil, err
		}
		var rows []profileRow
		total, err := q.Select("id", "exact", false).
			Eq("role", string(RoleStudent)).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			Range(offset, offset+rowPageSize-1, "").
			ExecuteToWithContext(ctx, &rows)
		if err != nil {
			return nil, restError("list_students", err)
		}
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		offset += len(rows)
		switch {
		case len(rows) == 0:
			return ids, nil
		case total > 0 && int64(offset) >= int64(total):
			return ids, nil
		case total == 0 && len(rows) < rowPageSize:
			return ids, nil
		}
	}
}

func (p *RESTProfiles) FilterStudentIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := p.from()
	if err != nil {
		return nil, err
	}
	var rows []profileRow
	if _, err := q.Select("id", "", false).Eq("role", string(RoleStudent)).In("id", ids).ExecuteToWithContext(ctx, &rows); err != nil {
		return nil, restError("filter_students", err)
	}
	return rowIDs(rows), nil
}

func (p *RESTProfiles) EmailInUse(ctx context.Context, email, exceptID string) (bool, error) {
	q, err := p.from()
	if err != nil {
		return false, err
	}
	var rows []profileRow
	if _, err := q.Select("id", "", false).Eq("email", email).Neq("id", exceptID).Limit(1, "").ExecuteToWithContext(ctx, &rows); err != nil {
		return false, restError("email_in_use", err)
	}
	return len(rows) > 0, nil
}

func (p *RESTProfiles) UpdateEmail(ctx context.Context, id, email string, at time.Time) error {
	q, err := p.from()
	if err != nil {
		return err
	}
	var rows []profileRow
	_, err = q.Update(map[string]string{
		"email":      email,
		"updated_at": at.UTC().Format(time.RFC3339),
	}, "representation", "").Eq("id", id).ExecuteToWithContext(ctx, &rows)
	if err != nil {
		return restError("update_profile_email", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func rowIDs(rows []profileRow) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func restError(op string, err error) error {
	return fmt.Errorf("identity: %s: %w", op, err)
}
