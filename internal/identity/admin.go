package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

const listPageSize = 200

// StatusError is a non-2xx answer from the provider. Body is kept for logs
// only.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity: %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Keys carries both provider credentials. Restricted is the project key sent
// as the gateway apikey; Elevated is the service role key required to act
// on other users. The restricted key is never sent as the bearer.
type Keys struct {
	Restricted string
	Elevated   string
}

func (k Keys) apikey() string {
	if k.Restricted != "" {
		return k.Restricted
	}
	return k.Elevated
}

// AuthAdmin calls the auth server's admin API with the service role token.
type AuthAdmin struct {
	client    auth.Client
	elevated  bool
	transport http.RoundTripper
	timeout   time.Duration
}

// NewAuthAdmin targets baseURL/auth/v1. httpClient supplies the transport
// and timeout for every call; nil means http.DefaultClient.
func NewAuthAdmin(baseURL string, keys Keys, httpClient *http.Client) *AuthAdmin {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := auth.New("", keys.apikey()).
		WithCustomAuthURL(strings.TrimRight(baseURL, "/") + "/auth/v1").
		WithToken(keys.Elevated)
	return &AuthAdmin{
		client:    client,
		elevated:  keys.Elevated != "",
		transport: transport,
		timeout:   httpClient.Timeout,
	}
}

// bind returns a client whose requests carry ctx and the extra query. It
// fails closed when the service role key is absent.
func (a *AuthAdmin) bind(ctx context.Context, query url.Values) (auth.Client, error) {
	if !a.elevated {
		return nil, ErrMisconfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.client.WithClient(http.Client{
		Transport: scopedTransport{ctx: ctx, query: query, next: a.transport},
		Timeout:   a.timeout,
	}), nil
}

func (a *AuthAdmin) UserByID(ctx context.Context, id string) (User, error) {
	client, err := a.bind(ctx, nil)
	if err != nil {
		return User{}, err
	}
	userID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return User{}, ErrNotFound
	}
	resp, err := client.AdminGetUser(types.AdminGetUserRequest{UserID: userID})
	if err != nil {
		return User{}, providerError("get_user", err)
	}
	return toUser(resp.User)
}

// UserByEmail walks the paginated user list; the admin API has no lookup by
// email.
func (a *AuthAdmin) UserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for page := 1; ; page++ {
		client, err := a.bind(ctx, url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(listPageSize)},
		})
		if err != nil {
			return User{}, err
		}
		resp, err := client.AdminListUsers()
		if err != nil {
			return User{}, providerError("list_users", err)
		}
		for _, u := range resp.Users {
			if strings.ToLower(u.Email) == email && u.ID != uuid.Nil {
				return toUser(u)
			}
		}
		if len(resp.Users) < listPageSize {
			return User{}, ErrNotFound
		}
	}
}

func (a *AuthAdmin) UpdatePassword(ctx context.Context, id, password string) error {
	return a.update(ctx, "update_password", id, func(req *types.AdminUpdateUserRequest) {
		req.Password = password
	})
}

// UpdateEmail confirms the new address so no confirmation mail goes out.
func (a *AuthAdmin) UpdateEmail(ctx context.Context, id, email string) error {
	return a.update(ctx, "update_email", id, func(req *types.AdminUpdateUserRequest) {
		req.Email = email
		req.EmailConfirm = true
	})
}

func (a *AuthAdmin) update(ctx context.Context, op, id string, set func(*types.AdminUpdateUserRequest)) error {
	client, err := a.bind(ctx, nil)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrNotFound
	}
	req := types.AdminUpdateUserRequest{UserID: userID}
	set(&req)
	if _, err := client.AdminUpdateUser(req); err != nil {
		return providerError(op, err)
	}
	return nil
}

func toUser(u types.User) (User, error) {
	if u.ID == uuid.Nil {
		return User{}, ErrNotFound
	}
	return User{ID: u.ID.String(), Email: u.Email}, nil
}

// providerError maps the client's "response status code N: body" errors
// onto ErrNotFound and *StatusError.
func providerError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("identity: %s: %w", op, err)
	}
	msg := err.Error()
	if i := strings.Index(msg, "status code "); i >= 0 {
		code, body, _ := strings.Cut(msg[i+len("status code "):], ":")
		if status, convErr := strconv.Atoi(strings.TrimSpace(code)); convErr == nil {
			if status == http.StatusNotFound {
				return ErrNotFound
			}
			return &StatusError{Op: op, Status: status, Body: strings.TrimSpace(body)}
		}
	}
	return fmt.Errorf("identity: %s: %w", op, err)
}

// scopedTransport attaches a request context and query parameters the
// client API has no room for.
type scopedTransport struct {
	ctx   context.Context
	query url.Values
	next  http.RoundTripper
}

func (t scopedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(t.ctx)
	if len(t.query) > 0 {
		q := out.URL.Query()
		for key, values := range t.query {
			q[key] = values
		}
		out.URL.RawQuery = q.Encode()
	}
	return t.next.RoundTrip(out)
}
