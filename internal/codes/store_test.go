package codes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}

func newTestStore(kv KV, clock *fakeClock, codes ...string) *Store {
	return NewStore(kv, Options{Now: clock.Now, Generate: sequence(codes...)})
}

func backends(t *testing.T) map[string]func() KV {
	return map[string]func() KV{
		"memory": func() KV { return NewMemoryKV() },
		"redis": func() KV {
			srv := miniredis.RunT(t)
			return NewRedisKV(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
		},
	}
}

func TestResetScenario(t *testing.T) {
	for name, newKV := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Date(2026, 1, 25, 9, 0, 0, 0, time.UTC)}
			kv := newKV()
			store := newTestStore(kv, clock, "123456")

			code, err := store.Issue(ctx, "  A@B.com ")
			require.NoError(t, err)
			require.Equal(t, "123456", code)

			record, ok, err := kv.Get(ctx, "a@b.com")
			require.NoError(t, err)
			require.True(t, ok)
			require.False(t, record.Verified)
			require.True(t, record.ExpiresAt.Equal(clock.Now().Add(600*time.Second)))

			require.ErrorIs(t, store.Check(ctx, "a@b.com", "000000"), ErrMismatch)
			require.NoError(t, store.Check(ctx, "a@b.com", "123456"))

			record, _, err = kv.Get(ctx, "a@b.com")
			require.NoError(t, err)
			require.True(t, record.Verified)
			require.True(t, record.ExpiresAt.Equal(clock.Now().Add(1800*time.Second)))

			// Checking again inside the extended window still succeeds.
			require.NoError(t, store.Check(ctx, "a@b.com", "123456"))

			require.NoError(t, store.ConsumeForReset(ctx, "a@b.com", "123456"))
			_, ok, err = kv.Get(ctx, "a@b.com")
			require.NoError(t, err)
			require.False(t, ok)

			require.ErrorIs(t, store.ConsumeForReset(ctx, "a@b.com", "123456"), ErrNotFound)
		})
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(NewMemoryKV(), clock, "111111", "222222")

	_, err := store.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	_, err = store.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	require.ErrorIs(t, store.Check(ctx, "a@b.com", "111111"), ErrMismatch)
	require.NoError(t, store.Check(ctx, "a@b.com", "222222"))
}

func TestExpiryDeletesRecord(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(NewMemoryKV(), clock, "123456")

	_, err := store.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.NoError(t, store.Check(ctx, "a@b.com", "123456"), "expiry is strictly after expires_at")

	clock.Advance(30*time.Minute + time.Second)
	require.ErrorIs(t, store.Check(ctx, "a@b.com", "123456"), ErrExpired)
	require.ErrorIs(t, store.Check(ctx, "a@b.com", "123456"), ErrNotFound)
}

func TestConsumeExpiredDeletesRecord(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(NewMemoryKV(), clock, "123456")

	_, err := store.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	require.NoError(t, store.Check(ctx, "a@b.com", "123456"))

	clock.Advance(31 * time.Minute)
	require.ErrorIs(t, store.ConsumeForReset(ctx, "a@b.com", "123456"), ErrExpired)
	require.ErrorIs(t, store.ConsumeForReset(ctx, "a@b.com", "123456"), ErrNotFound)
}

func TestConsumeRequiresVerification(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(NewMemoryKV(), clock, "123456")

	_, err := store.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	require.ErrorIs(t, store.ConsumeForReset(ctx, "a@b.com", "123456"), ErrNotVerified)
	// The unverified record survives and can still be verified.
	require.NoError(t, store.Check(ctx, "a@b.com", "123456"))
	require.ErrorIs(t, store.ConsumeForReset(ctx, "a@b.com", "654321"), ErrMismatch)
	require.NoError(t, store.ConsumeForReset(ctx, "a@b.com", "123456"))
}

func TestCheckUnknownEmail(t *testing.T) {
	store := NewStore(NewMemoryKV(), Options{})
	require.ErrorIs(t, store.Check(context.Background(), "nobody@b.com", "123456"), ErrNotFound)
}

func TestRedisBackendTTLCoversRetention(t *testing.T) {
	srv := miniredis.RunT(t)
	kv := NewRedisKV(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	clock := &fakeClock{now: time.Now()}
	store := NewStore(kv, Options{Now: clock.Now, Generate: sequence("123456"), Retention: time.Hour})

	_, err := store.Issue(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Equal(t, 70*time.Minute, srv.TTL("verification_code:a@b.com"))

	srv.FastForward(71 * time.Minute)
	require.ErrorIs(t, store.Check(context.Background(), "a@b.com", "123456"), ErrNotFound)
}

func TestConcurrentChecksOnSameEmail(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(NewMemoryKV(), clock, "123456")
	_, err := store.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	require.NoError(t, store.Check(ctx, "a@b.com", "123456"))

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.ConsumeForReset(ctx, "a@b.com", "123456")
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.Equal(t, 1, successes)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "unexpected rune %q in %s", r, code)
		}
	}
}

func TestEmailHelpers(t *testing.T) {
	require.Equal(t, "a@b.com", NormalizeEmail("  A@B.Com "))

	require.True(t, ValidEmailShape("a@b.com"))
	require.False(t, ValidEmailShape("a.b@com"))
	require.False(t, ValidEmailShape("ab.com"))

	require.True(t, ValidEmailStrict("first.last+tag@school.edu.tw"))
	require.False(t, ValidEmailStrict("a@b"))
	require.False(t, ValidEmailStrict("a b@c.com"))
}
