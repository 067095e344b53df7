package codes

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrNotFound    = errors.New("code_not_found")
	ErrExpired     = errors.New("code_expired")
	ErrMismatch    = errors.New("code_mismatch")
	ErrNotVerified = errors.New("code_not_verified")
)

const (
	DefaultCodeTTL     = 10 * time.Minute
	DefaultVerifiedTTL = 30 * time.Minute
	DefaultRetention   = time.Hour

	codeLength = 6
	lockStripe = 64
)

type Options struct {
	CodeTTL     time.Duration
	VerifiedTTL time.Duration
	// Retention is how long an expired record stays in the backend so a late
	// lookup still reports ErrExpired instead of ErrNotFound.
	Retention time.Duration
	Now       func() time.Time
	Generate  func() (string, error)
}

// Store implements the one-time code lifecycle: issue, check, and consume
// for a password reset. Calls for the same email are serialized.
type Store struct {
	kv          KV
	codeTTL     time.Duration
	verifiedTTL time.Duration
	retention   time.Duration
	now         func() time.Time
	generate    func() (string, error)
	locks       [lockStripe]sync.Mutex
}

func NewStore(kv KV, opts Options) *Store {
	s := &Store{
		kv:          kv,
		codeTTL:     opts.CodeTTL,
		verifiedTTL: opts.VerifiedTTL,
		retention:   opts.Retention,
		now:         opts.Now,
		generate:    opts.Generate,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.verifiedTTL <= 0 {
		s.verifiedTTL = DefaultVerifiedTTL
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generate == nil {
		s.generate = GenerateCode
	}
	return s
}

// Issue stores a fresh code for email, replacing any outstanding one, and
// returns it for out-of-band delivery.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	key := NormalizeEmail(email)
	unlock := s.lock(key)
	defer unlock()

	code, err := s.generate()
	if err != nil {
		return "", err
	}
	record := Record{Code: code, ExpiresAt: s.now().Add(s.codeTTL)}
	if err := s.put(ctx, key, record); err != nil {
		return "", err
	}
	return code, nil
}

// Check marks the record verified and extends its lifetime when code
// matches. Checking an already verified record again succeeds.
func (s *Store) Check(ctx context.Context, email, code string) error {
	key := NormalizeEmail(email)
	unlock := s.lock(key)
	defer unlock()

	record, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	if !codesEqual(record.Code, code) {
		return ErrMismatch
	}
	record.Verified = true
	record.ExpiresAt = s.now().Add(s.verifiedTTL)
	return s.put(ctx, key, record)
}

// ConsumeForReset deletes a verified, unexpired, matching record. The
// caller may perform the destructive action only after this returns nil.
func (s *Store) ConsumeForReset(ctx context.Context, email, code string) error {
	key := NormalizeEmail(email)
	unlock := s.lock(key)
	defer unlock()

	record, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !record.Verified {
		return ErrNotVerified
	}
	if s.now().After(record.ExpiresAt) {
		if err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
		return ErrExpired
	}
	if !codesEqual(record.Code, code) {
		return ErrMismatch
	}
	return s.kv.Delete(ctx, key)
}

// load returns the live record for key, deleting it if it has expired.
func (s *Store) load(ctx context.Context, key string) (Record, error) {
	record, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.now().After(record.ExpiresAt) {
		if err := s.kv.Delete(ctx, key); err != nil {
			return Record{}, err
		}
		return Record{}, ErrExpired
	}
	return record, nil
}

func (s *Store) put(ctx context.Context, key string, record Record) error {
	ttl := record.ExpiresAt.Sub(s.now()) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.kv.Put(ctx, key, record, ttl)
}

func (s *Store) lock(key string) func() {
	mu := &s.locks[xxhash.Sum64String(key)%lockStripe]
	mu.Lock()
	return mu.Unlock
}

func codesEqual(stored, submitted string) bool {
	submitted = strings.TrimSpace(submitted)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// GenerateCode draws six independent decimal digits; leading zeros are kept.
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	ten := big.NewInt(10)
	for i := 0; i < codeLength; i++ {
		digit, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + digit.Int64()))
	}
	return b.String(), nil
}
