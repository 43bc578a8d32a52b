package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store keeps one pending code per key. Take removes the entry it returns.
type Store interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, bool, error)
}

// MemoryStore is a process-local Store with a janitor that purges expired codes.
type MemoryStore struct {
	mu sync.Mutex
	c  *cache.Cache
}

func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, cleanup)}
}

func (s *MemoryStore) Put(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(key, code, ttl)
	return nil
}

// Take reads and deletes under one lock, so concurrent callers never both
// receive the same code.
func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s.c.Delete(key)
	code, _ := v.(string)
	return code, true, nil
}

// Service issues and checks single-use numeric codes.
type Service struct {
	Store  Store
	TTL    time.Duration
	Length int
}

// Generate stores a fresh code for key, replacing any pending one.
func (s Service) Generate(ctx context.Context, key string) (string, error) {
	n := s.Length
	if n <= 0 {
		n = 6
	}
	code, err := randomDigits(n)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := s.Store.Put(ctx, normalize(key), code, s.TTL); err != nil {
		return "", err
	}
	return code, nil
}

// Verify consumes the pending code for key. A wrong code also consumes it, so
// each code gets a single attempt.
func (s Service) Verify(ctx context.Context, key, code string) (bool, error) {
	stored, ok, err := s.Store.Take(ctx, normalize(key))
	if err != nil || !ok {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) == 1, nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// The first digit is never zero.
func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		lo, span := int64(0), int64(10)
		if i == 0 {
			lo, span = 1, 9
		}
		d, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + lo + d.Int64()))
	}
	return b.String(), nil
}
