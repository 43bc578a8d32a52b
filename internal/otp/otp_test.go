package otp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyOnce(t *testing.T) {
	ctx := context.Background()
	svc := Service{Store: NewMemoryStore(time.Minute), TTL: time.Minute, Length: 6}

	code, err := svc.Generate(ctx, "255700000001")
	require.NoError(t, err)
	require.Len(t, code, 6)
	assert.NotEqual(t, byte('0'), code[0])

	ok, err := svc.Verify(ctx, "255700000001", code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, "255700000001", code)
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestWrongCodeConsumesPending(t *testing.T) {
	ctx := context.Background()
	svc := Service{Store: NewMemoryStore(time.Minute), TTL: time.Minute}

	code, err := svc.Generate(ctx, "User@Acme.test")
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "user@acme.test", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Verify(ctx, "user@acme.test", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredCodeRejected(t *testing.T) {
	ctx := context.Background()
	svc := Service{Store: NewMemoryStore(time.Minute), TTL: 10 * time.Millisecond}

	code, err := svc.Generate(ctx, "255700000002")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	ok, err := svc.Verify(ctx, "255700000002", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegenerateReplacesPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	svc := Service{Store: store, TTL: time.Minute}

	_, err := svc.Generate(ctx, "k")
	require.NoError(t, err)
	second, err := svc.Generate(ctx, "k")
	require.NoError(t, err)

	got, ok, err := store.Take(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestConcurrentVerifyAcceptsCodeOnce(t *testing.T) {
	ctx := context.Background()
	svc := Service{Store: NewMemoryStore(time.Minute), TTL: time.Minute, Length: 6}
	code, err := svc.Generate(ctx, "255700000009")
	require.NoError(t, err)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Verify(ctx, "255700000009", code)
			if err == nil && ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}
