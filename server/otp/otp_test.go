package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	return NewRedisStore(NewRedisClient(mr.Addr(), "", 0)), mr
}

func TestManager(t *testing.T) {
	redisStore, _ := setupRedisStore(t)

	stores := map[string]Store{
		"redis":  redisStore,
		"memory": NewMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := NewManager(store, Config{MaxAttempts: 2})

			code, err := manager.Issue(ctx, "9849119427")
			require.NoError(t, err)
			assert.Len(t, code, DEFAULT_LENGTH)

			assert.ErrorIs(t, manager.Verify(ctx, "9849119427", wrongCode(code)), ErrOTPInvalid)
			require.NoError(t, manager.Verify(ctx, "9849119427", code))

			// Codes are single use
			assert.ErrorIs(t, manager.Verify(ctx, "9849119427", code), ErrOTPNotFound)
		})
	}
}

func TestManagerMaxAttempts(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemoryStore(), Config{MaxAttempts: 2})

	code, err := manager.Issue(ctx, "9494064441")
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Verify(ctx, "9494064441", wrongCode(code)), ErrOTPInvalid)
	assert.ErrorIs(t, manager.Verify(ctx, "9494064441", wrongCode(code)), ErrOTPInvalid)
	assert.ErrorIs(t, manager.Verify(ctx, "9494064441", code), ErrOTPMaxAttempts)
	assert.ErrorIs(t, manager.Verify(ctx, "9494064441", code), ErrOTPNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)
	manager := NewManager(store, Config{TTL: time.Minute})

	code, err := manager.Issue(ctx, "7981738294")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, manager.Verify(ctx, "7981738294", code), ErrOTPNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "6305994096", "hash", time.Minute))
	_, err := store.Get(ctx, "6305994096")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "6305994096")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
