package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilNextUTCHour(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Duration
	}{
		{"before hour same day", time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC), 1, 30 * time.Minute},
		{"after hour rolls to next day", time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC), 1, 10 * time.Hour},
		{"exactly on hour is a full day", time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC), 1, 24 * time.Hour},
		{"midnight expiry", time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC), 0, time.Minute},
		{"non-UTC input", time.Date(2024, 6, 1, 2, 0, 0, 0, time.FixedZone("UTC+2", 2*3600)), 1, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UntilNextUTCHour(tt.now, tt.hour))
		})
	}
}

func TestMemory_GetSetExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	val := []byte("payload")
	require.NoError(t, c.Set(ctx, "k", val, time.Hour))
	val[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	now = now.Add(time.Hour)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
	now = now.Add(365 * 24 * time.Hour)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "test:")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("test:yield:susd").SetVal(`[]`)
		v, err := c.Get(ctx, "yield:susd")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(v))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("test:yield:other").RedisNil()
		_, err := c.Get(ctx, "yield:other")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("test:price:susd").SetErr(redis.TxFailedErr)
		_, err := c.Get(ctx, "price:susd")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMiss)
	})

	t.Run("set", func(t *testing.T) {
		mock.ExpectSet("test:price:susd", []byte(`[]`), time.Hour).SetVal("OK")
		assert.NoError(t, c.Set(ctx, "price:susd", []byte(`[]`), time.Hour))
	})

	t.Run("set error", func(t *testing.T) {
		mock.ExpectSet("test:price:susd", []byte(`[]`), time.Hour).SetErr(redis.TxFailedErr)
		assert.Error(t, c.Set(ctx, "price:susd", []byte(`[]`), time.Hour))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAuto(t *testing.T) {
	_, ok := NewAuto("").(*Memory)
	assert.True(t, ok)

	r, ok := NewAuto("localhost:6379").(*Redis)
	require.True(t, ok)
	assert.NoError(t, r.Close())
}
