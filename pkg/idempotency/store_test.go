package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewStore(db, time.Minute)
	ctx := context.Background()
	key := s.Key("stock-reserved", 2, 41)
	assert.Equal(t, "idem:stock-reserved:2:41", key)

	mock.ExpectSetNX(key, "1", time.Minute).SetVal(true)
	mock.ExpectSetNX(key, "1", time.Minute).SetVal(false)

	seen, err := s.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenPropagatesRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewStore(db, time.Minute)

	mock.ExpectSetNX("k", "1", time.Minute).SetErr(errors.New("redis down"))

	_, err := s.Seen(context.Background(), "k")
	assert.EqualError(t, err, "redis down")
}

func TestForget(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewStore(db, time.Minute)
	key := s.DeliveryKey("payment-processed", "m-1")

	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, s.Forget(context.Background(), key))
	require.NoError(t, mock.ExpectationsWereMet())
}
