package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/KiiTuNp/SUPERvote/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStatusCacheRoundtrip(t *testing.T) {
	InitMockForTest()

	assert.Nil(t, GetRoomStatus("ABC123"), "empty cache misses")

	status := &models.RoomStatus{
		RoomID:           "ABC123",
		OrganizerName:    "Alice",
		ParticipantCount: 3,
		ApprovedCount:    2,
		PendingCount:     1,
		TotalPolls:       2,
	}
	SetRoomStatus("ABC123", status)

	cached := GetRoomStatus("ABC123")
	require.NotNil(t, cached)
	assert.Equal(t, status.RoomID, cached.RoomID)
	assert.Equal(t, status.ParticipantCount, cached.ParticipantCount)
	assert.Equal(t, status.ApprovedCount, cached.ApprovedCount)

	DeleteRoomStatus("ABC123")
	assert.Nil(t, GetRoomStatus("ABC123"), "invalidation removes the entry")
}

func TestRoomStatusCacheCorruptEntry(t *testing.T) {
	InitMockForTest()

	mockSet(statusKey("ABC123"), "not json", 0)
	assert.Nil(t, GetRoomStatus("ABC123"))
	// The corrupt entry is dropped on read
	_, found := mockGet(statusKey("ABC123"))
	assert.False(t, found)
}

func TestRoomStatusCacheNilSafe(t *testing.T) {
	InitMockForTest()
	SetRoomStatus("ABC123", nil)
	assert.Nil(t, GetRoomStatus("ABC123"))
}

func TestBloomFilter(t *testing.T) {
	InitMockForTest()

	// An empty filter means no warmup happened yet, so everything passes
	assert.True(t, MightContainRoom("ABC123"))

	AddRoomCode("ABC123")
	assert.True(t, MightContainRoom("ABC123"))
	assert.False(t, MightContainRoom("NOPE99"), "definitely-absent codes are rejected")
}

func TestBloomFilterWarmup(t *testing.T) {
	InitMockForTest()

	WarmRoomCodes(context.Background(), []string{"AAA111", "BBB222"})
	assert.True(t, MightContainRoom("AAA111"))
	assert.True(t, MightContainRoom("BBB222"))
	assert.False(t, MightContainRoom("CCC333"))
}

func TestBloomHashDeterministic(t *testing.T) {
	assert.Equal(t, bloomHash("ABC123", 0), bloomHash("ABC123", 0))
	assert.NotEqual(t, bloomHash("ABC123", 0), bloomHash("ABC123", 1), "seeds produce distinct bits")

	for i := 0; i < bloomHashCount; i++ {
		bit := bloomHash("ABC123", i)
		assert.GreaterOrEqual(t, bit, int64(0))
		assert.Less(t, bit, int64(bloomBits))
	}
}

func TestLocalRateLimiter(t *testing.T) {
	limiter := NewLocalRateLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx)
		require.NoError(t, err)
		assert.True(t, allowed, "burst capacity admits the first requests")
	}

	allowed, err := limiter.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, allowed, "bucket exhausted")
}

func TestClientRateLimiterFallsBackToLocal(t *testing.T) {
	InitMockForTest()

	limiter := NewClientRateLimiter("test", 100, 100, 1, 2)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "client-1"))
	assert.True(t, limiter.Allow(ctx, "client-1"))
	assert.False(t, limiter.Allow(ctx, "client-1"), "per-client bucket exhausted")

	// Another client has its own bucket
	assert.True(t, limiter.Allow(ctx, "client-2"))
}

func TestClientRateLimiterGlobalBucket(t *testing.T) {
	InitMockForTest()

	limiter := NewClientRateLimiter("test", 1, 2, 100, 100)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "client-1"))
	assert.True(t, limiter.Allow(ctx, "client-2"))
	assert.False(t, limiter.Allow(ctx, "client-3"), "global bucket caps all clients together")
}

func TestWithRoomCodeLockRunsActionWithoutRedis(t *testing.T) {
	InitMockForTest()

	ran := false
	err := WithRoomCodeLock("ABC123", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran, "without Redis the action runs directly")

	wantErr := errors.New("insert failed")
	err = WithRoomCodeLock("ABC123", func() error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestGetClientUnavailableInMockMode(t *testing.T) {
	InitMockForTest()

	_, err := GetClient()
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
	assert.True(t, IsMockMode())
}
