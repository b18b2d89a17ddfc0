package scanlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"qrm-ticketing/internal/scanlock"
)

// fakeRedis is an in-memory RedisClient good enough for lock semantics.
type fakeRedis struct {
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	cmd := new(redis.BoolCmd)
	if _, exists := f.values[key]; !exists {
		f.values[key] = value.(string)
		cmd.SetVal(true)
	} else {
		cmd.SetVal(false)
	}
	return cmd
}

// Eval emulates the check-and-delete release script.
func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if val, exists := f.values[keys[0]]; exists && val == args[0].(string) {
		delete(f.values, keys[0])
		cmd.SetVal(int64(1))
	} else {
		cmd.SetVal(int64(0))
	}
	return cmd
}

func TestLockAcquireAndContend(t *testing.T) {
	ctx := context.Background()
	lock := scanlock.NewLock(newFakeRedis(), nil, time.Second)

	ok, err := lock.Acquire(ctx, "qrm://t/abc", "device-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-2")
	require.NoError(t, err)
	assert.False(t, ok, "second device should see the lock held")

	// A different payload is an independent lock.
	ok, err = lock.Acquire(ctx, "qrm://t/def", "device-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	lock := scanlock.NewLock(newFakeRedis(), nil, time.Second)

	ok, err := lock.Acquire(ctx, "qrm://t/abc", "device-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owner release leaves the lock in place.
	require.NoError(t, lock.Release(ctx, "qrm://t/abc", "device-2"))
	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// The owner's release frees it for the next device.
	require.NoError(t, lock.Release(ctx, "qrm://t/abc", "device-1"))
	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseLeavesRetakenLock(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := scanlock.NewLock(fake, nil, time.Second)

	ok, err := lock.Acquire(ctx, "qrm://t/abc", "device-1")
	require.NoError(t, err)
	require.True(t, ok)

	// The lock expires and another device takes it before device-1 releases.
	fake.values["scan_lock:qrm://t/abc"] = "device-2"

	require.NoError(t, lock.Release(ctx, "qrm://t/abc", "device-1"))

	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-3")
	require.NoError(t, err)
	assert.False(t, ok, "device-2's lock must survive a stale release")
}

func TestLockReleaseMissingKey(t *testing.T) {
	lock := scanlock.NewLock(newFakeRedis(), nil, time.Second)
	assert.NoError(t, lock.Release(context.Background(), "qrm://t/gone", "device-1"))
}

// TestLockIntegration exercises the lock against a real Redis container.
func TestLockIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	lock := scanlock.NewLock(client, nil, 200*time.Millisecond)

	ok, err := lock.Acquire(ctx, "qrm://t/abc", "device-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// The TTL releases abandoned locks on its own.
	time.Sleep(300 * time.Millisecond)
	ok, err = lock.Acquire(ctx, "qrm://t/abc", "device-2")
	require.NoError(t, err)
	assert.True(t, ok)
}
