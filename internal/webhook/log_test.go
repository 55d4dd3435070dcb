package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func entry(i int) Entry {
	return NewEntry("+15551234567", fmt.Sprintf("msg %d", i), "", Verified, "stored", time.Unix(int64(i), 0))
}

func TestRingLogKeepsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewRingLog(3)

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, got)

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Record(ctx, entry(i)))
	}
	got, err = l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "msg 5", got[0].Text)
	require.Equal(t, "msg 3", got[2].Text)

	got, _ = l.Recent(ctx, 2)
	require.Len(t, got, 2)
	require.Equal(t, "msg 4", got[1].Text)
	require.NotEmpty(t, got[0].ID)
	require.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRingLogPartiallyFilled(t *testing.T) {
	ctx := context.Background()
	l := NewRingLog(4)
	require.NoError(t, l.Record(ctx, entry(1)))
	require.NoError(t, l.Record(ctx, entry(2)))
	got, _ := l.Recent(ctx, 10)
	require.Len(t, got, 2)
	require.Equal(t, "msg 2", got[0].Text)
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLogIsCapped(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	l := NewRedisLog(client, "test:webhook-log", 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Record(ctx, entry(i)))
	}
	n, err := client.LLen(ctx, "test:webhook-log").Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "msg 5", got[0].Text)
	require.Equal(t, "verified", got[0].Auth)
	require.Equal(t, "msg 3", got[2].Text)
}
