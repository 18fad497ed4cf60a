package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"docvault/internal/domain/upload"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRateLimiter_AllowUpload(t *testing.T) {
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c, RateLimitConfig{UploadLimit: 2, UploadWindow: time.Minute})
	ctx := context.Background()

	res, err := rl.AllowUpload(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = rl.AllowUpload(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = rl.AllowUpload(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.ResetIn)

	// other clients have their own budget
	res, err = rl.AllowUpload(ctx, "client-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	mr.FastForward(61 * time.Second)
	res, err = rl.AllowUpload(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, rl.ResetUploads(ctx, "client-1"))
	assert.False(t, mr.Exists("ratelimit:client-1:uploads"))
}

func TestRateLimiter_AllowConnection(t *testing.T) {
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c, RateLimitConfig{UploadLimit: 5, UploadWindow: time.Minute, ConnectionLimit: 1, ConnectionWindow: time.Minute})
	ctx := context.Background()

	res, err := rl.AllowConnection(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Limit)

	res, err = rl.AllowConnection(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, mr.Exists("ratelimit:10.0.0.1:connections"))

	// connection budget is separate from upload starts
	res, err = rl.AllowUpload(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_DefaultsForUnsetLimits(t *testing.T) {
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c, RateLimitConfig{UploadLimit: 3})
	ctx := context.Background()

	res, err := rl.AllowUpload(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Limit)
	assert.Equal(t, 60*time.Second, mr.TTL("ratelimit:client-1:uploads"))

	res, err = rl.AllowConnection(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, DefaultRateLimitConfig().ConnectionLimit, res.Limit)
	assert.Equal(t, 60*time.Second, mr.TTL("ratelimit:10.0.0.1:connections"))
}

func TestFlagCache(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewFlagCache(c, 30*time.Second)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "max_file_size_gb")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "max_file_size_gb", "5"))
	v, ok, err := cache.Get(ctx, "max_file_size_gb")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5", v)
	assert.Equal(t, 30*time.Second, mr.TTL("config:max_file_size_gb"))

	mr.FastForward(31 * time.Second)
	_, ok, err = cache.Get(ctx, "max_file_size_gb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublisher_WriteEvent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, DocumentEventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, NewPublisher(c).WriteEvent(ctx, upload.AuditEvent{
		Type:       upload.EventUploadCompleted,
		DocumentID: &id,
		Metadata:   map[string]any{"method": "standard"},
	}))

	select {
	case msg := <-sub.Channel():
		var got upload.AuditEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, upload.EventUploadCompleted, got.Type)
		require.NotNil(t, got.DocumentID)
		assert.Equal(t, id, *got.DocumentID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}

func TestSubscriber_DeliversUntilCancelled(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(c).Subscribe(ctx, []string{"channel:documents:*"}, func(channel string, payload []byte) {
			mu.Lock()
			got = append(got, channel+"="+string(payload))
			mu.Unlock()
		})
	}()

	pub := NewPublisher(c)
	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), DocumentEventsChannel, []byte("hi"))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "channel:documents:events=hi", got[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestAgentRegistry(t *testing.T) {
	c, mr := newTestClient(t)
	reg := NewAgentRegistry(c, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Heartbeat(ctx, "agent-b", 2))
	require.NoError(t, reg.Heartbeat(ctx, "agent-a", 0))

	agents, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "agent-a", agents[0].Name)
	assert.Equal(t, 2, agents[1].ActiveSessions)

	mr.FastForward(11 * time.Second)
	require.NoError(t, reg.Heartbeat(ctx, "agent-a", 1))

	agents, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-a", agents[0].Name)

	require.NoError(t, reg.Deregister(ctx, "agent-a"))
	agents, err = reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)
}
