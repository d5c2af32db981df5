package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStateStore(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "state-a", time.Minute))

	ok, err := s.Consume(ctx, "state-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "state-a")
	require.NoError(t, err)
	assert.False(t, ok, "state consumed twice")

	ok, err = s.Consume(ctx, "never-saved")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStateStore(t *testing.T) {
	s := NewMemoryStateStore()
	t.Cleanup(func() { _ = s.Close() })

	exerciseStateStore(t, s)
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	s := NewMemoryStateStore()
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(context.Background(), "short", 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	ok, err := s.Consume(context.Background(), "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

// fakeRedis answers PING, SET and DEL from a map so the Redis store can be
// tested without a server. Any other command fails.
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func newFakeRedisClient(t *testing.T) (*redis.Client, *fakeRedis) {
	t.Helper()

	f := &fakeRedis{keys: make(map[string]time.Time), now: time.Now}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(f)
	return client, f
}

func (f *fakeRedis) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("fake redis does not dial")
	}
}

func (f *fakeRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		args := cmd.Args()
		switch cmd.Name() {
		case "ping":
			cmd.(*redis.StatusCmd).SetVal("PONG")
		case "set":
			expiry, err := f.expiry(args[3:])
			if err != nil {
				cmd.SetErr(err)
				return err
			}
			f.keys[fmt.Sprint(args[1])] = expiry
			cmd.(*redis.StatusCmd).SetVal("OK")
		case "del":
			var n int64
			for _, k := range args[1:] {
				key := fmt.Sprint(k)
				if exp, ok := f.keys[key]; ok {
					delete(f.keys, key)
					if exp.IsZero() || f.now().Before(exp) {
						n++
					}
				}
			}
			cmd.(*redis.IntCmd).SetVal(n)
		default:
			err := fmt.Errorf("fake redis: unsupported command %q", cmd.Name())
			cmd.SetErr(err)
			return err
		}
		return nil
	}
}

func (f *fakeRedis) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error {
		return errors.New("fake redis does not pipeline")
	}
}

// expiry reads the EX/PX option of a SET.
func (f *fakeRedis) expiry(opts []interface{}) (time.Time, error) {
	if len(opts) == 0 {
		return time.Time{}, nil
	}
	if len(opts) != 2 {
		return time.Time{}, fmt.Errorf("fake redis: unsupported set options %v", opts)
	}

	n, ok := opts[1].(int64)
	if !ok {
		return time.Time{}, fmt.Errorf("fake redis: bad ttl %v", opts[1])
	}
	switch strings.ToLower(fmt.Sprint(opts[0])) {
	case "ex":
		return f.now().Add(time.Duration(n) * time.Second), nil
	case "px":
		return f.now().Add(time.Duration(n) * time.Millisecond), nil
	}
	return time.Time{}, fmt.Errorf("fake redis: unsupported set option %v", opts[0])
}

func (f *fakeRedis) ttl(key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.keys[key]
	if !ok {
		return 0, false
	}
	return exp.Sub(f.now()), true
}

func TestRedisStateStore_InProcess(t *testing.T) {
	client, _ := newFakeRedisClient(t)

	s, err := newRedisStateStore(context.Background(), client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStateStore(t, s)
}

func TestRedisStateStore_KeysArePrefixedAndExpire(t *testing.T) {
	client, fake := newFakeRedisClient(t)
	ctx := context.Background()

	s, err := newRedisStateStore(ctx, client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Save(ctx, "long", 10*time.Minute))
	ttl, ok := fake.ttl(redisStatePrefix + "long")
	require.True(t, ok)
	assert.InDelta(t, float64(10*time.Minute), float64(ttl), float64(time.Second))

	require.NoError(t, s.Save(ctx, "short", 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	ok, err = s.Consume(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired state accepted")
}

func TestRedisStateStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	s, err := NewRedisStateStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStateStore(t, s)
}

func TestNewRedisStateStore_BadURL(t *testing.T) {
	_, err := NewRedisStateStore(context.Background(), "not a url")
	require.Error(t, err)
}
