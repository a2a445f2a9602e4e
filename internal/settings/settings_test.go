package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepeccz/msi-a-sub001/internal/store"
)

// countingRepo counts reads and can block or fail them.
type countingRepo struct {
	*store.InMemoryStore
	reads   atomic.Int32
	fail    atomic.Bool
	release chan struct{}
}

func newCountingRepo() *countingRepo {
	return &countingRepo{InMemoryStore: store.NewInMemoryStore()}
}

func (r *countingRepo) GetSetting(ctx context.Context, key string) (string, bool, error) {
	r.reads.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.fail.Load() {
		return "", false, errors.New("database unavailable")
	}
	return r.InMemoryStore.GetSetting(ctx, key)
}

func TestCachedProvider_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	require.NoError(t, repo.SetSetting(ctx, KeyAgentEnabled, "true"))
	p := NewCachedProvider(repo, WithTTL(time.Minute))

	for i := 0; i < 3; i++ {
		v, ok, err := p.Get(ctx, KeyAgentEnabled)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "true", v)
	}
	assert.Equal(t, int32(1), repo.reads.Load())
}

func TestCachedProvider_CachesMissingKeys(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	p := NewCachedProvider(repo)

	_, ok, err := p.Get(ctx, "unset")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, _ = p.Get(ctx, "unset")
	assert.Equal(t, int32(1), repo.reads.Load())
}

func TestCachedProvider_SetInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	p := NewCachedProvider(repo, WithTTL(time.Hour))

	require.NoError(t, p.Set(ctx, KeyAgentEnabled, "true"))
	assert.False(t, KillSwitchActive(ctx, p))

	require.NoError(t, p.Set(ctx, KeyAgentEnabled, "false"))
	assert.True(t, KillSwitchActive(ctx, p))

	// A write that bypasses the provider is only seen after Invalidate.
	require.NoError(t, repo.SetSetting(ctx, KeyAgentEnabled, "true"))
	assert.True(t, KillSwitchActive(ctx, p))
	p.Invalidate("")
	assert.False(t, KillSwitchActive(ctx, p))
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	require.NoError(t, repo.SetSetting(ctx, KeyAgentEnabled, "false"))
	p := NewCachedProvider(repo)

	repo.fail.Store(true)
	_, _, err := p.Get(ctx, KeyAgentEnabled)
	require.Error(t, err)
	assert.False(t, KillSwitchActive(ctx, p), "read failure leaves the agent running")

	repo.fail.Store(false)
	assert.True(t, KillSwitchActive(ctx, p))
}

func TestCachedProvider_CoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	repo.release = make(chan struct{})
	p := NewCachedProvider(repo)

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := p.Get(ctx, KeyAgentEnabled)
			assert.NoError(t, err)
		}()
	}
	// Let the goroutines pile up on the in-flight read before releasing it.
	require.Eventually(t, func() bool { return repo.reads.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.Less(t, repo.reads.Load(), int32(callers))
}

func TestKillSwitchActive(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		value *string
		want  bool
	}{
		{"unset", nil, false},
		{"enabled", ptr("true"), false},
		{"disabled", ptr("false"), true},
		{"disabled upper", ptr(" FALSE "), true},
		{"disabled zero", ptr("0"), true},
		{"garbage", ptr("maybe"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := store.NewInMemoryStore()
			if tt.value != nil {
				require.NoError(t, repo.SetSetting(ctx, KeyAgentEnabled, *tt.value))
			}
			assert.Equal(t, tt.want, KillSwitchActive(ctx, NewRepoProvider(repo)))
		})
	}
}

func TestAutoReplyMessage(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryStore()
	p := NewRepoProvider(repo)

	assert.Equal(t, DefaultAgentDisabledMessage, AutoReplyMessage(ctx, p))

	require.NoError(t, repo.SetSetting(ctx, KeyAgentDisabledMessage, "   "))
	assert.Equal(t, DefaultAgentDisabledMessage, AutoReplyMessage(ctx, p))

	require.NoError(t, repo.SetSetting(ctx, KeyAgentDisabledMessage, "Volvemos enseguida."))
	assert.Equal(t, "Volvemos enseguida.", AutoReplyMessage(ctx, p))
}

func ptr(s string) *string { return &s }
