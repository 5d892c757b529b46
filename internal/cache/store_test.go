package cache

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysAreCanonical(t *testing.T) {
	a := Events().List(url.Values{"category": {"concert"}, "from": {"2025-06-01"}})
	b := Events().List(url.Values{"from": {"2025-06-01"}, "category": {"concert"}})

	assert.Equal(t, a, b)
	assert.Equal(t, "events:list/category=concert&from=2025-06-01", a.String())
	assert.NotEqual(t, Departments().BySlug("a/b"), Departments().BySlug("a"))
	assert.Equal(t, ResourceCMS, CMS().Document("home", nil).Resource())
	assert.Equal(t, "events:month/2025-06", Events().Month(2025, 6).String())
}

func TestGetOrLoadCachesValue(t *testing.T) {
	s := New(time.Minute)
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a"}, nil
	}

	for range 3 {
		got, err := GetOrLoad(context.Background(), s, FAQs().Published(), load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, got)
	}
	assert.Equal(t, 1, calls)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	s := New(time.Minute)
	boom := errors.New("boom")
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	_, err := GetOrLoad(context.Background(), s, Departments().List(), load)
	require.ErrorIs(t, err, boom)

	got, err := GetOrLoad(context.Background(), s, Departments().List(), load)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestExpiry(t *testing.T) {
	s := New(time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set(Events().ByID("x"), "v")
	_, ok := s.Get(Events().ByID("x"))
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get(Events().ByID("x"))
	assert.False(t, ok)

	s.Prune()
	assert.Equal(t, 0, s.Len())
}

func TestInvalidateByResource(t *testing.T) {
	s := New(time.Minute)
	s.Set(Events().ByID("1"), 1)
	s.Set(Events().Upcoming(5), 2)
	s.Set(Departments().List(), 3)

	s.Invalidate(ResourceEvents)

	_, ok := s.Get(Events().ByID("1"))
	assert.False(t, ok)
	_, ok = s.Get(Events().Upcoming(5))
	assert.False(t, ok)
	_, ok = s.Get(Departments().List())
	assert.True(t, ok)
}

func TestInvalidateDuringLoadDiscardsResult(t *testing.T) {
	s := New(time.Minute)
	key := Events().ByID("1")

	_, err := GetOrLoad(context.Background(), s, key, func(context.Context) (string, error) {
		s.Invalidate(ResourceEvents)
		return "stale", nil
	})
	require.NoError(t, err)

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	s := New(time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = GetOrLoad(context.Background(), s, Gallery().Album("a"), func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 1, nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	s := New(time.Minute)
	key := Events().Upcoming(5)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var loadErr atomic.Value
	load := func(ctx context.Context) (int, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return 0, err
		}
		return 7, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := GetOrLoad(ctx, s, key, load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := GetOrLoad(context.Background(), s, key, load)
		second <- result{v, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 7, got.v)
	assert.Nil(t, loadErr.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestNilStoreAlwaysLoads(t *testing.T) {
	got, err := GetOrLoad(context.Background(), (*Store)(nil), FAQs().Published(), func(context.Context) (string, error) {
		return "x", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}
