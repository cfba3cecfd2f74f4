package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SharesInFlight(t *testing.T) {
	t.Parallel()
	var c Cache[string]
	key := Key{Source: "a.mp4", Start: 100, End: -1}

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "moov", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Do(context.Background(), key, fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	<-started
	assert.Eventually(t, func() bool { return c.State(key) == InFlight }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "moov", r)
	}
	assert.Equal(t, Resolved, c.State(key))

	v, err := c.Do(context.Background(), key, func(context.Context) (string, error) {
		t.Error("resolved key fetched again")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "moov", v)
}

func TestCache_ErrorsAreNotMemoized(t *testing.T) {
	t.Parallel()
	var c Cache[int]
	key := Key{Source: "b.mp4", Start: 0, End: 15}
	boom := errors.New("boom")

	_, err := c.Do(context.Background(), key, func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, NotStarted, c.State(key))

	v, err := c.Do(context.Background(), key, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCache_CallerCancellation(t *testing.T) {
	t.Parallel()
	var c Cache[int]
	key := Key{Source: "c.mp4", Start: 0, End: -1}
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("user aborted")
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel(cause)
	}()
	_, err := c.Do(ctx, key, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, cause)
}

func TestCache_Store(t *testing.T) {
	t.Parallel()
	var c Cache[[]byte]
	key := Key{Source: "d.mp4", Start: 10, End: 20}
	c.Store(key, []byte{1})
	assert.Equal(t, Resolved, c.State(key))
	assert.Equal(t, []Key{key}, c.Keys())
}
