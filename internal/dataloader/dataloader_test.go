package dataloader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityLoader(t *testing.T, maxKeys int) LoadFunc[int, int] {
	return func(keys []int) (map[int]int, error) {
		if maxKeys > 0 {
			require.LessOrEqual(t, len(keys), maxKeys)
		}
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}
}

func TestLoadOne_Batches100Concurrent(t *testing.T) {
	loader := New(identityLoader(t, 10)).WithMaxBatchSize(10)

	results := make([]int, 100)
	var wg sync.WaitGroup
	wg.Add(100)
	for n := 0; n < 100; n++ {
		n := n
		go func() {
			defer wg.Done()
			v, ok, err := loader.LoadOne(n)
			require.NoError(t, err)
			require.True(t, ok)
			results[n] = v
		}()
	}
	wg.Wait()
	for n, v := range results {
		assert.Equal(t, n, v)
	}
}

func TestLoadOne_DuplicateKeys(t *testing.T) {
	loader := New(identityLoader(t, 10)).WithMaxBatchSize(10)
	keys := []int{1, 3, 5, 1, 7, 8, 3, 7}

	results := make([]int, len(keys))
	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, k := range keys {
		i, k := i, k
		go func() {
			defer wg.Done()
			v, ok, err := loader.LoadOne(k)
			require.NoError(t, err)
			require.True(t, ok)
			results[i] = v
		}()
	}
	wg.Wait()
	assert.Equal(t, keys, results)
}

func TestLoadMany_Empty(t *testing.T) {
	loader := New(identityLoader(t, 0))
	values, err := loader.LoadMany(nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestLoadMany_WithCache(t *testing.T) {
	loader := WithCache(identityLoader(t, 0))
	loader.FeedMany(map[int]int{1: 10, 2: 20, 3: 30})

	values, err := loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 10, 2: 20, 3: 30}, values)

	values, err = loader.LoadMany([]int{1, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 10, 5: 5, 6: 6}, values)

	values, err = loader.LoadMany([]int{8, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{8: 8, 9: 9, 10: 10}, values)

	loader.Clear()
	values, err = loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 3}, values)
}

func TestEnableAllCache(t *testing.T) {
	loader := WithCache(identityLoader(t, 0))
	loader.FeedMany(map[int]int{1: 10, 2: 20, 3: 30})

	loader.EnableAllCache(false)
	values, err := loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 3}, values)

	loader.EnableAllCache(true)
	values, err = loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 10, 2: 20, 3: 30}, values)
}

func TestEnableCache(t *testing.T) {
	loader := WithCache(identityLoader(t, 0))
	loader.FeedMany(map[int]int{1: 10, 2: 20, 3: 30})

	loader.EnableCache(false)
	values, err := loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 3}, values)

	loader.EnableCache(true)
	values, err = loader.LoadMany([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 10, 2: 20, 3: 30}, values)
}

func TestLoadMany_DeadlockUnderConcurrentDispatch(t *testing.T) {
	delayLoad := func(keys []int) (map[int]int, error) {
		time.Sleep(200 * time.Millisecond)
		out := make(map[int]int, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}
	loader := New(delayLoad).WithDelay(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_, _ = loader.LoadMany([]int{1, 2, 3})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	values, err := loader.LoadMany([]int{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4: 4, 5: 5, 6: 6}, values)
	<-done
}
