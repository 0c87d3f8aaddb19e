package asynccache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetOrEval_NoKey(t *testing.T) {
	cache := New[int, int]()
	actual, err := cache.GetOrEval(1, func() (int, error) { return 1, nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, actual)
}

func TestGetOrEval_WithKeyReturnsFirstResult(t *testing.T) {
	cache := New[int, int]()
	_, _ = cache.GetOrEval(1, func() (int, error) { return 1, nil })

	actual, err := cache.GetOrEval(1, func() (int, error) { return 2, nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, actual)
}

func TestGetOrEval_WithMultiGet(t *testing.T) {
	cache := New[int, int]()
	for i := 0; i < 100; i++ {
		i := i
		_, _ = cache.GetOrEval(1, func() (int, error) { return i, nil })
	}

	actual, err := cache.GetOrEval(1, func() (int, error) { return 2, nil })
	assert.NoError(t, err)
	assert.Equal(t, 0, actual)
}

func TestGetOrEval_WithFailure(t *testing.T) {
	cache := New[int, string]()
	_, err := cache.GetOrEval(1, func() (string, error) { return "", errors.New("error") })
	assert.Error(t, err)
}

func TestGetOrEval_WithMultiGetFailureIsAlsoCached(t *testing.T) {
	cache := New[int, int]()
	_, _ = cache.GetOrEval(1, func() (int, error) { return 0, errors.New("error") })

	_, err := cache.GetOrEval(1, func() (int, error) { return 2, nil })
	assert.Error(t, err)
}

func TestGetOrEval_ConcurrentAccessSharesOneEvaluation(t *testing.T) {
	cache := New[int, int]()
	const n = 100
	results := make([]int, n)
	var evals atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, _ := cache.GetOrEval(1, func() (int, error) { evals.Add(1); return 42, nil })
			results[i] = v
		}()
	}
	wg.Wait()
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), evals.Load())
}

func TestLoadWithoutCache_Basic(t *testing.T) {
	cache := New[int, string]()

	result1, err := cache.LoadWithoutCache(1, func() (string, error) { return "value1", nil })
	assert.NoError(t, err)
	assert.Equal(t, "value1", result1)

	var result2a, result2b string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result2a, _ = cache.LoadWithoutCache(2, func() (string, error) {
			time.Sleep(100 * time.Millisecond)
			return "value2", nil
		})
	}()
	go func() {
		defer wg.Done()
		result2b, _ = cache.LoadWithoutCache(2, func() (string, error) {
			time.Sleep(200 * time.Millisecond)
			return "value2", nil
		})
	}()
	wg.Wait()
	assert.Equal(t, result2a, result2b)
	assert.Equal(t, "value2", result2a)

	_, err = cache.LoadWithoutCache(3, func() (string, error) { return "", errors.New("failed") })
	assert.EqualError(t, err, "failed")
}

func TestLoadWithoutCache_DoesNotRetainEntry(t *testing.T) {
	cache := New[int, int]()
	_, _ = cache.LoadWithoutCache(1, func() (int, error) { return 1, nil })
	actual, _ := cache.LoadWithoutCache(1, func() (int, error) { return 2, nil })
	assert.Equal(t, 2, actual)
}

func TestLoadWithoutCache_RaceConditionAllCallersObserveSameResult(t *testing.T) {
	cache := New[int, string]()
	const n = 10
	results := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, _ := cache.LoadWithoutCache(1, func() (string, error) {
				time.Sleep(50 * time.Millisecond)
				return "value", nil
			})
			results[i] = v
		}()
	}
	wg.Wait()
	for _, v := range results {
		assert.Equal(t, results[0], v)
	}
}
