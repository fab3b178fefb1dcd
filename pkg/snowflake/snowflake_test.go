package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.Error(t, err)
	_, err = NewNode(nodeMax + 1)
	assert.Error(t, err)

	n, err := NewNode(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), NodeOf(n.Generate()))
}

func TestGenerateIsMonotonic(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	prev := n.Generate()
	for i := 0; i < 10000; i++ {
		id := n.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerateSurvivesClockRewind(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return base }
	first := n.Generate()

	n.now = func() time.Time { return base.Add(-time.Minute) }
	second := n.Generate()
	assert.Greater(t, second, first)
}

func TestTimeRoundTrip(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	at := time.Date(2026, 10, 16, 9, 30, 0, 123000000, time.UTC)
	n.now = func() time.Time { return at }
	assert.Equal(t, at, Time(n.Generate()))
}

func TestGenerateConcurrent(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	const workers, each = 8, 500
	ids := make(chan int64, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				ids <- n.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*each)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}
