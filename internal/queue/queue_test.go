package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleKeepsInsertionOrder(t *testing.T) {
	q := New()
	assert.True(t, q.Toggle(3))
	assert.True(t, q.Toggle(1))
	assert.True(t, q.Toggle(2))
	assert.Equal(t, []int64{3, 1, 2}, q.Items())

	assert.False(t, q.Toggle(1))
	assert.Equal(t, []int64{3, 2}, q.Items())
	assert.False(t, q.Contains(1))
	assert.Equal(t, 2, q.Position(2))
	assert.Equal(t, 0, q.Position(1))

	// Re-adding goes to the back.
	assert.True(t, q.Toggle(1))
	assert.Equal(t, []int64{3, 2, 1}, q.Items())
}

func TestPopAndFront(t *testing.T) {
	q := New()
	_, err := q.Front()
	require.ErrorIs(t, err, ErrEmpty)
	_, err = q.Pop()
	require.ErrorIs(t, err, ErrEmpty)

	q.Toggle(7)
	q.Toggle(8)

	id, err := q.Front()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 2, q.Len())

	id, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, []int64{8}, q.Items())
}

func TestPopIfOnlyRemovesMatchingFront(t *testing.T) {
	q := New()
	q.Toggle(1)
	q.Toggle(2)

	assert.False(t, q.PopIf(2))
	assert.True(t, q.PopIf(1))
	assert.Equal(t, []int64{2}, q.Items())
}

func TestRemoveAndClear(t *testing.T) {
	q := New()
	q.Toggle(1)
	q.Toggle(2)

	assert.True(t, q.Remove(1))
	assert.False(t, q.Remove(1))
	assert.Equal(t, []int64{2}, q.Items())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Items())
}

func TestItemsIsACopy(t *testing.T) {
	q := New()
	q.Toggle(1)
	items := q.Items()
	items[0] = 99
	assert.Equal(t, []int64{1}, q.Items())
}

func TestConcurrentToggle(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			q.Toggle(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}
