package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClock(t *testing.T) {
	clock := NewClock()

	require.NotNil(t, clock)
	assert.Empty(t, clock, "New clock should have no entries")
	assert.Equal(t, uint64(0), clock.Get("node-a"), "Unknown node should read as 0")
}

func TestNewNodeID(t *testing.T) {
	first := NewNodeID()
	second := NewNodeID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second, "Node IDs should be unique")
}

func TestClock_Increment(t *testing.T) {
	clock := NewClock()

	clock.Increment("node-a")
	clock.Increment("node-a")
	clock.Increment("node-b")

	assert.Equal(t, uint64(2), clock.Get("node-a"))
	assert.Equal(t, uint64(1), clock.Get("node-b"))
}

func TestClock_Clone(t *testing.T) {
	clock := Clock{"node-a": 3, "node-b": 1}

	clone := clock.Clone()
	clone.Increment("node-a")

	assert.Equal(t, uint64(3), clock.Get("node-a"), "Original should not be affected by clone mutation")
	assert.Equal(t, uint64(4), clone.Get("node-a"))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a        Clock
		b        Clock
		expected Ordering
	}{
		{
			name:     "empty clocks are equal",
			a:        Clock{},
			b:        Clock{},
			expected: OrderingEqual,
		},
		{
			name:     "identical clocks are equal",
			a:        Clock{"a": 1, "b": 2},
			b:        Clock{"a": 1, "b": 2},
			expected: OrderingEqual,
		},
		{
			name:     "strictly dominated is before",
			a:        Clock{"a": 1},
			b:        Clock{"a": 2},
			expected: OrderingBefore,
		},
		{
			name:     "strictly dominating is after",
			a:        Clock{"a": 2, "b": 1},
			b:        Clock{"a": 1, "b": 1},
			expected: OrderingAfter,
		},
		{
			name:     "missing entry treated as zero",
			a:        Clock{"a": 1, "b": 1},
			b:        Clock{"a": 1},
			expected: OrderingAfter,
		},
		{
			name:     "disjoint nodes are concurrent",
			a:        Clock{"a": 1},
			b:        Clock{"b": 1},
			expected: OrderingConcurrent,
		},
		{
			name:     "crossed counters are concurrent",
			a:        Clock{"a": 2, "b": 1},
			b:        Clock{"a": 1, "b": 2},
			expected: OrderingConcurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compare(tt.a, tt.b))
		})
	}
}

// TestCompare_ExactlyOneRelation проверяет, что для любой пары часов
// выполняется ровно одно из отношений before/after/equal/concurrent.
func TestCompare_ExactlyOneRelation(t *testing.T) {
	samples := []Clock{
		{},
		{"a": 1},
		{"a": 2},
		{"b": 1},
		{"a": 1, "b": 1},
		{"a": 2, "b": 1},
		{"a": 1, "b": 2},
		{"a": 3, "b": 3, "c": 1},
	}

	for _, a := range samples {
		for _, b := range samples {
			ord := Compare(a, b)
			assert.Contains(t,
				[]Ordering{OrderingBefore, OrderingAfter, OrderingEqual, OrderingConcurrent},
				ord)

			// Симметрия конкурентности и двойственность before/after.
			switch ord {
			case OrderingConcurrent:
				assert.Equal(t, OrderingConcurrent, Compare(b, a), "Concurrency must be symmetric")
			case OrderingBefore:
				assert.Equal(t, OrderingAfter, Compare(b, a))
			case OrderingAfter:
				assert.Equal(t, OrderingBefore, Compare(b, a))
			case OrderingEqual:
				assert.Equal(t, OrderingEqual, Compare(b, a))
			}
		}
	}
}

func TestConcurrent_Symmetry(t *testing.T) {
	a := Clock{"a": 2, "b": 1}
	b := Clock{"a": 1, "b": 2}

	assert.True(t, Concurrent(a, b))
	assert.True(t, Concurrent(b, a), "concurrent(A,B) must equal concurrent(B,A)")
}

func TestMax(t *testing.T) {
	a := Clock{"a": 2, "b": 1}
	b := Clock{"a": 1, "b": 3, "c": 5}

	merged := Max(a, b)

	assert.Equal(t, Clock{"a": 2, "b": 3, "c": 5}, merged)
	assert.Equal(t, Clock{"a": 2, "b": 1}, a, "Max must not mutate inputs")
	assert.Equal(t, Clock{"a": 1, "b": 3, "c": 5}, b, "Max must not mutate inputs")
}

func TestOrdering_String(t *testing.T) {
	assert.Equal(t, "before", OrderingBefore.String())
	assert.Equal(t, "after", OrderingAfter.String())
	assert.Equal(t, "equal", OrderingEqual.String())
	assert.Equal(t, "concurrent", OrderingConcurrent.String())
}
