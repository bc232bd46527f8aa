package clock

import (
	"math"
	"testing"

	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClockStartsAtZero(t *testing.T) {
	c := New("node-1")
	assert.Equal(t, uint64(0), c.Counter)
	assert.Equal(t, "node-1", c.NodeID)
}

func TestTickIncrementsCounter(t *testing.T) {
	c := New("node-1")
	v, err := c.Tick()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Counter)
	v, err = c.Tick()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Counter)
}

func TestTickOverflowIsFatal(t *testing.T) {
	c := WithCounter("node-1", math.MaxUint64)
	_, err := c.Tick()
	require.Error(t, err)
	assert.Equal(t, engineerr.KindClockOverflow, engineerr.KindOf(err))
}

func TestOrderingByCounter(t *testing.T) {
	c1 := WithCounter("node-a", 1)
	c2 := WithCounter("node-b", 2)
	assert.True(t, Less(c1, c2))
}

func TestOrderingByNodeIDWhenCounterEqual(t *testing.T) {
	a := WithCounter("node-a", 5)
	b := WithCounter("node-b", 5)
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}

func TestMergeTakesMaxCounter(t *testing.T) {
	c1 := WithCounter("node-1", 3)
	c2 := WithCounter("node-2", 7)
	c1.Merge(c2)
	assert.Equal(t, uint64(7), c1.Counter)
	assert.Equal(t, "node-1", c1.NodeID)
}

func TestMergeKeepsHigherCounter(t *testing.T) {
	c1 := WithCounter("node-1", 10)
	c2 := WithCounter("node-2", 5)
	c1.Merge(c2)
	assert.Equal(t, uint64(10), c1.Counter)
}

func TestHappenedBefore(t *testing.T) {
	c1 := WithCounter("node-1", 1)
	c2 := WithCounter("node-2", 2)
	assert.True(t, HappenedBefore(c1, c2))
	assert.False(t, HappenedBefore(c2, c1))
}

func TestIsConcurrent(t *testing.T) {
	c1 := WithCounter("node-1", 5)
	c2 := WithCounter("node-2", 5)
	assert.True(t, IsConcurrentWith(c1, c2))

	c3 := WithCounter("node-1", 5)
	assert.False(t, IsConcurrentWith(c1, c3))
}

func TestDominates(t *testing.T) {
	lower := WithCounter("local", 3)
	higher := WithCounter("local", 4)
	assert.True(t, Dominates(higher, lower))
	assert.False(t, Dominates(lower, higher))
	identical := WithCounter("local", 4)
	assert.False(t, Dominates(higher, identical))
	assert.False(t, Dominates(identical, higher))
}
