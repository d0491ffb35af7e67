package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	t.Run("fresh state has everything pending", func(t *testing.T) {
		s := newState([]string{"a", "b", "c"})
		assert.Equal(t, []string{"a", "b", "c"}, s.pending())
		assert.False(t, s.isDone())
	})

	t.Run("started and terminal objects leave pending", func(t *testing.T) {
		s := newState([]string{"a", "b", "c"})
		s.start("a")
		s.fail("b")
		assert.Equal(t, []string{"c"}, s.pending())

		s.finish("a")
		assert.Equal(t, []string{"c"}, s.pending())
		assert.False(t, s.isDone())
	})

	t.Run("done once every object is finished or failed", func(t *testing.T) {
		s := newState([]string{"a", "b"})
		s.start("a")
		s.finish("a")
		assert.False(t, s.isDone())
		s.fail("b")
		assert.True(t, s.isDone())
		assert.Empty(t, s.pending())
	})

	t.Run("empty universe is done immediately", func(t *testing.T) {
		s := newState[string](nil)
		assert.True(t, s.isDone())
		assert.Empty(t, s.pending())
	})

	t.Run("adding twice does not double count", func(t *testing.T) {
		s := newState([]int{1, 2})
		s.fail(1)
		s.fail(1)
		assert.False(t, s.isDone())
		assert.True(t, s.isFailed(1))
		assert.False(t, s.isFinished(1))
	})
}
