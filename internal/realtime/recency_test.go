package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecencySeenAfterAdd(t *testing.T) {
	s := newRecencySet(8)
	assert.False(t, s.Seen("a"))
	s.Add("a")
	assert.True(t, s.Seen("a"))
}

func TestRecencyAddIsIdempotent(t *testing.T) {
	s := newRecencySet(4)
	s.Add("a")
	s.Add("a")
	assert.Equal(t, 1, s.Len())
}

func TestRecencyEvictsOldestAtCapacity(t *testing.T) {
	s := newRecencySet(3)
	s.Add("a")
	s.Add("b")
	s.Add("c")
	s.Add("d")

	assert.False(t, s.Seen("a"))
	assert.True(t, s.Seen("b"))
	assert.True(t, s.Seen("d"))
	assert.Equal(t, 3, s.Len())
}

func TestRecencyStaysBounded(t *testing.T) {
	s := newRecencySet(16)
	for i := 0; i < 1000; i++ {
		s.Add(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 16, s.Len())
	assert.True(t, s.Seen("key-999"))
	assert.False(t, s.Seen("key-0"))
}
