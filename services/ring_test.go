package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
		assert.LessOrEqual(t, r.Len(), r.Cap())
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Values())
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a")
	r.Push("b")

	assert.Equal(t, []string{"a", "b"}, r.Values())
}

func TestRing_ValuesIsACopy(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)

	v := r.Values()
	v[0] = 99

	assert.Equal(t, []int{1}, r.Values())
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)

	assert.Equal(t, 1, r.Cap())
	assert.Equal(t, []int{2}, r.Values())
}
