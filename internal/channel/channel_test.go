package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffered(t *testing.T) {
	c := NewBuffered[int](2)
	c.Send(1)
	assert.True(t, c.TrySend(2))
	assert.False(t, c.TrySend(3), "buffer is full")
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, <-c.Receive())
	assert.Equal(t, 1, c.Len())
}

func TestUnbuffered_TrySendWithoutReceiver(t *testing.T) {
	c := NewUnbuffered[string]()
	assert.False(t, c.TrySend("x"))
	assert.Equal(t, 0, c.Len())
}

func TestPump(t *testing.T) {
	c := New[int](4)
	var got []int
	done := Pump[int](c, func(v int) { got = append(got, v) })

	for i := range 10 {
		c.Send(i)
	}
	c.Close()
	<-done

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestNew_ZeroSizeIsUnbuffered(t *testing.T) {
	c := New[int](0)
	assert.False(t, c.TrySend(1), "nobody is receiving")
}
