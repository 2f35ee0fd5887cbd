package channel

type chanImpl[T any] struct {
	ch chan T
}

// Send blocks until the value is buffered or received.
func (c *chanImpl[T]) Send(v T) {
	c.ch <- v
}

// TrySend delivers v only if that would not block.
func (c *chanImpl[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

func (c *chanImpl[T]) Receive() <-chan T {
	return c.ch
}

// Len returns the number of buffered values; always 0 when unbuffered.
func (c *chanImpl[T]) Len() int {
	return len(c.ch)
}

func (c *chanImpl[T]) Close() {
	close(c.ch)
}

// Buffered is a channel with a fixed buffer.
type Buffered[T any] struct {
	chanImpl[T]
}

// NewBuffered creates a new buffered channel with the given size
func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{chanImpl[T]{ch: make(chan T, size)}}
}

// Unbuffered hands each value directly to a receiver.
type Unbuffered[T any] struct {
	chanImpl[T]
}

// NewUnbuffered creates a new unbuffered channel
func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{chanImpl[T]{ch: make(chan T)}}
}
