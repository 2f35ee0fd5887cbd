package channel

// New returns a channel buffering size values. Lockstep builds, and a size
// of zero, hand each value straight to the receiver so the frame loop runs
// at the pace of its slowest sink.
func New[T any](size int) Channel[T] {
	if lockstep || size <= 0 {
		return NewUnbuffered[T]()
	}
	return NewBuffered[T](size)
}
