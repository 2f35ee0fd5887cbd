// Package channel provides generic channel wrappers used to hand simulation
// frames from the frame loop to slower consumers.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// Pump calls fn for every value received until the channel is closed. The
// returned channel is closed once the last value has been handled.
func Pump[T any](r Receiver[T], fn func(T)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range r.Receive() {
			fn(v)
		}
	}()
	return done
}
