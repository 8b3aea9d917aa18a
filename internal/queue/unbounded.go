// Package queue provides the unbounded FIFO channels that connect the
// workers. Senders never block on a slow consumer; memory grows instead.
package queue

// Unbounded is a FIFO with a channel on each end and a pump goroutine
// holding the backlog in between. Order is preserved per sender.
type Unbounded[T any] struct {
	in  chan T
	out chan T
}

func NewUnbounded[T any]() *Unbounded[T] {
	q := &Unbounded[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.pump()
	return q
}

// In is the producer side. Sending after Close panics.
func (q *Unbounded[T]) In() chan<- T {
	return q.in
}

// Out is the consumer side. It is closed once Close was called and every
// buffered item has been received.
func (q *Unbounded[T]) Out() <-chan T {
	return q.out
}

func (q *Unbounded[T]) Push(v T) {
	q.in <- v
}

// Close ends the producer side. Call it once, after every producer exited.
func (q *Unbounded[T]) Close() {
	close(q.in)
}

func (q *Unbounded[T]) pump() {
	defer close(q.out)
	var backlog []T
	in := q.in
	for in != nil || len(backlog) > 0 {
		var out chan T
		var next T
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}
		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, v)
		case out <- next:
			var zero T
			backlog[0] = zero
			backlog = backlog[1:]
		}
	}
}
