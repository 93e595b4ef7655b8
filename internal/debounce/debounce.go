// Package debounce coalesces bursts of values into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delivers the last pushed value once no push has happened for the
// configured delay.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	value      T
	pending    bool
}

func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

func (d *Debouncer[T]) Push(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	generation := d.generation
	d.value = value
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(generation)
	})
}

func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	value := d.value
	d.stopLocked()
	d.mu.Unlock()

	d.fn(value)
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer[T]) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	d.pending = false
	var zero T
	d.value = zero
}

// fire runs on the timer goroutine. A timer that was superseded after it
// started firing sees a newer generation and does nothing.
func (d *Debouncer[T]) fire(generation uint64) {
	d.mu.Lock()
	if generation != d.generation || !d.pending {
		d.mu.Unlock()
		return
	}
	value := d.value
	d.timer = nil
	d.pending = false
	d.mu.Unlock()

	d.fn(value)
}
