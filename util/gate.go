package util

import "sync"

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// to allow through at a time. Goroutines enter the gate by calling Enter(),
// and signal that they are done by calling Leave().
//
// Once Stop() is called, goroutines waiting to enter are turned away and
// Stop blocks until everyone already inside has left.
type Gate struct {
	slots chan struct{}
	stop  chan struct{}
	once  sync.Once
}

// NewGate returns a Gate which accepts at most n entries at a time.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{
		slots: make(chan struct{}, n),
		stop:  make(chan struct{}),
	}
}

// Enter is called at the beginning of the section to be protected by
// the gate, and will block the calling goroutine until there are less than
// n goroutines inside. It returns false if the gate was stopped, in which
// case the caller must not call Leave.
// It is safe to call this from multiple goroutines.
func (g *Gate) Enter() bool {
	select {
	case <-g.stop:
		return false
	default:
	}
	select {
	case g.slots <- struct{}{}:
	case <-g.stop:
		return false
	}
	// a slot may have freed at the same moment the gate was stopped
	select {
	case <-g.stop:
		<-g.slots
		return false
	default:
	}
	return true
}

// Leave marks a goroutine outside the critical section. It is important to
// balance each successful call to Enter with a call to Leave. Enter and
// Leave do not need to be called from the same goroutine, necessarily.
func (g *Gate) Leave() {
	<-g.slots
}

// Stop closes the gate to new entries and waits for everyone inside to
// Leave. It is safe to call Stop more than once.
func (g *Gate) Stop() {
	g.once.Do(func() {
		close(g.stop)
		for i := 0; i < cap(g.slots); i++ {
			g.slots <- struct{}{}
		}
	})
}
