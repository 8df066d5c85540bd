package blockstream

import "sync"

// Switch is a one-shot binary event usable across the issuing goroutine and the
// I/O-completion goroutine(s). It starts unsignaled, transitions to signaled
// exactly once, and is never reset.
//
// Signal is safe to call from any goroutine and tolerates repeated calls.
// All memory writes made before Signal are visible to goroutines that return
// from Wait or observe Signaled() == true.
type Switch struct {
	once sync.Once
	done chan struct{}
}

// NewSwitch returns an unsignaled switch.
func NewSwitch() *Switch {
	return &Switch{done: make(chan struct{})}
}

// Signal flips the switch on. Subsequent calls are no-ops.
func (s *Switch) Signal() {
	s.once.Do(func() { close(s.done) })
}

// Wait blocks until the switch has been signaled. Returns immediately if it
// already has.
func (s *Switch) Wait() {
	<-s.done
}

// Signaled reports whether the switch has been signaled.
func (s *Switch) Signaled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
