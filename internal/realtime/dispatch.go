package realtime

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// dispatcher runs callbacks one at a time in submission order. A callback
// that submits more work does not block: the work is queued and run by the
// goroutine that is already draining.
type dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	logger   *slog.Logger
}

func (d *dispatcher) run(fns ...func()) {
	if len(fns) == 0 {
		return
	}

	d.mu.Lock()
	d.queue = append(d.queue, fns...)
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.call(fn)
		d.mu.Lock()
	}
	d.draining = false
	d.mu.Unlock()
}

// call isolates the dispatcher from panicking handlers
func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
