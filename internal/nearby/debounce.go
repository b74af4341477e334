package nearby

import (
	"sync"
	"time"
)

// Debouncer keeps at most one pending task. Triggering again cancels the
// pending task; a task whose timer already fired but lost the race to a newer
// trigger is dropped, so the last trigger always wins.
type Debouncer struct {
	scheduler  Scheduler
	mu         sync.Mutex
	pending    Handle
	generation uint64
	stopped    bool
}

// NewDebouncer creates a debouncer on top of scheduler.
func NewDebouncer(scheduler Scheduler) *Debouncer {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Debouncer{scheduler: scheduler}
}

// Trigger schedules fn after delay, replacing any pending task.
func (d *Debouncer) Trigger(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.pending != nil {
		d.pending.Cancel()
	}
	d.generation++
	gen := d.generation
	d.pending = d.scheduler.Schedule(delay, func() {
		d.mu.Lock()
		if d.stopped || d.generation != gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task, if any.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

func (d *Debouncer) cancelLocked() bool {
	if d.pending == nil {
		return false
	}
	d.generation++
	cancelled := d.pending.Cancel()
	d.pending = nil
	return cancelled
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending task and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}
