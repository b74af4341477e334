package nearby

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_LastTriggerWins(t *testing.T) {
	s := NewManualScheduler()
	d := NewDebouncer(s)
	var fired []int

	d.Trigger(10*time.Millisecond, func() { fired = append(fired, 1) })
	s.Advance(5 * time.Millisecond)
	d.Trigger(10*time.Millisecond, func() { fired = append(fired, 2) })
	assert.True(t, d.Pending())

	s.Advance(9 * time.Millisecond)
	assert.Empty(t, fired, "first task was cancelled, second not yet due")

	s.Advance(time.Millisecond)
	assert.Equal(t, []int{2}, fired)
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateWindowsBothFire(t *testing.T) {
	s := NewManualScheduler()
	d := NewDebouncer(s)
	var fired []int

	d.Trigger(10*time.Millisecond, func() { fired = append(fired, 1) })
	s.Advance(10 * time.Millisecond)
	d.Trigger(10*time.Millisecond, func() { fired = append(fired, 2) })
	s.Advance(10 * time.Millisecond)

	assert.Equal(t, []int{1, 2}, fired)
}

// staleScheduler hands out handles that never manage to cancel, the way a
// real timer behaves once its goroutine has already started.
type staleScheduler struct {
	tasks []func()
}

type noopHandle struct{}

func (noopHandle) Cancel() bool { return false }

func (s *staleScheduler) Schedule(delay time.Duration, fn func()) Handle {
	s.tasks = append(s.tasks, fn)
	return noopHandle{}
}

func TestDebouncer_DropsTaskThatLostTheRace(t *testing.T) {
	s := &staleScheduler{}
	d := NewDebouncer(s)
	var fired []int

	d.Trigger(0, func() { fired = append(fired, 1) })
	d.Trigger(0, func() { fired = append(fired, 2) })

	for _, task := range s.tasks {
		task()
	}
	assert.Equal(t, []int{2}, fired)
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	s := NewManualScheduler()
	d := NewDebouncer(s)
	var fired int32

	d.Trigger(time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	d.Trigger(time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	d.Stop()
	d.Trigger(time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	s.Advance(time.Second)
	assert.Zero(t, atomic.LoadInt32(&fired))
	assert.False(t, d.Pending())
}

func TestDebouncer_RealTimers(t *testing.T) {
	d := NewDebouncer(nil)
	var last int32
	done := make(chan struct{}, 10)

	for i := int32(1); i <= 5; i++ {
		v := i
		d.Trigger(20*time.Millisecond, func() {
			atomic.StoreInt32(&last, v)
			done <- struct{}{}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced task never ran")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(5), atomic.LoadInt32(&last))
	assert.Len(t, done, 0)
}
