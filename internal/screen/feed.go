package screen

import (
	"sync"
	"time"

	"github.com/loocate/loocate/internal/nearby"
)

// CameraEvent is one camera move as delivered to feed subscribers.
type CameraEvent struct {
	Sequence uint64            `json:"sequence"`
	ScreenID string            `json:"screenId"`
	Move     nearby.CameraMove `json:"move"`
	At       time.Time         `json:"at"`
}

// MoveObserver is told about every camera move a feed publishes.
type MoveObserver func(screenID string)

const subscriberBuffer = 16

// CameraFeed is the camera of a mounted screen. It keeps the last move and
// fans moves out to subscribers. Slow subscribers miss moves rather than
// blocking the screen.
type CameraFeed struct {
	screenID string
	observer MoveObserver
	now      func() time.Time

	mutex       sync.RWMutex
	last        *CameraEvent
	sequence    uint64
	subscribers map[chan CameraEvent]struct{}
	closed      bool
}

// NewCameraFeed creates a feed for screenID. observer may be nil.
func NewCameraFeed(screenID string, observer MoveObserver) *CameraFeed {
	return &CameraFeed{
		screenID:    screenID,
		observer:    observer,
		now:         time.Now,
		subscribers: make(map[chan CameraEvent]struct{}),
	}
}

// AnimateTo implements nearby.Camera.
func (f *CameraFeed) AnimateTo(move nearby.CameraMove) {
	f.mutex.Lock()
	if f.closed {
		f.mutex.Unlock()
		return
	}
	f.sequence++
	event := CameraEvent{Sequence: f.sequence, ScreenID: f.screenID, Move: move, At: f.now()}
	f.last = &event
	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	f.mutex.Unlock()

	if f.observer != nil {
		f.observer(f.screenID)
	}
}

// Last returns the most recent move, if any.
func (f *CameraFeed) Last() (CameraEvent, bool) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.last == nil {
		return CameraEvent{}, false
	}
	return *f.last, true
}

// Subscribe registers a listener. The returned func unregisters it and
// closes the channel; calling it twice is safe. Subscribing to a closed
// feed yields an already closed channel.
func (f *CameraFeed) Subscribe() (<-chan CameraEvent, func()) {
	ch := make(chan CameraEvent, subscriberBuffer)

	f.mutex.Lock()
	if f.closed {
		f.mutex.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subscribers[ch] = struct{}{}
	f.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { f.unsubscribe(ch) })
	}
}

func (f *CameraFeed) unsubscribe(ch chan CameraEvent) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *CameraFeed) Subscribers() int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return len(f.subscribers)
}

// Close ends every subscription. Later moves are dropped.
func (f *CameraFeed) Close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
}
