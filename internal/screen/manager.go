package screen

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/telemetry"
)

// DefaultTTL is how long an untouched screen stays mounted.
const DefaultTTL = 30 * time.Minute

// Screen is one mounted map screen.
type Screen struct {
	ID          string       `json:"id"`
	Sync        *nearby.Sync `json:"-"`
	Camera      *CameraFeed  `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUpdated time.Time    `json:"last_updated"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// SyncFactory builds the sync for a new screen around its camera. A zero
// radius means the configured default.
type SyncFactory func(screenID string, camera nearby.Camera, radiusMeters float64) *nearby.Sync

// Config configures a Manager.
type Config struct {
	TTL          time.Duration
	Factory      SyncFactory
	OnMove       MoveObserver
	OnActiveSize func(active int)
}

// Manager owns the mounted screens.
type Manager struct {
	screens map[string]*Screen
	mutex   sync.RWMutex
	config  Config
	now     func() time.Time
}

// NewManager creates a screen manager.
func NewManager(config Config) *Manager {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Manager{
		screens: make(map[string]*Screen),
		config:  config,
		now:     time.Now,
	}
}

// Mount creates a screen with a fresh id. radiusMeters overrides the
// default search radius when positive.
func (m *Manager) Mount(radiusMeters float64) *Screen {
	id := uuid.New().String()
	feed := NewCameraFeed(id, m.config.OnMove)
	now := m.now()
	screen := &Screen{
		ID:          id,
		Sync:        m.config.Factory(id, feed, radiusMeters),
		Camera:      feed,
		CreatedAt:   now,
		LastUpdated: now,
		ExpiresAt:   now.Add(m.config.TTL),
	}

	m.mutex.Lock()
	m.screens[id] = screen
	active := len(m.screens)
	m.mutex.Unlock()

	m.reportActive(active)
	snapshot := *screen
	return &snapshot
}

// Get extends a mounted screen's lifetime and returns a copy of it taken
// under the manager lock.
func (m *Manager) Get(id string) (*Screen, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	screen, exists := m.screens[id]
	now := m.now()
	if !exists || now.After(screen.ExpiresAt) {
		return nil, apperrors.NewNotFoundError("screen")
	}
	screen.LastUpdated = now
	screen.ExpiresAt = now.Add(m.config.TTL)
	snapshot := *screen
	return &snapshot, nil
}

// Unmount tears a screen down. Pending camera moves are dropped and
// camera subscribers are disconnected.
func (m *Manager) Unmount(id string) error {
	m.mutex.Lock()
	screen, exists := m.screens[id]
	if exists {
		delete(m.screens, id)
	}
	active := len(m.screens)
	m.mutex.Unlock()

	if !exists {
		return apperrors.NewNotFoundError("screen")
	}
	teardown(screen)
	m.reportActive(active)
	return nil
}

// CleanupExpired unmounts every screen past its expiry and returns how
// many were removed.
func (m *Manager) CleanupExpired() int {
	now := m.now()

	m.mutex.Lock()
	var expired []*Screen
	for id, screen := range m.screens {
		if now.After(screen.ExpiresAt) {
			expired = append(expired, screen)
			delete(m.screens, id)
		}
	}
	active := len(m.screens)
	m.mutex.Unlock()

	for _, screen := range expired {
		teardown(screen)
	}
	if len(expired) > 0 {
		m.reportActive(active)
	}
	return len(expired)
}

// ActiveCount returns the number of mounted screens.
func (m *Manager) ActiveCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.screens)
}

// CloseAll unmounts everything.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	screens := m.screens
	m.screens = make(map[string]*Screen)
	m.mutex.Unlock()

	for _, screen := range screens {
		teardown(screen)
	}
	m.reportActive(0)
}

// StartCleanupRoutine unmounts expired screens every interval until ctx
// is done.
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := m.CleanupExpired(); removed > 0 {
					telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
						"service":   "screen",
						"operation": "cleanup",
						"removed":   removed,
					}).Info("Unmounted expired screens")
				}
			}
		}
	}()
}

func (m *Manager) reportActive(active int) {
	if m.config.OnActiveSize != nil {
		m.config.OnActiveSize(active)
	}
}

func teardown(screen *Screen) {
	screen.Sync.Close()
	screen.Camera.Close()
}
