package app

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const expiredText = "Shared image expired."

type ephemeralItem struct {
	owner core.SessionID
	timer *time.Timer
}

// EphemeralManager arms one timer per published item. On expiry it calls notify with the item
// id; the room actor then retires the item through Expire. After StopAll nothing fires.
type EphemeralManager struct {
	mu      sync.Mutex
	maxTTL  time.Duration
	items   map[string]*ephemeralItem
	notify  func(id string)
	stopped bool
}

func NewEphemeralManager(maxTTL time.Duration, notify func(id string)) *EphemeralManager {
	return &EphemeralManager{
		maxTTL: maxTTL,
		items:  make(map[string]*ephemeralItem),
		notify: notify,
	}
}

// Publish returns the event to broadcast and arms the expiry timer.
func (m *EphemeralManager) Publish(owner core.SessionID, ownerName, payloadRef string, ttl time.Duration) (domain.Ephemeral, error) {
	if payloadRef == "" {
		return domain.Ephemeral{}, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	if ttl <= 0 {
		return domain.Ephemeral{}, fmt.Errorf("%w: ttl must be positive", domain.ErrValidation)
	}
	if m.maxTTL > 0 && ttl > m.maxTTL {
		ttl = m.maxTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return domain.Ephemeral{}, fmt.Errorf("ephemeral manager stopped")
	}
	id := uuid.NewString()
	m.items[id] = &ephemeralItem{
		owner: owner,
		timer: time.AfterFunc(ttl, func() { m.fire(id) }),
	}
	log.Debug().Str("module", "app.ephemeral").Str("id", id).Str("owner", string(owner)).Dur("ttl", ttl).Msg("published")
	return domain.Ephemeral{
		ID:         id,
		Owner:      ownerName,
		PayloadRef: payloadRef,
		TTLSeconds: int(math.Ceil(ttl.Seconds())),
	}, nil
}

func (m *EphemeralManager) fire(id string) {
	m.mu.Lock()
	_, ok := m.items[id]
	live := ok && !m.stopped
	m.mu.Unlock()
	if live && m.notify != nil {
		m.notify(id)
	}
}

// Expire retires id and returns its marker. ok is false when the item is already gone.
func (m *EphemeralManager) Expire(id string) (domain.ContentExpired, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return domain.ContentExpired{}, false
	}
	item, ok := m.items[id]
	if !ok {
		return domain.ContentExpired{}, false
	}
	item.timer.Stop()
	delete(m.items, id)
	return domain.ContentExpired{Text: expiredText, ID: id}, true
}

// ReleaseOwner stops the timers of everything owner published and returns the markers to send.
func (m *EphemeralManager) ReleaseOwner(owner core.SessionID) []domain.ContentExpired {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ContentExpired
	for id, item := range m.items {
		if item.owner != owner {
			continue
		}
		item.timer.Stop()
		delete(m.items, id)
		out = append(out, domain.ContentExpired{Text: expiredText, ID: id})
	}
	return out
}

// StopAll cancels every timer. The manager accepts nothing afterwards.
func (m *EphemeralManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, item := range m.items {
		item.timer.Stop()
		delete(m.items, id)
	}
}

func (m *EphemeralManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
