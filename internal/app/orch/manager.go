package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/domain"
)

// Manager maps room identifiers to running room actors.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	wg     sync.WaitGroup
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*Room
}

func NewManager(parent context.Context, opts Options) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		rooms:  make(map[domain.RoomID]*Room),
	}
}

// GetOrCreate returns the actor for id, starting it on first use.
func (m *Manager) GetOrCreate(id domain.RoomID) *Room {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	room = NewRoom(id, m.opts)
	m.rooms[id] = room
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := room.Run(m.ctx); err != nil {
			log.Error().Err(err).Str("module", "orch.manager").Str("room", string(id)).Msg("room stopped with error")
		}
	}()
	return room
}

func (m *Manager) List() []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

// Stop tears every room down and waits for their loops to return.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.mu.Lock()
	m.rooms = make(map[domain.RoomID]*Room)
	m.mu.Unlock()
	log.Info().Str("module", "orch.manager").Msg("all rooms stopped")
}
