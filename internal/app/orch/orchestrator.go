// Package orch runs rooms: one actor goroutine per room owns its registry and state.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const (
	defaultInboxSize = 64
	storeTimeout     = 2 * time.Second
)

var ErrRoomClosed = errors.New("room closed")

type Options struct {
	Store           core.Store
	Policy          app.Policy
	Passkey         string
	EphemeralTTL    time.Duration
	EphemeralMaxTTL time.Duration
	FloodLimit      int
	FloodInterval   time.Duration
	InboxSize       int
}

// Room is the room actor. Every mutation runs on the goroutine executing Run.
type Room struct {
	id       domain.RoomID
	state    *domain.RoomState
	registry *app.Registry
	out      *app.Broadcaster
	router   *app.CommandRouter
	eph      *app.EphemeralManager
	flood    *app.RateLimiter
	policy   app.Policy
	store    core.Store
	opts     Options

	inbox   chan func()
	done    chan struct{}
	ctx     context.Context
	dropped []app.Failure
}

func NewRoom(id domain.RoomID, opts Options) *Room {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	state := domain.NewRoomState(id)
	reg := app.NewRegistry(state)
	r := &Room{
		id:       id,
		state:    state,
		registry: reg,
		out:      app.NewBroadcaster(reg),
		flood:    app.NewRateLimiter(opts.FloodLimit, opts.FloodInterval),
		policy:   opts.Policy,
		store:    opts.Store,
		opts:     opts,
		inbox:    make(chan func(), opts.InboxSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
	}
	r.router = app.NewCommandRouter(reg, state, roomHost{r}, opts.Passkey)
	r.eph = app.NewEphemeralManager(opts.EphemeralMaxTTL, r.onExpired)
	return r
}

func (r *Room) ID() domain.RoomID { return r.id }

// Run loads persisted state and serves operations until ctx is canceled.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	r.ctx = ctx
	r.load(ctx)
	log.Info().Str("module", "orch.room").Str("room", string(r.id)).Msg("room started")

	for {
		select {
		case <-ctx.Done():
			r.teardown()
			log.Info().Str("module", "orch.room").Str("room", string(r.id)).Msg("room stopped")
			return nil
		case fn := <-r.inbox:
			fn()
			r.evictDropped()
		}
	}
}

// Done is closed once Run has returned.
func (r *Room) Done() <-chan struct{} { return r.done }

// do runs fn on the actor loop and waits for it to finish.
func (r *Room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.inbox <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrRoomClosed
		}
	}
}

// post queues fn without waiting. Used from timer goroutines.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	}
}

func (r *Room) load(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.state.Topic = r.loadKey(ctx, app.KeyTopic)
	r.state.Rules = r.loadKey(ctx, app.KeyRules)
}

func (r *Room) loadKey(ctx context.Context, key string) string {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	v, err := r.store.Get(ctx, key)
	if errors.Is(err, core.ErrKeyNotFound) {
		return ""
	}
	if err != nil {
		log.Error().Err(err).Str("module", "orch.room").Str("room", string(r.id)).Str("key", key).Msg("load state")
		return ""
	}
	return string(v)
}

func (r *Room) persist(key, value string) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), storeTimeout)
	defer cancel()
	if err := r.store.Put(ctx, key, []byte(value)); err != nil {
		log.Error().Err(err).Str("module", "orch.room").Str("room", string(r.id)).Str("key", key).Msg("persist state")
	}
}

// Info is a read-only view of a room for APIs.
type Info struct {
	Room   domain.RoomID `json:"room"`
	Topic  string        `json:"topic"`
	Rules  string        `json:"rules"`
	Silent bool          `json:"silent"`
	Users  []string      `json:"users"`
}

func (r *Room) Snapshot(ctx context.Context) (Info, error) {
	var info Info
	err := r.do(ctx, func() {
		info = Info{
			Room:   r.id,
			Topic:  r.state.Topic,
			Rules:  r.state.Rules,
			Silent: r.state.Silent,
			Users:  r.registry.DisplayNames(),
		}
	})
	return info, err
}

func (r *Room) teardown() {
	r.eph.StopAll()
	for _, sess := range r.registry.All() {
		_ = app.Send(sess.Signal(), domain.System{Text: "Server is shutting down."})
		r.registry.Remove(sess.ID())
		sess.Signal().Close()
	}
}
