package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// Selector picks the recipients of a broadcast. nil selects everybody.
type Selector func(core.MemberSession) bool

// Failure is one peer that did not accept a frame.
type Failure struct {
	Session core.MemberSession
	Err     error
}

// PublishResult reports delivery stats/backpressure to the room actor.
type PublishResult struct {
	SendTo  int
	Dropped []Failure
}

// Broadcaster is the sole fan-out point. It never mutates the registry.
type Broadcaster struct {
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast delivers evt to every live connection.
func (b *Broadcaster) Broadcast(evt domain.Event) PublishResult {
	return b.BroadcastTo(evt, nil)
}

// BroadcastTo delivers evt to the live connections picked by sel.
// The recipient set is snapshotted at call time; one failed peer does not stop the rest.
func (b *Broadcaster) BroadcastTo(evt domain.Event, sel Selector) PublishResult {
	res := PublishResult{}
	data, err := domain.Encode(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("encode event")
		return res
	}
	for _, m := range b.reg.All() {
		if sel != nil && !sel(m) {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, Failure{Session: m, Err: err})
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.broadcast").Str("event", fmt.Sprintf("%T", evt)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Unicast delivers evt to exactly one session.
func (b *Broadcaster) Unicast(sid core.SessionID, evt domain.Event) error {
	sess, ok := b.reg.Get(sid)
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sid)
	}
	return Send(sess.Signal(), evt)
}

// Presence rebuilds the presence list from a full registry snapshot.
func (b *Broadcaster) Presence() domain.PresenceList {
	return domain.PresenceList{DisplayNames: b.reg.DisplayNames()}
}

// Send encodes evt and queues it on conn.
func Send(conn core.SignalConnection, evt domain.Event) error {
	data, err := domain.Encode(evt)
	if err != nil {
		return err
	}
	if err := conn.TrySend(data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}
