package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// JoinRequest describes a freshly accepted connection.
type JoinRequest struct {
	Conn   core.SignalConnection
	Nick   string
	Client string
}

// Join registers the connection and announces it. A requested nickname that is banned rejects
// the join with domain.ErrNameBanned before the session exists.
func (r *Room) Join(ctx context.Context, req JoinRequest) (core.SessionID, error) {
	var (
		sid core.SessionID
		err error
	)
	doErr := r.do(ctx, func() { sid, err = r.join(req) })
	if doErr != nil {
		return "", doErr
	}
	return sid, err
}

func (r *Room) join(req JoinRequest) (core.SessionID, error) {
	if req.Nick != "" {
		if name, err := domain.SanitizeNickname(req.Nick); err == nil && r.state.IsBanned(name) {
			log.Warn().Str("module", "orch.room").Str("room", string(r.id)).Str("nick", name).Msg("banned nickname rejected")
			return "", fmt.Errorf("%w: %s", domain.ErrNameBanned, name)
		}
	}

	sess := r.registry.Register(req.Conn, req.Client)
	sid := sess.ID()
	if req.Nick != "" {
		if _, err := r.registry.Rename(sid, req.Nick); err != nil {
			r.reply(sid, domain.System{Text: fmt.Sprintf("Nickname %s is not available.", req.Nick)})
		}
	}

	nick := sess.Meta().Nickname
	r.reply(sid, domain.System{Text: fmt.Sprintf("Welcome to %s! You are %s. Type /help for commands.", r.id, nick)})
	if r.state.Topic != "" {
		r.reply(sid, domain.TopicChanged{Topic: r.state.Topic})
	}
	r.broadcast(domain.System{Text: nick + " has joined"})
	r.broadcast(r.out.Presence())
	log.Info().Str("module", "orch.room").Str("room", string(r.id)).Str("sid", string(sid)).Str("nick", nick).Int("members", r.registry.Len()).Msg("joined")
	return sid, nil
}

// Leave handles a transport close or error. Leaving twice is harmless.
func (r *Room) Leave(ctx context.Context, sid core.SessionID) error {
	return r.do(ctx, func() { r.closeSession(sid, "") })
}

// closeSession deregisters sid, closes its link, retires its ephemeral content and announces
// the departure. An empty announcement means "<nick> has left".
func (r *Room) closeSession(sid core.SessionID, announcement string) {
	sess, ok := r.registry.Remove(sid)
	if !ok {
		return
	}
	sess.Signal().Close()
	if sess.Client() == "" || r.registry.ClientSessions(sess.Client()) == 0 {
		r.flood.Forget(floodKey(sess))
	}
	for _, marker := range r.eph.ReleaseOwner(sid) {
		r.broadcast(marker)
	}
	if announcement == "" {
		announcement = sess.Meta().Nickname + " has left"
	}
	r.broadcast(domain.System{Text: announcement})
	r.broadcast(r.out.Presence())
	log.Info().Str("module", "orch.room").Str("room", string(r.id)).Str("sid", string(sid)).Str("nick", sess.Meta().Nickname).Msg("left")
}

func (r *Room) broadcast(evt domain.Event) {
	r.collect(r.out.Broadcast(evt))
}

func (r *Room) broadcastTo(evt domain.Event, sel app.Selector) {
	r.collect(r.out.BroadcastTo(evt, sel))
}

func (r *Room) reply(sid core.SessionID, evt domain.Event) {
	if err := r.out.Unicast(sid, evt); err != nil {
		log.Debug().Err(err).Str("module", "orch.room").Str("sid", string(sid)).Msg("unicast failed")
	}
}

func (r *Room) collect(res app.PublishResult) {
	for _, f := range res.Dropped {
		action := r.policy.OnBackPressure(f.Session, f.Err)
		switch action {
		case app.KickMember:
			r.dropped = append(r.dropped, f)
		case app.DropFrame:
			log.Warn().Err(f.Err).Str("module", "orch.room").Str("sid", string(f.Session.ID())).Stringer("action", action).Msg("frame dropped for slow peer")
		case app.NoAction:
			log.Debug().Err(f.Err).Str("module", "orch.room").Str("sid", string(f.Session.ID())).Stringer("action", action).Msg("send failed")
		}
	}
}

// evictDropped deregisters peers whose sends failed. Announcing them may fail further peers,
// which are queued and handled in the same pass.
func (r *Room) evictDropped() {
	for len(r.dropped) > 0 {
		f := r.dropped[0]
		r.dropped = r.dropped[1:]
		log.Warn().Err(f.Err).Str("module", "orch.room").Str("room", string(r.id)).Str("sid", string(f.Session.ID())).Msg("dropping peer")
		r.closeSession(f.Session.ID(), f.Session.Meta().Nickname+" has left (connection lost)")
	}
}

// roomHost exposes the actor to the command router.
type roomHost struct{ r *Room }

func (h roomHost) Broadcast(evt domain.Event)                 { h.r.broadcast(evt) }
func (h roomHost) Reply(sid core.SessionID, evt domain.Event) { h.r.reply(sid, evt) }
func (h roomHost) Persist(key, value string)                  { h.r.persist(key, value) }
func (h roomHost) Disconnect(sid core.SessionID, announcement string) {
	h.r.closeSession(sid, announcement)
}
func (h roomHost) Say(sess core.MemberSession, text, channel string, action bool) {
	h.r.say(sess, text, channel, action)
}
