package orch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// Receive processes one inbound text frame from sid.
func (r *Room) Receive(ctx context.Context, sid core.SessionID, data []byte) error {
	return r.do(ctx, func() { r.onFrame(sid, data) })
}

func (r *Room) onFrame(sid core.SessionID, data []byte) {
	sess, ok := r.registry.Get(sid)
	if !ok {
		return
	}
	frame, err := domain.DecodeFrame(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch.room").Str("sid", string(sid)).Msg("frame dropped")
		return
	}
	channel, err := domain.SanitizeChannel(frame.ChannelOrDefault())
	if err != nil {
		log.Debug().Err(err).Str("module", "orch.room").Str("sid", string(sid)).Msg("frame dropped")
		return
	}

	if frame.Image != nil {
		r.shareImage(sess, *frame.Image, channel)
	}
	if frame.Text == nil {
		return
	}
	text := *frame.Text
	if strings.HasPrefix(text, "/") {
		_ = r.router.Dispatch(r.ctx, sid, text)
		return
	}
	r.say(sess, text, channel, false)
}

// admit applies the speaking rules shared by chat and images and tells the speaker why a
// message was held back.
func (r *Room) admit(sess core.MemberSession, channel string) bool {
	meta := sess.Meta()
	switch {
	case !meta.InChannel(channel):
		r.reply(sess.ID(), domain.System{Text: "You are not in " + channel + ". Use /join " + channel + " first."})
		return false
	case meta.Muted:
		r.reply(sess.ID(), domain.System{Text: "You are muted; your message was not delivered."})
		return false
	case r.state.Suppressed(meta):
		r.reply(sess.ID(), domain.System{Text: "Channel is in silent mode; only voiced users can speak."})
		return false
	case !r.flood.Allow(floodKey(sess)):
		r.reply(sess.ID(), domain.System{Text: "You are sending messages too fast."})
		return false
	}
	return true
}

func (r *Room) say(sess core.MemberSession, text, channel string, action bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if !r.admit(sess, channel) {
		return
	}
	evt := domain.Chat{Speaker: sess.Meta().DisplayName(), Text: text, Action: action}
	if channel == domain.DefaultChannel {
		r.broadcast(evt)
		return
	}
	evt.Channel = channel
	r.broadcastTo(evt, inChannel(channel))
}

func inChannel(channel string) app.Selector {
	return func(m core.MemberSession) bool { return m.Meta().InChannel(channel) }
}

func (r *Room) shareImage(sess core.MemberSession, ref, channel string) {
	if !r.admit(sess, channel) {
		return
	}
	evt, err := r.eph.Publish(sess.ID(), sess.Meta().DisplayName(), ref, r.opts.EphemeralTTL)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			r.reply(sess.ID(), domain.System{Text: "Image rejected: " + err.Error()})
		}
		return
	}
	if channel == domain.DefaultChannel {
		r.broadcast(evt)
		return
	}
	evt.Channel = channel
	r.broadcastTo(evt, inChannel(channel))
}

// onExpired runs on the timer goroutine and hands the expiry to the loop.
func (r *Room) onExpired(id string) {
	r.post(func() {
		if marker, ok := r.eph.Expire(id); ok {
			r.broadcast(marker)
		}
	})
}

func floodKey(sess core.MemberSession) string {
	if c := sess.Client(); c != "" {
		return c
	}
	return string(sess.ID())
}
