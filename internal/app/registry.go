package app

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const guestNameAttempts = 32

// BanChecker answers whether a nickname may hold a live session.
type BanChecker interface {
	IsBanned(nick string) bool
}

// Registry is the Session Registry: the only writer of connection membership.
// Nicknames are unique among live sessions, compared case-insensitively.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]core.MemberSession
	byNick   map[string]core.SessionID
	bans     BanChecker
}

func NewRegistry(bans BanChecker) *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]core.MemberSession),
		byNick:   make(map[string]core.SessionID),
		bans:     bans,
	}
}

// Register creates a guest session with a fresh unique nickname for conn.
func (r *Registry) Register(conn core.SignalConnection, client string) core.MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid := core.SessionID(uuid.NewString())
	nick := r.freshGuestName()
	sess := core.NewMemberSession(sid, domain.NewMember(nick), conn, client)
	r.sessions[sid] = sess
	r.byNick[domain.NickKey(nick)] = sid
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("nick", nick).Msg("registered session")
	return sess
}

func (r *Registry) freshGuestName() string {
	for i := 0; i < guestNameAttempts; i++ {
		name := fmt.Sprintf("Guest%04d", rand.IntN(10000))
		if r.available(name) {
			return name
		}
	}
	for {
		name := "Guest" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if r.available(name) {
			return name
		}
	}
}

func (r *Registry) available(name string) bool {
	if _, taken := r.byNick[domain.NickKey(name)]; taken {
		return false
	}
	return r.bans == nil || !r.bans.IsBanned(name)
}

// Rename sanitizes proposed and assigns it to the session.
func (r *Registry) Rename(sid core.SessionID, proposed string) (string, error) {
	name, err := domain.SanitizeNickname(proposed)
	if err != nil {
		return "", err
	}
	if r.bans != nil && r.bans.IsBanned(name) {
		return "", fmt.Errorf("%w: %s", domain.ErrNameBanned, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return "", fmt.Errorf("%w: session %s", domain.ErrNotFound, sid)
	}
	key := domain.NickKey(name)
	if owner, taken := r.byNick[key]; taken && owner != sid {
		return "", fmt.Errorf("%w: %s", domain.ErrNameTaken, name)
	}
	meta := sess.Meta()
	delete(r.byNick, domain.NickKey(meta.Nickname))
	meta.Nickname = name
	r.byNick[key] = sid
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("nick", name).Msg("renamed session")
	return name, nil
}

func (r *Registry) SetRole(sid core.SessionID, role domain.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return false
	}
	sess.Meta().Role = role
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("role", role.String()).Msg("updated role")
	return true
}

func (r *Registry) SetMuted(sid core.SessionID, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return false
	}
	sess.Meta().Muted = muted
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("muted", muted).Msg("updated mute")
	return true
}

func (r *Registry) Get(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sid]
	return sess, ok
}

// Find looks a session up by nickname or display name (role prefix allowed).
func (r *Registry) Find(name string) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byNick[domain.NickKey(domain.StripPrefix(strings.TrimSpace(name)))]
	if !ok {
		return nil, false
	}
	return r.sessions[sid], true
}

func (r *Registry) Remove(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	delete(r.byNick, domain.NickKey(sess.Meta().Nickname))
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
	return sess, true
}

// All returns a snapshot of live sessions. Order is unspecified.
func (r *Registry) All() []core.MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

// ClientSessions counts the live sessions opened by one browser.
func (r *Registry) ClientSessions(client string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.CountBy(lo.Values(r.sessions), func(s core.MemberSession) bool { return s.Client() == client })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DisplayNames lists every live display name, highest role first, then by nickname.
func (r *Registry) DisplayNames() []string {
	members := lo.Map(r.All(), func(s core.MemberSession, _ int) *domain.Member { return s.Meta() })
	sort.Slice(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role > members[j].Role
		}
		return domain.NickKey(members[i].Nickname) < domain.NickKey(members[j].Nickname)
	})
	return lo.Map(members, func(m *domain.Member, _ int) string { return m.DisplayName() })
}

func (r *Registry) JoinChannel(sid core.SessionID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return false
	}
	sess.Meta().Channels[channel] = struct{}{}
	return true
}

// PartChannel reports whether the session was in channel.
func (r *Registry) PartChannel(sid core.SessionID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok || !sess.Meta().InChannel(channel) {
		return false
	}
	delete(sess.Meta().Channels, channel)
	return true
}
