package domain

import (
	"sort"
	"time"
)

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Nickname string
	Role     Role
	Muted    bool
	Channels map[string]struct{}
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(nickname string) *Member {
	return &Member{
		Nickname: nickname,
		Role:     RoleGuest,
		Channels: map[string]struct{}{DefaultChannel: {}},
		JoinedAt: time.Now(),
	}
}

func (m *Member) DisplayName() string {
	return m.Role.Prefix() + m.Nickname
}

func (m *Member) InChannel(channel string) bool {
	_, ok := m.Channels[channel]
	return ok
}

// ChannelList returns joined channels in lexical order.
func (m *Member) ChannelList() []string {
	out := make([]string, 0, len(m.Channels))
	for ch := range m.Channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
