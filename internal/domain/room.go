package domain

type RoomID string

// RoomState is the passive state of one room. Only the command router mutates it.
type RoomState struct {
	ID     RoomID
	Topic  string
	Rules  string
	Silent bool
	bans   map[string]struct{}
}

func NewRoomState(id RoomID) *RoomState {
	return &RoomState{ID: id, bans: make(map[string]struct{})}
}

func (s *RoomState) Ban(nick string) {
	s.bans[NickKey(nick)] = struct{}{}
}

// Unban reports whether the nickname was banned.
func (s *RoomState) Unban(nick string) bool {
	key := NickKey(nick)
	if _, ok := s.bans[key]; !ok {
		return false
	}
	delete(s.bans, key)
	return true
}

func (s *RoomState) IsBanned(nick string) bool {
	_, ok := s.bans[NickKey(nick)]
	return ok
}

// Suppressed reports whether chat from a member is held back by mute or silent mode.
func (s *RoomState) Suppressed(m *Member) bool {
	return m.Muted || (s.Silent && !m.Role.AtLeast(RoleVoice))
}
