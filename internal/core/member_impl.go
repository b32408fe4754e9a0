package core

import "github.com/dkeye/Chat/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id     SessionID
	meta   *domain.Member
	conn   SignalConnection
	client string
}

func NewMemberSession(id SessionID, meta *domain.Member, conn SignalConnection, client string) MemberSession {
	return &memberSession{id: id, meta: meta, conn: conn, client: client}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.conn }
func (m *memberSession) Client() string           { return m.client }
