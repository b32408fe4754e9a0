package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/testutil"
)

type said struct {
	sid     core.SessionID
	text    string
	channel string
	action  bool
}

type fakeHost struct {
	broadcasts  []domain.Event
	replies     map[core.SessionID][]domain.Event
	disconnects map[core.SessionID]string
	persisted   map[string]string
	said        []said
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		replies:     make(map[core.SessionID][]domain.Event),
		disconnects: make(map[core.SessionID]string),
		persisted:   make(map[string]string),
	}
}

func (h *fakeHost) Broadcast(evt domain.Event) { h.broadcasts = append(h.broadcasts, evt) }
func (h *fakeHost) Reply(sid core.SessionID, evt domain.Event) {
	h.replies[sid] = append(h.replies[sid], evt)
}
func (h *fakeHost) Say(sess core.MemberSession, text, channel string, action bool) {
	h.said = append(h.said, said{sess.ID(), text, channel, action})
}
func (h *fakeHost) Disconnect(sid core.SessionID, announcement string) {
	h.disconnects[sid] = announcement
}
func (h *fakeHost) Persist(key, value string) { h.persisted[key] = value }

func (h *fakeHost) lastReply(sid core.SessionID) domain.Event {
	r := h.replies[sid]
	if len(r) == 0 {
		return nil
	}
	return r[len(r)-1]
}

type routerFixture struct {
	reg    *Registry
	state  *domain.RoomState
	host   *fakeHost
	router *CommandRouter
}

func newRouterFixture(passkey string) *routerFixture {
	state := domain.NewRoomState("main")
	reg := NewRegistry(state)
	host := newFakeHost()
	return &routerFixture{reg: reg, state: state, host: host, router: NewCommandRouter(reg, state, host, passkey)}
}

func (f *routerFixture) member(t *testing.T, nick string, role domain.Role) core.MemberSession {
	t.Helper()
	s := f.reg.Register(testutil.NewConn(), "")
	_, err := f.reg.Rename(s.ID(), nick)
	require.NoError(t, err)
	f.reg.SetRole(s.ID(), role)
	return s
}

func TestParseCommand(t *testing.T) {
	req := require.New(t)
	cmd, ok := ParseCommand("/NICK  bob ")
	req.True(ok)
	req.Equal("nick", cmd.Name)
	req.Equal("bob", cmd.Args)

	cmd, ok = ParseCommand("/help")
	req.True(ok)
	req.Equal(Command{Name: "help"}, cmd)

	_, ok = ParseCommand("hello")
	req.False(ok)
}

func TestDispatch_Unknown_And_Permission(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	guest := f.member(t, "guest", domain.RoleGuest)
	ctx := context.Background()

	err := f.router.Dispatch(ctx, guest.ID(), "/frobnicate")
	req.ErrorIs(err, domain.ErrValidation)
	req.IsType(domain.System{}, f.host.lastReply(guest.ID()))

	for _, line := range []string{"/op bob", "/topic x", "/silent on", "/kick bob", "/ban bob", "/list"} {
		err = f.router.Dispatch(ctx, guest.ID(), line)
		req.ErrorIs(err, domain.ErrPermissionDenied, line)
	}
	req.Empty(f.host.broadcasts)
	req.Empty(f.state.Topic)
	req.False(f.state.Silent)
}

func TestNick_Rename_And_Duplicate(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	a := f.member(t, "alice", domain.RoleGuest)
	b := f.member(t, "bob", domain.RoleGuest)
	ctx := context.Background()

	// duplicate is rejected privately
	err := f.router.Dispatch(ctx, b.ID(), "/nick Alice")
	req.ErrorIs(err, domain.ErrNameTaken)
	req.Equal("bob", b.Meta().Nickname)
	req.Empty(f.host.broadcasts)

	req.NoError(f.router.Dispatch(ctx, b.ID(), "/nick robert"))
	req.Equal("robert", b.Meta().Nickname)
	req.Equal(domain.System{Text: "bob is now robert"}, f.host.broadcasts[0])
	presence, ok := f.host.broadcasts[1].(domain.PresenceList)
	req.True(ok)
	req.ElementsMatch([]string{"alice", "robert"}, presence.DisplayNames)

	err = f.router.Dispatch(ctx, a.ID(), "/nick")
	req.ErrorIs(err, domain.ErrValidation)
}

func TestIdentify(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		req := require.New(t)
		f := newRouterFixture("s3cret")
		g := f.member(t, "g", domain.RoleGuest)
		err := f.router.Dispatch(ctx, g.ID(), "/identify nope")
		req.ErrorIs(err, domain.ErrPermissionDenied)
		req.Equal(domain.RoleGuest, g.Meta().Role)
		req.Equal(domain.System{Text: "Identification failed."}, f.host.lastReply(g.ID()))
	})

	t.Run("no passkey configured", func(t *testing.T) {
		req := require.New(t)
		f := newRouterFixture("")
		g := f.member(t, "g", domain.RoleGuest)
		req.Error(f.router.Dispatch(ctx, g.ID(), "/identify "))
		req.Equal(domain.RoleGuest, g.Meta().Role)
	})

	t.Run("correct secret", func(t *testing.T) {
		req := require.New(t)
		f := newRouterFixture("s3cret")
		g := f.member(t, "g", domain.RoleGuest)
		req.NoError(f.router.Dispatch(ctx, g.ID(), "/identify s3cret"))
		req.Equal(domain.RoleAdmin, g.Meta().Role)
		presence := f.host.broadcasts[len(f.host.broadcasts)-1].(domain.PresenceList)
		req.Equal([]string{"@g"}, presence.DisplayNames)
	})
}

func TestOp_Voice_Never_Downgrade(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	admin := f.member(t, "root", domain.RoleAdmin)
	other := f.member(t, "boss", domain.RoleAdmin)
	g := f.member(t, "g", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/voice g"))
	req.Equal(domain.RoleVoice, g.Meta().Role)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/op g"))
	req.Equal(domain.RoleOperator, g.Meta().Role)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/voice g"))
	req.Equal(domain.RoleOperator, g.Meta().Role)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/op boss"))
	req.Equal(domain.RoleAdmin, other.Meta().Role)

	// missing target is a silent no-op
	before := len(f.host.broadcasts)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/op nobody"))
	req.Len(f.host.broadcasts, before)
	req.Empty(f.host.replies[admin.ID()])
}

func TestDeop_Respects_Rank(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	admin := f.member(t, "root", domain.RoleAdmin)
	op := f.member(t, "op", domain.RoleOperator)
	ctx := context.Background()

	err := f.router.Dispatch(ctx, op.ID(), "/deop root")
	req.ErrorIs(err, domain.ErrPermissionDenied)
	req.Equal(domain.RoleAdmin, admin.Meta().Role)

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/deop op"))
	req.Equal(domain.RoleGuest, op.Meta().Role)
}

func TestDevoice_Only_Demotes_Voice(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	admin := f.member(t, "root", domain.RoleAdmin)
	op := f.member(t, "op", domain.RoleOperator)
	v := f.member(t, "v", domain.RoleVoice)
	ctx := context.Background()

	// When devoice targets an operator
	before := len(f.host.broadcasts)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/devoice op"))

	// Then the operator keeps its role and nothing is announced
	req.Equal(domain.RoleOperator, op.Meta().Role)
	req.Len(f.host.broadcasts, before)

	req.NoError(f.router.Dispatch(ctx, op.ID(), "/devoice v"))
	req.Equal(domain.RoleGuest, v.Meta().Role)
	req.Contains(f.host.broadcasts, domain.Event(domain.System{Text: "v no longer has voice"}))

	// deop does not touch voiced members
	v2 := f.member(t, "v2", domain.RoleVoice)
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/deop v2"))
	req.Equal(domain.RoleVoice, v2.Meta().Role)
}

func TestTopic_And_Rules_Persist(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	op := f.member(t, "op", domain.RoleOperator)
	g := f.member(t, "g", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, op.ID(), "/topic Go 1.25 release party"))
	req.Equal("Go 1.25 release party", f.state.Topic)
	req.Equal("Go 1.25 release party", f.host.persisted[KeyTopic])
	req.Contains(f.host.broadcasts, domain.Event(domain.TopicChanged{Topic: "Go 1.25 release party"}))

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/rules"))
	req.Equal(domain.System{Text: "No rules have been set."}, f.host.lastReply(g.ID()))
	req.ErrorIs(f.router.Dispatch(ctx, g.ID(), "/rules be nice"), domain.ErrPermissionDenied)

	req.NoError(f.router.Dispatch(ctx, op.ID(), "/rules be nice"))
	req.Equal("be nice", f.host.persisted[KeyRules])
	req.NoError(f.router.Dispatch(ctx, g.ID(), "/rules"))
	req.Equal(domain.System{Text: "Rules: be nice"}, f.host.lastReply(g.ID()))
}

func TestSilent_Toggles(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	op := f.member(t, "op", domain.RoleOperator)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, op.ID(), "/silent on"))
	req.True(f.state.Silent)
	req.NoError(f.router.Dispatch(ctx, op.ID(), "/silent off"))
	req.False(f.state.Silent)
	req.NoError(f.router.Dispatch(ctx, op.ID(), "/silent whatever"))
	req.False(f.state.Silent)
}

func TestMute(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	op := f.member(t, "op", domain.RoleOperator)
	g := f.member(t, "g", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, op.ID(), "/mute g"))
	req.True(g.Meta().Muted)
	req.Equal(domain.System{Text: "You have been muted by op."}, f.host.lastReply(g.ID()))
	req.NoError(f.router.Dispatch(ctx, op.ID(), "/unmute g"))
	req.False(g.Meta().Muted)
	req.ErrorIs(f.router.Dispatch(ctx, op.ID(), "/mute ghost"), domain.ErrNotFound)
}

func TestKick_And_Ban(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	admin := f.member(t, "root", domain.RoleAdmin)
	bob := f.member(t, "bob", domain.RoleGuest)
	eve := f.member(t, "eve", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/kick bob spamming"))
	req.Equal("bob was kicked by root (spamming)", f.host.disconnects[bob.ID()])
	req.Equal(domain.System{Text: "You were kicked by root: spamming"}, f.host.lastReply(bob.ID()))

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/ban @eve"))
	req.True(f.state.IsBanned("EVE"))
	req.Equal("eve has been banned by root", f.host.disconnects[eve.ID()])

	// offline ban is announced to the room
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/ban mallory"))
	req.True(f.state.IsBanned("mallory"))
	req.Contains(f.host.broadcasts, domain.Event(domain.System{Text: "mallory has been banned by root"}))

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/unban mallory"))
	req.False(f.state.IsBanned("mallory"))
	req.Equal(domain.System{Text: "mallory has been unbanned."}, f.host.lastReply(admin.ID()))

	// missing kick target is a silent no-op
	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/kick ghost"))
}

func TestMsg_Is_Private(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	a := f.member(t, "alice", domain.RoleGuest)
	b := f.member(t, "bob", domain.RoleGuest)
	c := f.member(t, "carol", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, a.ID(), "/msg bob see you at noon"))
	pm := domain.Private{From: "alice", To: "bob", Text: "see you at noon"}
	req.Equal([]domain.Event{pm}, f.host.replies[b.ID()])
	req.Equal([]domain.Event{pm}, f.host.replies[a.ID()])
	req.Empty(f.host.replies[c.ID()])
	req.Empty(f.host.broadcasts)

	req.ErrorIs(f.router.Dispatch(ctx, a.ID(), "/msg nobody hi"), domain.ErrNotFound)
	req.ErrorIs(f.router.Dispatch(ctx, a.ID(), "/msg bob"), domain.ErrValidation)
}

func TestList_Help_Whoami_Me_Quit(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	admin := f.member(t, "root", domain.RoleAdmin)
	g := f.member(t, "g", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, admin.ID(), "/list"))
	req.Equal(domain.System{Text: "Active users (2): @root, g"}, f.host.lastReply(admin.ID()))

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/help"))
	help := f.host.lastReply(g.ID()).(domain.System).Text
	req.Contains(help, "/nick <name>")
	req.NotContains(help, "/ban")

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/whoami"))
	since := g.Meta().JoinedAt.UTC().Format(time.TimeOnly + " MST")
	req.Equal(domain.System{Text: "You are g (guest) in #main, connected since " + since}, f.host.lastReply(g.ID()))

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/me waves"))
	req.Equal([]said{{g.ID(), "waves", domain.DefaultChannel, true}}, f.host.said)

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/quit bye"))
	req.Equal("g has quit: bye", f.host.disconnects[g.ID()])
}

func TestJoin_Part_Channels(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture("")
	g := f.member(t, "g", domain.RoleGuest)
	ctx := context.Background()

	req.NoError(f.router.Dispatch(ctx, g.ID(), "/join #Dev"))
	req.True(g.Meta().InChannel("#dev"))
	req.NoError(f.router.Dispatch(ctx, g.ID(), "/part #dev"))
	req.False(g.Meta().InChannel("#dev"))
	req.ErrorIs(f.router.Dispatch(ctx, g.ID(), "/part #main"), domain.ErrValidation)
	req.ErrorIs(f.router.Dispatch(ctx, g.ID(), "/part #dev"), domain.ErrNotFound)
	req.ErrorIs(f.router.Dispatch(ctx, g.ID(), "/join dev"), domain.ErrValidation)
}
