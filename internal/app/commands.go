package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

const (
	KeyTopic = "topic"
	KeyRules = "rules"
)

// Host is the room actor as seen by the command router. All calls happen on the actor loop.
type Host interface {
	Broadcast(evt domain.Event)
	Reply(sid core.SessionID, evt domain.Event)
	// Say runs the regular chat path (mute, silent mode, channel checks) for a session.
	Say(sess core.MemberSession, text, channel string, action bool)
	// Disconnect closes the connection of sid and announces announcement to the room.
	Disconnect(sid core.SessionID, announcement string)
	Persist(key, value string)
}

// Command is one parsed slash line: "/" word (" " argument-text)?
type Command struct {
	Name string
	Args string
}

// ParseCommand reports ok=false when line is not a slash command.
func ParseCommand(line string) (Command, bool) {
	if !strings.HasPrefix(line, "/") {
		return Command{}, false
	}
	name, args, _ := strings.Cut(line[1:], " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

type handler func(ctx context.Context, issuer core.MemberSession, args string) error

type commandSpec struct {
	min   domain.Role
	usage string
	run   handler
}

// CommandRouter interprets slash commands, enforces role gates and mutates room state.
type CommandRouter struct {
	reg      *Registry
	state    *domain.RoomState
	host     Host
	passkey  string
	order    []string
	commands map[string]commandSpec
}

func NewCommandRouter(reg *Registry, state *domain.RoomState, host Host, passkey string) *CommandRouter {
	r := &CommandRouter{reg: reg, state: state, host: host, passkey: passkey}
	r.register("help", domain.RoleGuest, "/help", r.help)
	r.register("nick", domain.RoleGuest, "/nick <name>", r.nick)
	r.register("msg", domain.RoleGuest, "/msg <nick> <text>", r.msg)
	r.register("me", domain.RoleGuest, "/me <action>", r.me)
	r.register("whoami", domain.RoleGuest, "/whoami", r.whoami)
	r.register("join", domain.RoleGuest, "/join <#channel>", r.join)
	r.register("part", domain.RoleGuest, "/part <#channel>", r.part)
	r.register("rules", domain.RoleGuest, "/rules [text]", r.rules)
	r.register("identify", domain.RoleGuest, "/identify <secret>", r.identify)
	r.register("quit", domain.RoleGuest, "/quit [reason]", r.quit)
	r.register("op", domain.RoleOperator, "/op <nick>", r.op)
	r.register("deop", domain.RoleOperator, "/deop <nick>", r.deop)
	r.register("voice", domain.RoleOperator, "/voice <nick>", r.voice)
	r.register("devoice", domain.RoleOperator, "/devoice <nick>", r.devoice)
	r.register("mute", domain.RoleOperator, "/mute <nick>", r.mute)
	r.register("unmute", domain.RoleOperator, "/unmute <nick>", r.unmute)
	r.register("silent", domain.RoleOperator, "/silent <on|off>", r.silent)
	r.register("topic", domain.RoleOperator, "/topic <text>", r.topic)
	r.register("kick", domain.RoleAdmin, "/kick <nick> [reason]", r.kick)
	r.register("ban", domain.RoleAdmin, "/ban <nick>", r.ban)
	r.register("unban", domain.RoleAdmin, "/unban <nick>", r.unban)
	r.register("list", domain.RoleAdmin, "/list", r.list)
	return r
}

func (r *CommandRouter) register(name string, min domain.Role, usage string, run handler) {
	if r.commands == nil {
		r.commands = make(map[string]commandSpec)
	}
	r.order = append(r.order, name)
	r.commands[name] = commandSpec{min: min, usage: usage, run: run}
}

// Dispatch runs one slash line for sid. A failure is answered with a private System event to
// the issuer and returned; nothing is broadcast for it.
func (r *CommandRouter) Dispatch(ctx context.Context, sid core.SessionID, line string) error {
	issuer, ok := r.reg.Get(sid)
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sid)
	}
	cmd, ok := ParseCommand(line)
	if !ok {
		return fmt.Errorf("%w: not a command", domain.ErrProtocol)
	}

	err := r.execute(ctx, issuer, cmd)
	if err != nil {
		var cerr *domain.CommandError
		if errors.As(err, &cerr) {
			r.host.Reply(sid, domain.System{Text: cerr.Msg})
		}
		log.Debug().Err(err).Str("module", "app.router").Str("sid", string(sid)).Str("cmd", cmd.Name).Msg("command failed")
		return err
	}
	log.Debug().Str("module", "app.router").Str("sid", string(sid)).Str("cmd", cmd.Name).Msg("command done")
	return nil
}

func (r *CommandRouter) execute(ctx context.Context, issuer core.MemberSession, cmd Command) error {
	spec, ok := r.commands[cmd.Name]
	if !ok {
		return domain.NewCommandError(domain.ErrValidation, "Unknown command: /%s. Type /help for a list.", cmd.Name)
	}
	if !issuer.Meta().Role.AtLeast(spec.min) {
		return domain.NewCommandError(domain.ErrPermissionDenied, "Permission denied: /%s requires %s.", cmd.Name, spec.min)
	}
	return spec.run(ctx, issuer, cmd.Args)
}

func splitArg(args string) (string, string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return first, strings.TrimSpace(rest)
}

func usage(spec string) error {
	return domain.NewCommandError(domain.ErrValidation, "Usage: %s", spec)
}

func (r *CommandRouter) presence() {
	r.host.Broadcast(domain.PresenceList{DisplayNames: r.reg.DisplayNames()})
}

func (r *CommandRouter) help(_ context.Context, issuer core.MemberSession, _ string) error {
	lines := []string{"Commands:"}
	for _, name := range r.order {
		spec := r.commands[name]
		if issuer.Meta().Role.AtLeast(spec.min) {
			lines = append(lines, spec.usage)
		}
	}
	r.host.Reply(issuer.ID(), domain.System{Text: strings.Join(lines, "\n")})
	return nil
}

func (r *CommandRouter) nick(_ context.Context, issuer core.MemberSession, args string) error {
	if args == "" {
		return usage(r.commands["nick"].usage)
	}
	old := issuer.Meta().Nickname
	name, err := r.reg.Rename(issuer.ID(), args)
	switch {
	case errors.Is(err, domain.ErrNameTaken):
		return domain.NewCommandError(err, "Nickname %s is already in use.", args)
	case errors.Is(err, domain.ErrNameBanned):
		return domain.NewCommandError(err, "Nickname %s is banned.", args)
	case errors.Is(err, domain.ErrNameInvalid):
		return domain.NewCommandError(err, "Invalid nickname: use letters, digits or _, at most %d characters.", domain.MaxNicknameLen)
	case err != nil:
		return err
	}
	if name == old {
		return nil
	}
	r.host.Broadcast(domain.System{Text: fmt.Sprintf("%s is now %s", old, name)})
	r.presence()
	return nil
}

func (r *CommandRouter) msg(_ context.Context, issuer core.MemberSession, args string) error {
	to, text := splitArg(args)
	if to == "" || text == "" {
		return usage(r.commands["msg"].usage)
	}
	target, ok := r.reg.Find(to)
	if !ok {
		return domain.NewCommandError(domain.ErrNotFound, "No such nick: %s", to)
	}
	pm := domain.Private{From: issuer.Meta().DisplayName(), To: target.Meta().DisplayName(), Text: text}
	r.host.Reply(target.ID(), pm)
	if target.ID() != issuer.ID() {
		r.host.Reply(issuer.ID(), pm)
	}
	return nil
}

func (r *CommandRouter) me(_ context.Context, issuer core.MemberSession, args string) error {
	if args == "" {
		return usage(r.commands["me"].usage)
	}
	r.host.Say(issuer, args, domain.DefaultChannel, true)
	return nil
}

func (r *CommandRouter) whoami(_ context.Context, issuer core.MemberSession, _ string) error {
	m := issuer.Meta()
	text := fmt.Sprintf("You are %s (%s) in %s, connected since %s", m.DisplayName(), m.Role,
		strings.Join(m.ChannelList(), ", "), m.JoinedAt.UTC().Format(time.TimeOnly+" MST"))
	if m.Muted {
		text += ", muted"
	}
	r.host.Reply(issuer.ID(), domain.System{Text: text})
	return nil
}

func (r *CommandRouter) join(_ context.Context, issuer core.MemberSession, args string) error {
	channel, err := domain.SanitizeChannel(args)
	if err != nil {
		return domain.NewCommandError(err, "Invalid channel name: %s", args)
	}
	r.reg.JoinChannel(issuer.ID(), channel)
	r.host.Reply(issuer.ID(), domain.System{Text: "Joined " + channel})
	return nil
}

func (r *CommandRouter) part(_ context.Context, issuer core.MemberSession, args string) error {
	channel, err := domain.SanitizeChannel(args)
	if err != nil {
		return domain.NewCommandError(err, "Invalid channel name: %s", args)
	}
	if channel == domain.DefaultChannel {
		return domain.NewCommandError(domain.ErrValidation, "You cannot leave %s.", domain.DefaultChannel)
	}
	if !r.reg.PartChannel(issuer.ID(), channel) {
		return domain.NewCommandError(domain.ErrNotFound, "You are not in %s.", channel)
	}
	r.host.Reply(issuer.ID(), domain.System{Text: "Left " + channel})
	return nil
}

func (r *CommandRouter) rules(_ context.Context, issuer core.MemberSession, args string) error {
	if args == "" {
		text := "No rules have been set."
		if r.state.Rules != "" {
			text = "Rules: " + r.state.Rules
		}
		r.host.Reply(issuer.ID(), domain.System{Text: text})
		return nil
	}
	if !issuer.Meta().Role.AtLeast(domain.RoleOperator) {
		return domain.NewCommandError(domain.ErrPermissionDenied, "Permission denied: changing rules requires %s.", domain.RoleOperator)
	}
	r.state.Rules = args
	r.host.Persist(KeyRules, args)
	r.host.Broadcast(domain.System{Text: fmt.Sprintf("%s updated the rules: %s", issuer.Meta().Nickname, args)})
	return nil
}

func (r *CommandRouter) identify(_ context.Context, issuer core.MemberSession, args string) error {
	if r.passkey == "" || subtle.ConstantTimeCompare([]byte(args), []byte(r.passkey)) != 1 {
		log.Warn().Str("module", "app.router").Str("sid", string(issuer.ID())).Msg("failed identify")
		return domain.NewCommandError(domain.ErrPermissionDenied, "Identification failed.")
	}
	r.reg.SetRole(issuer.ID(), domain.RoleAdmin)
	r.host.Reply(issuer.ID(), domain.System{Text: "IDENTIFIED: You are now an admin (@)."})
	r.presence()
	return nil
}

func (r *CommandRouter) quit(_ context.Context, issuer core.MemberSession, args string) error {
	text := issuer.Meta().Nickname + " has quit"
	if args != "" {
		text += ": " + args
	}
	r.host.Disconnect(issuer.ID(), text)
	return nil
}

// elevate raises target to role. Targets already at or above role are left alone.
func (r *CommandRouter) elevate(args string, role domain.Role, announce string) error {
	name, _ := splitArg(args)
	target, ok := r.reg.Find(name)
	if !ok || target.Meta().Role.AtLeast(role) {
		return nil
	}
	r.reg.SetRole(target.ID(), role)
	r.host.Broadcast(domain.System{Text: fmt.Sprintf(announce, target.Meta().Nickname)})
	r.presence()
	return nil
}

// demote drops target to guest when its current role is one of from.
func (r *CommandRouter) demote(issuer core.MemberSession, args, announce string, from ...domain.Role) error {
	name, _ := splitArg(args)
	target, ok := r.reg.Find(name)
	if !ok {
		return nil
	}
	if target.Meta().Role > issuer.Meta().Role {
		return domain.NewCommandError(domain.ErrPermissionDenied, "Permission denied: %s outranks you.", target.Meta().Nickname)
	}
	if !lo.Contains(from, target.Meta().Role) {
		return nil
	}
	r.reg.SetRole(target.ID(), domain.RoleGuest)
	r.host.Broadcast(domain.System{Text: fmt.Sprintf(announce, target.Meta().Nickname)})
	r.presence()
	return nil
}

func (r *CommandRouter) op(_ context.Context, _ core.MemberSession, args string) error {
	return r.elevate(args, domain.RoleOperator, "%s is now a channel operator (@)")
}

func (r *CommandRouter) voice(_ context.Context, _ core.MemberSession, args string) error {
	return r.elevate(args, domain.RoleVoice, "%s now has voice (+)")
}

func (r *CommandRouter) deop(_ context.Context, issuer core.MemberSession, args string) error {
	return r.demote(issuer, args, "%s is no longer a channel operator", domain.RoleOperator, domain.RoleAdmin)
}

func (r *CommandRouter) devoice(_ context.Context, issuer core.MemberSession, args string) error {
	return r.demote(issuer, args, "%s no longer has voice", domain.RoleVoice)
}

func (r *CommandRouter) setMuted(issuer core.MemberSession, args string, muted bool) error {
	name, _ := splitArg(args)
	if name == "" {
		if muted {
			return usage(r.commands["mute"].usage)
		}
		return usage(r.commands["unmute"].usage)
	}
	target, ok := r.reg.Find(name)
	if !ok {
		return domain.NewCommandError(domain.ErrNotFound, "No such nick: %s", name)
	}
	if target.Meta().Role > issuer.Meta().Role {
		return domain.NewCommandError(domain.ErrPermissionDenied, "Permission denied: %s outranks you.", target.Meta().Nickname)
	}
	r.reg.SetMuted(target.ID(), muted)
	state := "muted"
	if !muted {
		state = "unmuted"
	}
	r.host.Reply(target.ID(), domain.System{Text: fmt.Sprintf("You have been %s by %s.", state, issuer.Meta().Nickname)})
	if target.ID() != issuer.ID() {
		r.host.Reply(issuer.ID(), domain.System{Text: fmt.Sprintf("%s is %s.", target.Meta().Nickname, state)})
	}
	return nil
}

func (r *CommandRouter) mute(_ context.Context, issuer core.MemberSession, args string) error {
	return r.setMuted(issuer, args, true)
}

func (r *CommandRouter) unmute(_ context.Context, issuer core.MemberSession, args string) error {
	return r.setMuted(issuer, args, false)
}

func (r *CommandRouter) silent(_ context.Context, _ core.MemberSession, args string) error {
	r.state.Silent = strings.EqualFold(strings.TrimSpace(args), "on")
	text := "Channel is no longer in silent mode."
	if r.state.Silent {
		text = "Channel is now in SILENT mode."
	}
	r.host.Broadcast(domain.System{Text: text})
	return nil
}

func (r *CommandRouter) topic(_ context.Context, issuer core.MemberSession, args string) error {
	if args == "" {
		return usage(r.commands["topic"].usage)
	}
	r.state.Topic = args
	r.host.Persist(KeyTopic, args)
	r.host.Broadcast(domain.TopicChanged{Topic: args})
	r.host.Broadcast(domain.System{Text: fmt.Sprintf("%s changed the topic to: %s", issuer.Meta().Nickname, args)})
	return nil
}

func (r *CommandRouter) kick(_ context.Context, issuer core.MemberSession, args string) error {
	name, reason := splitArg(args)
	target, ok := r.reg.Find(name)
	if !ok {
		return nil
	}
	notice := fmt.Sprintf("You were kicked by %s.", issuer.Meta().Nickname)
	announcement := fmt.Sprintf("%s was kicked by %s", target.Meta().Nickname, issuer.Meta().Nickname)
	if reason != "" {
		notice = fmt.Sprintf("You were kicked by %s: %s", issuer.Meta().Nickname, reason)
		announcement += " (" + reason + ")"
	}
	r.host.Reply(target.ID(), domain.System{Text: notice})
	r.host.Disconnect(target.ID(), announcement)
	return nil
}

func (r *CommandRouter) ban(_ context.Context, issuer core.MemberSession, args string) error {
	raw, _ := splitArg(args)
	name, err := domain.SanitizeNickname(domain.StripPrefix(raw))
	if err != nil {
		return usage(r.commands["ban"].usage)
	}
	r.state.Ban(name)
	log.Info().Str("module", "app.router").Str("nick", name).Str("by", issuer.Meta().Nickname).Msg("banned")
	announcement := fmt.Sprintf("%s has been banned by %s", name, issuer.Meta().Nickname)
	if target, ok := r.reg.Find(name); ok {
		r.host.Reply(target.ID(), domain.System{Text: "You have been banned from this room."})
		r.host.Disconnect(target.ID(), announcement)
		return nil
	}
	r.host.Broadcast(domain.System{Text: announcement})
	return nil
}

func (r *CommandRouter) unban(_ context.Context, issuer core.MemberSession, args string) error {
	name, _ := splitArg(args)
	if name == "" {
		return usage(r.commands["unban"].usage)
	}
	text := name + " is not banned."
	if r.state.Unban(domain.StripPrefix(name)) {
		text = name + " has been unbanned."
	}
	r.host.Reply(issuer.ID(), domain.System{Text: text})
	return nil
}

func (r *CommandRouter) list(_ context.Context, issuer core.MemberSession, _ string) error {
	names := r.reg.DisplayNames()
	r.host.Reply(issuer.ID(), domain.System{Text: fmt.Sprintf("Active users (%d): %s", len(names), strings.Join(names, ", "))})
	return nil
}
