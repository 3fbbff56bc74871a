// Package discord connects the modmail router to Discord through
// discordgo. It turns gateway events into router events and implements
// the router's Platform on top of the REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"modmail-bot/internal/modmail"
)

const handlerTimeout = 30 * time.Second

// Intents are the gateway intents the bot needs.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsDirectMessageReactions

// Dispatcher receives translated events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev modmail.Event) error
	ChannelDeleted(channelID string)
}

// Options configures a Gateway.
type Options struct {
	// GuildID selects the guild; empty means the first guild in state.
	GuildID   string
	StaffRole string
	Logger    *slog.Logger
}

// Gateway is the Discord side of the bot.
type Gateway struct {
	session *discordgo.Session
	opts    Options
	logger  *slog.Logger

	mu          sync.RWMutex
	guildID     string
	staffRoleID string
	categories  map[string]string
	dispatcher  Dispatcher
	removers    []func()

	inbox *inbox
}

// New wraps an unopened session. Handlers run synchronously in gateway
// order, so message events are queued per ticket channel or per user
// and handled off the event loop in the order they arrived.
func New(session *discordgo.Session, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	session.Identify.Intents = Intents
	session.SyncEvents = true
	return &Gateway{
		session:    session,
		opts:       opts,
		logger:     opts.Logger,
		categories: make(map[string]string),
		inbox:      newInbox(),
	}
}

// Resolve looks up the guild and staff role. Call it after the session
// is open.
func (g *Gateway) Resolve() error {
	guildID := g.opts.GuildID
	if guildID == "" {
		if g.session.State == nil || len(g.session.State.Guilds) == 0 {
			return errors.New("bot is not in any guild")
		}
		guildID = g.session.State.Guilds[0].ID
	}

	roles, err := g.session.GuildRoles(guildID)
	if err != nil {
		return fmt.Errorf("list roles of guild %s: %w", guildID, err)
	}
	var staffRoleID string
	for _, role := range roles {
		if strings.EqualFold(role.Name, g.opts.StaffRole) {
			staffRoleID = role.ID
			break
		}
	}
	if staffRoleID == "" {
		return fmt.Errorf("guild %s has no %q role", guildID, g.opts.StaffRole)
	}

	g.mu.Lock()
	g.guildID = guildID
	g.staffRoleID = staffRoleID
	g.mu.Unlock()

	g.logger.Info("discord guild resolved", "guild", guildID, "staff_role", staffRoleID)
	return nil
}

// Bind routes gateway events to d until Unbind.
func (g *Gateway) Bind(d Dispatcher) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatcher = d
	g.removers = append(g.removers,
		g.session.AddHandler(g.onMessageCreate),
		g.session.AddHandler(g.onChannelDelete),
	)
}

// Unbind stops event delivery and waits for queued events to finish.
func (g *Gateway) Unbind() {
	g.mu.Lock()
	removers := g.removers
	g.removers = nil
	g.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
	g.inbox.wait()

	g.mu.Lock()
	g.dispatcher = nil
	g.mu.Unlock()
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	ev, ok := g.translate(m.Message, selfID)
	if !ok {
		return
	}
	g.inbox.push(eventKey(ev), func() { g.dispatch(ev) })
}

func (g *Gateway) dispatch(ev modmail.Event) {
	g.mu.RLock()
	d := g.dispatcher
	g.mu.RUnlock()
	if d == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := d.Dispatch(ctx, ev); err != nil {
		g.logger.Error("dispatch failed", "error", err)
	}
}

func (g *Gateway) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.Channel == nil {
		return
	}
	channelID := c.ID
	g.inbox.push("ch:"+channelID, func() {
		g.mu.RLock()
		d := g.dispatcher
		g.mu.RUnlock()
		if d != nil {
			d.ChannelDeleted(channelID)
		}
	})
}

// eventKey orders events from one user's DMs, or from one channel.
func eventKey(ev modmail.Event) string {
	switch ev := ev.(type) {
	case modmail.DirectMessage:
		return "dm:" + ev.User.ID
	case modmail.ChannelMessage:
		return "ch:" + ev.ChannelID
	default:
		return ""
	}
}

// translate converts a gateway message into a router event. Messages from
// bots, from the bot itself and from other guilds are dropped.
func (g *Gateway) translate(m *discordgo.Message, selfID string) (modmail.Event, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return nil, false
	}

	text := m.Content
	for _, a := range m.Attachments {
		if text != "" {
			text += "\n"
		}
		text += a.URL
	}

	actor := userOf(m.Author)
	if m.GuildID == "" {
		return modmail.DirectMessage{User: actor, Text: text}, true
	}

	g.mu.RLock()
	guildID := g.guildID
	g.mu.RUnlock()
	if m.GuildID != guildID {
		return nil, false
	}
	return modmail.ChannelMessage{
		ChannelID:    m.ChannelID,
		Actor:        actor,
		Text:         text,
		ActorIsStaff: g.HasStaffCapability(m.Member),
	}, true
}

// HasStaffCapability reports whether member holds the staff role.
func (g *Gateway) HasStaffCapability(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	g.mu.RLock()
	staffRoleID := g.staffRoleID
	g.mu.RUnlock()
	if staffRoleID == "" {
		return false
	}
	for _, id := range member.Roles {
		if id == staffRoleID {
			return true
		}
	}
	return false
}

func userOf(u *discordgo.User) modmail.User {
	return modmail.User{ID: u.ID, Tag: u.String(), Name: u.Username}
}
