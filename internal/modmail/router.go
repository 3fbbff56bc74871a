// Package modmail routes direct messages from users into private staff
// ticket channels and staff replies back to users.
//
// A Router receives tagged events (DirectMessage or ChannelMessage),
// keeps the ticket registry current, records every line into the
// ticket's transcript, and runs the staff command table. Closing and
// reaping ticket channels is handled by the Lifecycle.
package modmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"modmail-bot/internal/archive"
	"modmail-bot/internal/clock"
	"modmail-bot/internal/pager"
	"modmail-bot/internal/ticket"
)

// Messages sent by the router. Staff-facing strings go into ticket
// channels; the rest are direct messages.
const (
	replyPrefix        = "Staff Reply: "
	msgUnauthorized    = "⛔ You are not authorized to use this command."
	msgDeliveryFailed  = "⚠️ Could not deliver message to the user (they may have DMs disabled)."
	msgReplySent       = "✅ Reply sent."
	msgReplyUsage      = "⚠️ Usage: `!r <message>`"
	msgLogsUsage       = "⚠️ Usage: `!logs` or `!logs @user`"
	msgTicketClosed    = "⚠️ This ticket is closed."
	msgLogsSent        = "📬 Logs sent to your DMs."
	msgLogsUndelivered = "⚠️ Could not DM you the logs. Check your privacy settings."
	msgSentToStaff     = "✅ Sent to staff!"
)

// Config holds router behavior settings.
type Config struct {
	// Category is the channel category new tickets are placed in.
	Category string

	// LogChannelID, when set, receives a summary of every new ticket and
	// accepts `!logs @user` from staff.
	LogChannelID string

	CannedNotices []CannedNotice
	DeleteDelay   time.Duration
	PageTimeout   time.Duration
	PageChunk     int
}

// Options are the collaborators a Router needs.
type Options struct {
	Registry *ticket.Registry
	Platform Platform
	Archive  Archiver
	Clock    clock.Clock
	Logger   *slog.Logger
	Config   Config
}

// Router dispatches inbound events.
type Router struct {
	registry  *ticket.Registry
	platform  Platform
	archive   Archiver
	clock     clock.Clock
	logger    *slog.Logger
	cfg       Config
	lifecycle *Lifecycle
	locks     *userLocks

	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// New returns a Router. Registry and Platform are required.
func New(opts Options) *Router {
	if opts.Archive == nil {
		opts.Archive = archive.Discard{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config.DeleteDelay <= 0 {
		opts.Config.DeleteDelay = DefaultDeleteDelay
	}
	if opts.Config.PageTimeout <= 0 {
		opts.Config.PageTimeout = pager.DefaultTimeout
	}
	if opts.Config.PageChunk <= 0 {
		opts.Config.PageChunk = pager.DefaultChunk
	}
	if opts.Config.CannedNotices == nil {
		opts.Config.CannedNotices = DefaultCannedNotices
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		registry:  opts.Registry,
		platform:  opts.Platform,
		archive:   opts.Archive,
		clock:     opts.Clock,
		logger:    opts.Logger,
		cfg:       opts.Config,
		lifecycle: newLifecycle(opts.Registry, opts.Platform, opts.Clock, opts.Config.DeleteDelay, opts.Logger),
		locks:     newUserLocks(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Lifecycle returns the controller that closes and reaps tickets.
func (r *Router) Lifecycle() *Lifecycle { return r.lifecycle }

// Close ends running navigation sessions and cancels pending channel
// deletions, waiting for both to stop.
func (r *Router) Close() {
	r.cancel()
	r.sessions.Wait()
	r.lifecycle.stop()
}

// Dispatch handles one inbound event. Only channel provisioning failures
// are returned; delivery and authorization problems are reported into
// the ticket channel.
func (r *Router) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case DirectMessage:
		return r.handleDirect(ctx, ev)
	case ChannelMessage:
		return r.handleChannel(ctx, ev)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// ChannelDeleted is called when the platform reports a deleted channel.
func (r *Router) ChannelDeleted(channelID string) {
	r.lifecycle.ChannelGone(channelID)
}

func (r *Router) handleDirect(ctx context.Context, m DirectMessage) error {
	unlock := r.locks.lock(m.User.ID)
	defer unlock()

	logger := r.logger.With("user", m.User.ID)

	if open, ok := r.registry.FindOpenTicket(m.User.ID); ok {
		relay := fmt.Sprintf("New message from **%s**: %s", m.User.Tag, m.Text)
		err := r.send(ctx, r.platform.SendToChannel, open.ChannelID, relay)
		if !errors.Is(err, ErrChannelNotFound) {
			r.record(ctx, open.ChannelID, m.User.ID, m.User.Tag, m.Text, archive.KindIncoming)
			if err != nil {
				logger.Warn("relay to ticket channel failed", "channel", open.ChannelID, "error", err)
			}
			return nil
		}
		logger.Warn("ticket channel vanished, opening a new ticket", "channel", open.ChannelID)
		r.lifecycle.ChannelGone(open.ChannelID)
	}

	return r.openTicket(ctx, m, logger)
}

func (r *Router) openTicket(ctx context.Context, m DirectMessage, logger *slog.Logger) error {
	channelID, err := r.platform.ProvisionChannel(ctx, ChannelSpec{
		Name:     channelName(m.User),
		Category: r.cfg.Category,
		Topic:    fmt.Sprintf("Modmail ticket for %s (%s)", m.User.Tag, m.User.ID),
	})
	if err != nil {
		perr := &ProvisioningError{User: m.User.ID, Err: err}
		logger.Error("ticket channel provisioning failed", "error", err)
		r.notifyStaffLog(ctx, fmt.Sprintf("❌ Could not open a ticket for **%s** (`%s`): %v", m.User.Tag, m.User.ID, err))
		return perr
	}

	if _, err := r.registry.CreateTicket(m.User.ID, channelID); err != nil {
		if !errors.Is(err, ticket.ErrConflict) {
			return fmt.Errorf("register ticket: %w", err)
		}
		// Another ticket won; fold this message into it.
		logger.Warn("ticket already open, discarding new channel", "channel", channelID)
		if err := r.platform.DeleteChannel(ctx, channelID); err != nil {
			logger.Warn("discard duplicate channel failed", "channel", channelID, "error", err)
		}
		if open, ok := r.registry.FindOpenTicket(m.User.ID); ok {
			r.record(ctx, open.ChannelID, m.User.ID, m.User.Tag, m.Text, archive.KindIncoming)
			r.sendChannel(ctx, open.ChannelID, fmt.Sprintf("New message from **%s**: %s", m.User.Tag, m.Text))
		}
		return nil
	}
	logger.Info("ticket opened", "channel", channelID)

	r.sendChannel(ctx, channelID, fmt.Sprintf("📬 New ticket from <@%s> (**%s**)", m.User.ID, m.User.Tag))
	r.record(ctx, channelID, m.User.ID, m.User.Tag, m.Text, archive.KindIncoming)
	r.sendChannel(ctx, channelID, fmt.Sprintf("**%s:** %s", m.User.Tag, m.Text))

	if err := r.platform.SendDirect(ctx, m.User.ID, msgSentToStaff); err != nil {
		logger.Debug("ticket acknowledgement not delivered", "error", err)
	}
	r.notifyStaffLog(ctx, fmt.Sprintf("📩 **New Modmail**\n**From:** %s (`%s`)\n**Ticket:** <#%s>\n\n%s",
		m.User.Tag, m.User.ID, channelID, m.Text))
	return nil
}

func (r *Router) handleChannel(ctx context.Context, m ChannelMessage) error {
	owner, ok := r.registry.FindOwner(m.ChannelID)
	if !ok {
		if r.cfg.LogChannelID != "" && m.ChannelID == r.cfg.LogChannelID {
			r.handleLogChannel(ctx, m)
		}
		return nil
	}

	cmd := parseCommand(m.Text, r.cfg.CannedNotices)
	r.record(ctx, m.ChannelID, owner, m.Actor.Tag, m.Text, archiveKind(cmd.kind))

	if cmd.kind == cmdNone {
		return nil
	}

	logger := r.logger.With("user", owner, "channel", m.ChannelID, "actor", m.Actor.ID)
	if !m.ActorIsStaff {
		aerr := &AuthorizationError{Actor: m.Actor.Tag, Command: cmd.kind.String()}
		logger.Info("rejected staff command", "error", aerr)
		r.sendChannel(ctx, m.ChannelID, msgUnauthorized)
		return nil
	}

	switch cmd.kind {
	case cmdReply:
		if cmd.payload == "" {
			r.sendChannel(ctx, m.ChannelID, msgReplyUsage)
			return nil
		}
		if r.ticketClosed(m.ChannelID) {
			r.sendChannel(ctx, m.ChannelID, msgTicketClosed)
			return nil
		}
		r.deliver(ctx, m.ChannelID, owner, replyPrefix+cmd.payload, logger)

	case cmdCanned:
		if r.ticketClosed(m.ChannelID) {
			r.sendChannel(ctx, m.ChannelID, msgTicketClosed)
			return nil
		}
		r.deliver(ctx, m.ChannelID, owner, cmd.notice.Text, logger)

	case cmdClose:
		if _, err := r.lifecycle.Close(ctx, m.ChannelID, m.Actor); err != nil {
			logger.Error("close failed", "error", err)
		}

	case cmdLogs:
		if cmd.invalid {
			r.sendChannel(ctx, m.ChannelID, msgLogsUsage)
			return nil
		}
		target := cmd.target
		if target == "" {
			target = owner
		}
		r.showLogs(ctx, m.ChannelID, m.Actor.ID, target)
	}
	return nil
}

// handleLogChannel serves `!logs @user` in the staff log channel. Other
// traffic there is not part of any ticket.
func (r *Router) handleLogChannel(ctx context.Context, m ChannelMessage) {
	cmd := parseCommand(m.Text, nil)
	if cmd.kind != cmdLogs {
		return
	}
	if !m.ActorIsStaff {
		r.sendChannel(ctx, m.ChannelID, msgUnauthorized)
		return
	}
	if cmd.invalid || cmd.target == "" {
		r.sendChannel(ctx, m.ChannelID, msgLogsUsage)
		return
	}
	r.showLogs(ctx, m.ChannelID, m.Actor.ID, cmd.target)
}

func (r *Router) showLogs(ctx context.Context, channelID, requesterID, target string) {
	tickets := r.registry.Tickets(target)
	if len(tickets) == 0 {
		r.sendChannel(ctx, channelID, fmt.Sprintf("📭 No logs found for <@%s>.", target))
		return
	}

	pages := pager.Build(target, tickets, r.cfg.PageChunk)
	view, err := r.platform.PresentPages(ctx, requesterID, pager.Render(pages[0]))
	if err != nil {
		r.logger.Warn("transcript delivery failed", "requester", requesterID, "target", target, "error", err)
		r.sendChannel(ctx, channelID, msgLogsUndelivered)
		return
	}
	r.sendChannel(ctx, channelID, msgLogsSent)

	session := pager.NewSession(pages, view, pager.SessionOptions{
		Timeout: r.cfg.PageTimeout,
		Clock:   r.clock,
		Logger:  r.logger,
	})
	r.sessions.Add(1)
	go func() {
		defer r.sessions.Done()
		session.Run(r.ctx)
	}()
}

func (r *Router) deliver(ctx context.Context, channelID, owner, text string, logger *slog.Logger) {
	if err := r.send(ctx, r.platform.SendDirect, owner, text); err != nil {
		var derr *DeliveryError
		if errors.As(err, &derr) {
			logger.Info("direct message undeliverable", "error", err)
		} else {
			logger.Warn("direct message failed", "error", err)
		}
		r.sendChannel(ctx, channelID, msgDeliveryFailed)
		return
	}
	r.sendChannel(ctx, channelID, msgReplySent)
}

func (r *Router) ticketClosed(channelID string) bool {
	_, t, ok := r.registry.Lookup(channelID)
	return !ok || t.Closed()
}

func (r *Router) record(ctx context.Context, channelID, user, author, text string, kind archive.Kind) {
	entry, err := r.registry.AppendMessage(channelID, ticket.Entry{Author: author, Content: text, Timestamp: r.clock.Now()})
	if err != nil {
		r.logger.Error("transcript append failed", "channel", channelID, "error", err)
		return
	}
	r.archive.Archive(ctx, archive.Record{
		UserID:    user,
		Username:  entry.Author,
		ChannelID: channelID,
		Content:   entry.Content,
		Timestamp: entry.Timestamp,
		Kind:      kind,
	})
}

func (r *Router) sendChannel(ctx context.Context, channelID, text string) {
	if err := r.send(ctx, r.platform.SendToChannel, channelID, text); err != nil {
		r.logger.Warn("channel message failed", "channel", channelID, "error", err)
	}
}

// send delivers text in as many messages as MaxMessageRunes requires,
// stopping at the first failure.
func (r *Router) send(ctx context.Context, fn func(ctx context.Context, to, text string) error, to, text string) error {
	for _, part := range SplitMessage(text, MaxMessageRunes) {
		if err := fn(ctx, to, part); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) notifyStaffLog(ctx context.Context, text string) {
	if r.cfg.LogChannelID == "" {
		return
	}
	r.sendChannel(ctx, r.cfg.LogChannelID, text)
}

func archiveKind(k commandKind) archive.Kind {
	switch k {
	case cmdNone:
		return archive.KindNote
	case cmdReply:
		return archive.KindReply
	case cmdCanned:
		return archive.KindNotice
	default:
		return archive.KindCommand
	}
}

// channelName builds a channel name like "ticket-alice" from the user's
// name, falling back to the id when nothing usable remains.
func channelName(u User) string {
	name := u.Name
	if name == "" {
		name = u.Tag
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = u.ID
	}
	return "ticket-" + slug
}

type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock serializes handlers for one user and returns the unlock func.
func (u *userLocks) lock(id string) func() {
	u.mu.Lock()
	l, ok := u.locks[id]
	if !ok {
		l = &userLock{}
		u.locks[id] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, id)
		}
		u.mu.Unlock()
	}
}
