package modmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"modmail-bot/internal/clock"
	"modmail-bot/internal/ticket"
)

// DefaultDeleteDelay is the grace period between closing a ticket and
// deleting its channel.
const DefaultDeleteDelay = 5 * time.Second

const deleteTimeout = 15 * time.Second

// SystemActor is recorded as the closer of tickets whose channel
// disappeared outside the close command.
const SystemActor = "system"

// Phase is a ticket channel's lifecycle state.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseOpen
	PhaseClosing
	PhaseDeleted
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	case PhaseDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Lifecycle closes tickets and reaps their channels.
type Lifecycle struct {
	registry *ticket.Registry
	platform Platform
	clock    clock.Clock
	delay    time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingDelete
	stopped bool
	reaping sync.WaitGroup
}

type pendingDelete struct {
	timer *clock.Timer
}

func newLifecycle(registry *ticket.Registry, platform Platform, clk clock.Clock, delay time.Duration, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		platform: platform,
		clock:    clk,
		delay:    delay,
		logger:   logger,
		pending:  make(map[string]*pendingDelete),
	}
}

// Phase reports where channelID is in its lifecycle.
func (l *Lifecycle) Phase(channelID string) Phase {
	_, t, ok := l.registry.Lookup(channelID)
	if !ok {
		return PhaseUnknown
	}
	switch {
	case !l.registry.Live(channelID):
		return PhaseDeleted
	case t.Closed():
		return PhaseClosing
	default:
		return PhaseOpen
	}
}

// Close moves an open ticket to closing: it records the closer, tells
// the channel and the user, and schedules the channel for deletion. It
// reports whether this call performed the transition; closing a ticket
// that is already closing or deleted does nothing.
func (l *Lifecycle) Close(ctx context.Context, channelID string, actor User) (bool, error) {
	owner, ok := l.registry.FindOwner(channelID)
	if !ok {
		return false, nil
	}

	_, changed, err := l.registry.CloseTicket(channelID, actor.Tag, l.clock.Now())
	if err != nil {
		return false, fmt.Errorf("close ticket: %w", err)
	}
	if !changed {
		return false, nil
	}

	logger := l.logger.With("user", owner, "channel", channelID)
	logger.Info("ticket closed", "actor", actor.Tag)

	notice := fmt.Sprintf("🔒 Ticket closed by **%s**. This channel will be deleted in %s.", actor.Tag, l.delay)
	if err := l.platform.SendToChannel(ctx, channelID, notice); err != nil {
		logger.Warn("close notice failed", "error", err)
	}
	if err := l.platform.SendDirect(ctx, owner, closedDirectNotice); err != nil {
		logger.Warn("close notice to user failed", "error", err)
	}

	l.schedule(channelID, l.delay)
	return true, nil
}

// Resume schedules deletion for tickets that were closing when the
// process last stopped. Each channel keeps whatever is left of its grace
// delay, measured from the recorded close time. It returns how many
// deletions were scheduled.
func (l *Lifecycle) Resume() int {
	n := 0
	for _, channelID := range l.registry.LiveChannels() {
		_, t, ok := l.registry.Lookup(channelID)
		if !ok || !t.Closed() {
			continue
		}
		remaining := t.ClosedAt.Add(l.delay).Sub(l.clock.Now())
		if remaining < 0 {
			remaining = 0
		}
		l.logger.Info("resuming ticket channel deletion", "channel", channelID, "in", remaining)
		if l.schedule(channelID, remaining) {
			n++
		}
	}
	return n
}

// schedule arms one deletion per channel. It reports false when the
// lifecycle is stopped or a deletion is already pending.
func (l *Lifecycle) schedule(channelID string, d time.Duration) bool {
	l.mu.Lock()
	if l.stopped || l.pending[channelID] != nil {
		l.mu.Unlock()
		return false
	}
	p := &pendingDelete{}
	l.pending[channelID] = p
	l.mu.Unlock()

	timer := l.clock.AfterFunc(d, func() { l.fire(channelID, p) })

	l.mu.Lock()
	p.timer = timer
	l.mu.Unlock()
	return true
}

func (l *Lifecycle) fire(channelID string, p *pendingDelete) {
	l.mu.Lock()
	if l.stopped || l.pending[channelID] != p {
		l.mu.Unlock()
		return
	}
	delete(l.pending, channelID)
	l.reaping.Add(1)
	l.mu.Unlock()
	defer l.reaping.Done()

	l.reap(channelID)
}

// stop cancels pending deletions and waits for running ones. Tickets
// left closing are picked up by Resume on the next start.
func (l *Lifecycle) stop() {
	l.mu.Lock()
	l.stopped = true
	for channelID, p := range l.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(l.pending, channelID)
	}
	l.mu.Unlock()

	l.reaping.Wait()
}

const closedDirectNotice = "🔒 Your ticket has been closed by staff. Send another message at any time to open a new one."

func (l *Lifecycle) reap(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()

	logger := l.logger.With("channel", channelID)
	if err := l.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, ErrChannelNotFound) {
		logger.Warn("ticket channel delete failed", "error", err)
	}
	if l.registry.RetireChannel(channelID) {
		logger.Info("ticket channel retired")
	}
}

// ChannelGone handles a ticket channel deleted without the close
// command. The ticket is closed by SystemActor and its mapping retired.
func (l *Lifecycle) ChannelGone(channelID string) {
	if _, ok := l.registry.FindOwner(channelID); !ok {
		return
	}
	if _, _, err := l.registry.CloseTicket(channelID, SystemActor, l.clock.Now()); err != nil {
		l.logger.Warn("close vanished ticket failed", "channel", channelID, "error", err)
	}
	if l.registry.RetireChannel(channelID) {
		l.logger.Info("vanished ticket channel retired", "channel", channelID)
	}
}
