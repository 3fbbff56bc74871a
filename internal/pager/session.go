package pager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"modmail-bot/internal/clock"
)

// DefaultTimeout ends a navigation session after this much inactivity.
const DefaultTimeout = 120 * time.Second

// Signal is a navigation request from the viewer.
type Signal int

const (
	Forward Signal = iota + 1
	Backward
)

// View is the rendered message a session navigates. Signals delivers
// requests from the original requester only and may be closed by the
// view when it goes away.
type View interface {
	Signals() <-chan Signal
	Update(ctx context.Context, text string) error
	Close()
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Session moves a cursor over pages in response to view signals until
// the viewer goes quiet for the timeout.
type Session struct {
	ID string

	pages   []Page
	cursor  *Cursor
	view    View
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// NewSession returns a session positioned at page 0.
func NewSession(pages []Page, view View, opts SessionOptions) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		pages:   pages,
		cursor:  NewCursor(len(pages)),
		view:    view,
		timeout: opts.Timeout,
		clock:   opts.Clock,
		logger:  opts.Logger.With("session", id),
	}
}

// Current returns the index of the page on display.
func (s *Session) Current() int { return s.cursor.Current() }

// Run processes signals until the inactivity timeout, ctx cancellation,
// or the view closing its signal channel. The view is closed on return.
func (s *Session) Run(ctx context.Context) {
	expired := make(chan struct{})
	var once sync.Once
	timer := s.clock.AfterFunc(s.timeout, func() {
		once.Do(func() { close(expired) })
	})
	defer timer.Stop()
	defer s.view.Close()

	signals := s.view.Signals()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("navigation session cancelled")
			return
		case <-expired:
			s.logger.Debug("navigation session expired")
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			var page int
			switch sig {
			case Forward:
				page = s.cursor.Forward()
			case Backward:
				page = s.cursor.Backward()
			default:
				continue
			}
			timer.Reset(s.timeout)
			if len(s.pages) == 0 {
				continue
			}
			if err := s.view.Update(ctx, Render(s.pages[page])); err != nil {
				s.logger.Warn("navigation update failed", "page", page, "error", err)
			}
		}
	}
}
