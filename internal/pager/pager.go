// Package pager renders ticket transcripts one page at a time and drives
// the bounded navigation sessions that flip between pages.
package pager

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"modmail-bot/internal/ticket"
)

const (
	// DefaultChunk is how many transcript entries fit on one page.
	DefaultChunk = 10

	// MaxContentRunes caps a rendered message body. Stored content is
	// never truncated.
	MaxContentRunes = 300

	// MaxPageRunes is the platform's message size limit. Render shrinks
	// entry bodies further when a full page would not fit.
	MaxPageRunes = 2000

	timeLayout = "2006-01-02 15:04:05 UTC"
)

// Page is one renderable slice of a user's ticket history.
type Page struct {
	User        string
	Ticket      ticket.Ticket
	TicketIndex int // zero based
	TicketCount int
	Entries     []ticket.Entry
	Chunk       int // zero based chunk within the ticket
	ChunkCount  int
}

// Build splits tickets into pages of at most chunk entries. Every ticket
// yields at least one page, even with an empty transcript.
func Build(user string, tickets []ticket.Ticket, chunk int) []Page {
	if chunk <= 0 {
		chunk = DefaultChunk
	}

	var pages []Page
	for i, t := range tickets {
		chunks := (len(t.Messages) + chunk - 1) / chunk
		if chunks == 0 {
			chunks = 1
		}
		for c := 0; c < chunks; c++ {
			lo := c * chunk
			hi := lo + chunk
			if hi > len(t.Messages) {
				hi = len(t.Messages)
			}
			pages = append(pages, Page{
				User:        user,
				Ticket:      t,
				TicketIndex: i,
				TicketCount: len(tickets),
				Entries:     t.Messages[lo:hi],
				Chunk:       c,
				ChunkCount:  chunks,
			})
		}
	}
	return pages
}

// Render formats a page as plain message text of at most MaxPageRunes
// runes.
func Render(p Page) string {
	header := fmt.Sprintf("📜 **Ticket %d/%d** for <@%s> in <#%s>", p.TicketIndex+1, p.TicketCount, p.User, p.Ticket.ChannelID)
	if p.ChunkCount > 1 {
		header += fmt.Sprintf(" (part %d/%d)", p.Chunk+1, p.ChunkCount)
	}
	header += "\n\n"
	footer := "\n" + Footer(p.Ticket)

	prefixes := make([]string, len(p.Entries))
	budget := MaxPageRunes - utf8.RuneCountInString(header) - utf8.RuneCountInString(footer)
	for i, e := range p.Entries {
		prefixes[i] = fmt.Sprintf("`%s` **%s:** ", e.Timestamp.UTC().Format(timeLayout), e.Author)
		budget -= utf8.RuneCountInString(prefixes[i]) + 1
	}

	limit := MaxContentRunes
	if n := len(p.Entries); n > 0 && budget/n < limit {
		limit = budget / n
	}

	var b strings.Builder
	b.WriteString(header)
	if len(p.Entries) == 0 {
		b.WriteString("_No messages._\n")
	}
	for i, e := range p.Entries {
		b.WriteString(prefixes[i])
		b.WriteString(Truncate(e.Content, limit))
		b.WriteString("\n")
	}
	b.WriteString(footer)
	return Truncate(b.String(), MaxPageRunes)
}

// Footer describes the ticket's closure state.
func Footer(t ticket.Ticket) string {
	if !t.Closed() {
		return "Status: open"
	}
	return fmt.Sprintf("Closed by %s at %s", t.ClosedBy, t.ClosedAt.UTC().Format(time.RFC3339))
}

// Truncate shortens s to at most limit runes, marking the cut with an
// ellipsis.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	if limit == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// Cursor walks a fixed number of pages circularly.
type Cursor struct {
	current int
	count   int
}

// NewCursor returns a cursor at page 0 over count pages.
func NewCursor(count int) *Cursor {
	if count < 1 {
		count = 1
	}
	return &Cursor{count: count}
}

// Current returns the current page index.
func (c *Cursor) Current() int { return c.current }

// Forward advances one page, wrapping to 0 after the last.
func (c *Cursor) Forward() int {
	c.current = (c.current + 1) % c.count
	return c.current
}

// Backward retreats one page, wrapping to the last page before 0.
func (c *Cursor) Backward() int {
	c.current = (c.current - 1 + c.count) % c.count
	return c.current
}
