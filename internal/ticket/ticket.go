// Package ticket holds the ticket registry: which user owns which ticket
// channel, and the ordered transcript of every ticket a user has had.
package ticket

import "time"

// Entry is one line of a ticket transcript. Entries are immutable once
// appended.
type Entry struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket is one conversation between a user and staff, backed by a
// private channel while it is open.
type Ticket struct {
	ChannelID string     `json:"channelId"`
	Messages  []Entry    `json:"messages"`
	ClosedBy  string     `json:"closedBy,omitempty"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Closed reports whether closure metadata has been set.
func (t Ticket) Closed() bool {
	return t.ClosedAt != nil
}

func (t Ticket) clone() Ticket {
	out := t
	out.Messages = append([]Entry(nil), t.Messages...)
	if out.Messages == nil {
		out.Messages = []Entry{}
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		out.ClosedAt = &at
	}
	return out
}

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	UserTickets   map[string][]Ticket `json:"userTickets"`
	ChannelToUser map[string]string   `json:"channelToUser"`
}

// EmptySnapshot returns a snapshot with no users and no channels.
func EmptySnapshot() Snapshot {
	return Snapshot{
		UserTickets:   map[string][]Ticket{},
		ChannelToUser: map[string]string{},
	}
}
