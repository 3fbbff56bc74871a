package ticket

import (
	"fmt"
	"sync"
	"time"
)

// Persister is notified after registry mutations. Touch is used for
// transcript appends, which may be coalesced; FlushSoon for ticket
// creation and closure, which should reach storage promptly.
type Persister interface {
	Touch()
	FlushSoon()
}

type nopPersister struct{}

func (nopPersister) Touch()     {}
func (nopPersister) FlushSoon() {}

// Registry indexes tickets by user and live channels by id. All methods
// are safe for concurrent use; returned tickets are copies.
type Registry struct {
	mu      sync.Mutex
	tickets map[string][]*Ticket // user -> history, creation order
	byChan  map[string]*Ticket   // every channel ever registered
	chanOf  map[string]string    // every channel ever registered -> user
	owners  map[string]string    // live channels only
	persist Persister
}

// NewRegistry returns an empty registry. A nil persister disables
// change notifications.
func NewRegistry(persist Persister) *Registry {
	if persist == nil {
		persist = nopPersister{}
	}
	return &Registry{
		tickets: make(map[string][]*Ticket),
		byChan:  make(map[string]*Ticket),
		chanOf:  make(map[string]string),
		owners:  make(map[string]string),
		persist: persist,
	}
}

// SetPersister replaces the change notifier. It exists because the
// coalescing writer needs the registry to snapshot from.
func (r *Registry) SetPersister(persist Persister) {
	if persist == nil {
		persist = nopPersister{}
	}
	r.mu.Lock()
	r.persist = persist
	r.mu.Unlock()
}

// FindOpenTicket returns the user's ticket that has a live channel and
// no closure metadata.
func (r *Registry) FindOpenTicket(user string) (Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.openLocked(user)
	if t == nil {
		return Ticket{}, false
	}
	return t.clone(), true
}

func (r *Registry) openLocked(user string) *Ticket {
	history := r.tickets[user]
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Closed() {
			continue
		}
		if r.owners[t.ChannelID] == user {
			return t
		}
	}
	return nil
}

// FindOwner returns the user owning a live ticket channel.
func (r *Registry) FindOwner(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.owners[channelID]
	return user, ok
}

// CreateTicket registers a new open ticket for user backed by channelID.
func (r *Registry) CreateTicket(user, channelID string) (Ticket, error) {
	r.mu.Lock()
	if r.openLocked(user) != nil {
		r.mu.Unlock()
		return Ticket{}, fmt.Errorf("create ticket for %s: %w", user, ErrConflict)
	}
	if _, ok := r.byChan[channelID]; ok {
		r.mu.Unlock()
		return Ticket{}, fmt.Errorf("create ticket in %s: %w", channelID, ErrChannelInUse)
	}

	t := &Ticket{ChannelID: channelID, Messages: []Entry{}}
	r.tickets[user] = append(r.tickets[user], t)
	r.byChan[channelID] = t
	r.chanOf[channelID] = user
	r.owners[channelID] = user
	out := t.clone()
	persist := r.persist
	r.mu.Unlock()

	persist.FlushSoon()
	return out, nil
}

// AppendMessage adds an entry to the end of the ticket's transcript and
// returns it as stored. An entry stamped earlier than its predecessor is
// raised to the predecessor's timestamp so transcripts stay
// non-decreasing.
func (r *Registry) AppendMessage(channelID string, entry Entry) (Entry, error) {
	r.mu.Lock()
	t, ok := r.byChan[channelID]
	if !ok {
		r.mu.Unlock()
		return Entry{}, fmt.Errorf("append to %s: %w", channelID, ErrUnknownChannel)
	}
	if n := len(t.Messages); n > 0 && entry.Timestamp.Before(t.Messages[n-1].Timestamp) {
		entry.Timestamp = t.Messages[n-1].Timestamp
	}
	t.Messages = append(t.Messages, entry)
	persist := r.persist
	r.mu.Unlock()

	persist.Touch()
	return entry, nil
}

// CloseTicket records who closed the ticket and when. Closure metadata is
// set at most once; the boolean reports whether this call set it.
func (r *Registry) CloseTicket(channelID, actor string, when time.Time) (Ticket, bool, error) {
	r.mu.Lock()
	t, ok := r.byChan[channelID]
	if !ok {
		r.mu.Unlock()
		return Ticket{}, false, fmt.Errorf("close %s: %w", channelID, ErrUnknownChannel)
	}
	if t.Closed() {
		out := t.clone()
		r.mu.Unlock()
		return out, false, nil
	}
	at := when
	t.ClosedBy = actor
	t.ClosedAt = &at
	out := t.clone()
	persist := r.persist
	r.mu.Unlock()

	persist.FlushSoon()
	return out, true, nil
}

// RetireChannel drops the live mapping for channelID. The ticket's
// history is kept. Reports whether a live mapping existed.
func (r *Registry) RetireChannel(channelID string) bool {
	r.mu.Lock()
	_, ok := r.owners[channelID]
	delete(r.owners, channelID)
	persist := r.persist
	r.mu.Unlock()

	if ok {
		persist.FlushSoon()
	}
	return ok
}

// Tickets returns the user's ticket history in creation order.
func (r *Registry) Tickets(user string) []Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.tickets[user]
	out := make([]Ticket, 0, len(history))
	for _, t := range history {
		out = append(out, t.clone())
	}
	return out
}

// Lookup finds a ticket by channel id, including retired channels.
func (r *Registry) Lookup(channelID string) (string, Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byChan[channelID]
	if !ok {
		return "", Ticket{}, false
	}
	return r.chanOf[channelID], t.clone(), true
}

// Live reports whether channelID is still mapped to its owner.
func (r *Registry) Live(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[channelID]
	return ok
}

// LiveChannels returns every channel that still has a live mapping.
func (r *Registry) LiveChannels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.owners))
	for channelID := range r.owners {
		out = append(out, channelID)
	}
	return out
}

// Users returns every user with at least one ticket.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.tickets))
	for user := range r.tickets {
		out = append(out, user)
	}
	return out
}

// Snapshot returns a deep copy of the registry in its persisted form.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := EmptySnapshot()
	for user, history := range r.tickets {
		list := make([]Ticket, 0, len(history))
		for _, t := range history {
			list = append(list, t.clone())
		}
		snap.UserTickets[user] = list
	}
	for channelID, user := range r.owners {
		snap.ChannelToUser[channelID] = user
	}
	return snap
}

// Restore replaces the registry contents with snap. Reverse mappings that
// do not point at a ticket of the named user are dropped.
func (r *Registry) Restore(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickets = make(map[string][]*Ticket, len(snap.UserTickets))
	r.byChan = make(map[string]*Ticket)
	r.chanOf = make(map[string]string)
	r.owners = make(map[string]string)

	for user, history := range snap.UserTickets {
		list := make([]*Ticket, 0, len(history))
		for _, t := range history {
			c := t.clone()
			list = append(list, &c)
			r.byChan[c.ChannelID] = &c
			r.chanOf[c.ChannelID] = user
		}
		r.tickets[user] = list
	}
	for channelID, user := range snap.ChannelToUser {
		if r.chanOf[channelID] == user {
			r.owners[channelID] = user
		}
	}
}
