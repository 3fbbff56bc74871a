package modmail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"modmail-bot/internal/archive"
	"modmail-bot/internal/pager"
)

type sent struct {
	To   string
	Text string
}

// fakePlatform records every call. Behavior is tuned through its fields
// before the router runs.
type fakePlatform struct {
	mu sync.Mutex

	nextChannel  int
	provisioned  []ChannelSpec
	channelMsgs  []sent
	directMsgs   []sent
	deleted      []string
	pageRequests []sent
	views        []*fakeView

	provisionErr  error
	provisionGate chan struct{} // when set, ProvisionChannel blocks until it is closed
	provisionHit  chan struct{} // when set, receives once ProvisionChannel is entered
	unreachable   map[string]bool
	gone          map[string]bool
	pagesErr      error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		unreachable: map[string]bool{},
		gone:        map[string]bool{},
	}
}

func (p *fakePlatform) ProvisionChannel(_ context.Context, spec ChannelSpec) (string, error) {
	p.mu.Lock()
	gate, hit := p.provisionGate, p.provisionHit
	p.mu.Unlock()
	if hit != nil {
		hit <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provisionErr != nil {
		return "", p.provisionErr
	}
	p.nextChannel++
	p.provisioned = append(p.provisioned, spec)
	return fmt.Sprintf("chan-%d", p.nextChannel), nil
}

func (p *fakePlatform) SendToChannel(_ context.Context, channelID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[channelID] {
		return fmt.Errorf("send: %w", ErrChannelNotFound)
	}
	p.channelMsgs = append(p.channelMsgs, sent{To: channelID, Text: text})
	return nil
}

func (p *fakePlatform) SendDirect(_ context.Context, userID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unreachable[userID] {
		return &DeliveryError{User: userID, Err: errors.New("cannot send messages to this user")}
	}
	p.directMsgs = append(p.directMsgs, sent{To: userID, Text: text})
	return nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[channelID] {
		return ErrChannelNotFound
	}
	p.gone[channelID] = true
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) PresentPages(_ context.Context, requesterID, text string) (pager.View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pagesErr != nil {
		return nil, p.pagesErr
	}
	p.pageRequests = append(p.pageRequests, sent{To: requesterID, Text: text})
	v := &fakeView{signals: make(chan pager.Signal, 8), updates: make(chan string, 8), closed: make(chan struct{})}
	p.views = append(p.views, v)
	return v, nil
}

func (p *fakePlatform) channelTexts(channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.channelMsgs {
		if m.To == channelID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (p *fakePlatform) directTexts(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.directMsgs {
		if m.To == userID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (p *fakePlatform) provisionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.provisioned)
}

func (p *fakePlatform) deletedChannels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

type fakeView struct {
	signals chan pager.Signal
	updates chan string
	closed  chan struct{}
	once    sync.Once
}

func (v *fakeView) Signals() <-chan pager.Signal { return v.signals }

func (v *fakeView) Update(_ context.Context, text string) error {
	v.updates <- text
	return nil
}

func (v *fakeView) Close() { v.once.Do(func() { close(v.closed) }) }

type memArchive struct {
	mu      sync.Mutex
	records []archive.Record
}

func (a *memArchive) Archive(_ context.Context, r archive.Record) {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
}
