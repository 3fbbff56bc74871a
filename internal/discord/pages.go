package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"modmail-bot/internal/pager"
)

const (
	emojiBackward = "◀️"
	emojiForward  = "▶️"
)

// reactionView is a paged DM. Adding or removing a navigation reaction
// both count as a press, since bots cannot clear reactions in DMs.
type reactionView struct {
	session     *discordgo.Session
	channelID   string
	messageID   string
	requesterID string
	signals     chan pager.Signal

	mu       sync.Mutex
	closed   bool
	removers []func()
}

func newReactionView(session *discordgo.Session, channelID, messageID, requesterID string) *reactionView {
	return &reactionView{
		session:     session,
		channelID:   channelID,
		messageID:   messageID,
		requesterID: requesterID,
		signals:     make(chan pager.Signal, 4),
	}
}

func (v *reactionView) attach(removers ...func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		for _, remove := range removers {
			remove()
		}
		return
	}
	v.removers = append(v.removers, removers...)
}

func (v *reactionView) onReaction(userID, messageID, emoji string) {
	if userID != v.requesterID || messageID != v.messageID {
		return
	}
	var sig pager.Signal
	switch emoji {
	case emojiForward:
		sig = pager.Forward
	case emojiBackward:
		sig = pager.Backward
	default:
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.signals <- sig:
	default:
	}
}

func (v *reactionView) Signals() <-chan pager.Signal { return v.signals }

func (v *reactionView) Update(ctx context.Context, text string) error {
	_, err := v.session.ChannelMessageEdit(v.channelID, v.messageID, text, discordgo.WithContext(ctx))
	return err
}

func (v *reactionView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	removers := v.removers
	v.removers = nil
	v.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}
