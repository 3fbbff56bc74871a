package modmail

import (
	"context"

	"modmail-bot/internal/archive"
	"modmail-bot/internal/pager"
)

// ChannelSpec describes a ticket channel to provision. Permission
// overwrites are the platform's concern.
type ChannelSpec struct {
	Name     string
	Category string
	Topic    string
}

// Platform is the chat service the router talks to.
type Platform interface {
	// ProvisionChannel creates a private staff channel and returns its id.
	ProvisionChannel(ctx context.Context, spec ChannelSpec) (string, error)

	// SendToChannel posts text into a channel. A channel that no longer
	// exists is reported as ErrChannelNotFound.
	SendToChannel(ctx context.Context, channelID, text string) error

	// SendDirect messages a user privately. Unreachable users are
	// reported as *DeliveryError.
	SendDirect(ctx context.Context, userID, text string) error

	// DeleteChannel removes a channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// PresentPages DMs the first page of a transcript to requester and
	// returns a view that delivers that requester's navigation signals.
	PresentPages(ctx context.Context, requesterID, text string) (pager.View, error)
}

// Archiver mirrors transcript lines to secondary storage.
type Archiver interface {
	Archive(ctx context.Context, r archive.Record)
}
