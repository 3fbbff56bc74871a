package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"modmail-bot/internal/modmail"
	"modmail-bot/internal/pager"
)

const ticketPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory

// ProvisionChannel creates a text channel only staff and the bot can see.
func (g *Gateway) ProvisionChannel(ctx context.Context, spec modmail.ChannelSpec) (string, error) {
	g.mu.RLock()
	guildID, staffRoleID := g.guildID, g.staffRoleID
	g.mu.RUnlock()
	if guildID == "" {
		return "", errors.New("guild not resolved")
	}

	parentID, err := g.categoryID(ctx, guildID, spec.Category)
	if err != nil {
		return "", err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: staffRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketPermissions},
	}
	if g.session.State != nil && g.session.State.User != nil {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    g.session.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketPermissions | discordgo.PermissionManageChannels,
		})
	}

	ch, err := g.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create channel %s: %w", spec.Name, err)
	}
	return ch.ID, nil
}

// categoryID finds a category channel by name. A missing category leaves
// the ticket at the top level.
func (g *Gateway) categoryID(ctx context.Context, guildID, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	key := strings.ToLower(name)

	g.mu.RLock()
	id, ok := g.categories[key]
	g.mu.RUnlock()
	if ok {
		return id, nil
	}

	channels, err := g.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, name) {
			id = ch.ID
			break
		}
	}
	if id == "" {
		g.logger.Warn("ticket category not found", "category", name)
		return "", nil
	}

	g.mu.Lock()
	g.categories[key] = id
	g.mu.Unlock()
	return id, nil
}

// SendToChannel posts text with mentions disabled.
func (g *Gateway) SendToChannel(ctx context.Context, channelID, text string) error {
	_, err := g.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to %s: %w", channelID, channelError(err))
	}
	return nil
}

// SendDirect messages a user privately.
func (g *Gateway) SendDirect(ctx context.Context, userID, text string) error {
	dm, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return &modmail.DeliveryError{User: userID, Err: err}
	}
	if _, err := g.session.ChannelMessageSend(dm.ID, text, discordgo.WithContext(ctx)); err != nil {
		return &modmail.DeliveryError{User: userID, Err: err}
	}
	return nil
}

// DeleteChannel deletes a channel.
func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := g.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete %s: %w", channelID, channelError(err))
	}
	g.mu.Lock()
	for name, id := range g.categories {
		if id == channelID {
			delete(g.categories, name)
		}
	}
	g.mu.Unlock()
	return nil
}

// PresentPages DMs text to the requester with navigation reactions and
// returns a view fed by that requester's reactions on the message.
func (g *Gateway) PresentPages(ctx context.Context, requesterID, text string) (pager.View, error) {
	dm, err := g.session.UserChannelCreate(requesterID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, &modmail.DeliveryError{User: requesterID, Err: err}
	}
	msg, err := g.session.ChannelMessageSend(dm.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return nil, &modmail.DeliveryError{User: requesterID, Err: err}
	}
	for _, emoji := range []string{emojiBackward, emojiForward} {
		if err := g.session.MessageReactionAdd(dm.ID, msg.ID, emoji, discordgo.WithContext(ctx)); err != nil {
			g.logger.Warn("navigation reaction failed", "emoji", emoji, "error", err)
		}
	}

	v := newReactionView(g.session, dm.ID, msg.ID, requesterID)
	v.attach(
		g.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
			if r.MessageReaction != nil {
				v.onReaction(r.UserID, r.MessageID, r.Emoji.Name)
			}
		}),
		g.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
			if r.MessageReaction != nil {
				v.onReaction(r.UserID, r.MessageID, r.Emoji.Name)
			}
		}),
	)
	return v, nil
}

// channelError maps unknown-channel responses to modmail.ErrChannelNotFound.
func channelError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownChannel {
		return fmt.Errorf("%w: %v", modmail.ErrChannelNotFound, err)
	}
	if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", modmail.ErrChannelNotFound, err)
	}
	return err
}
