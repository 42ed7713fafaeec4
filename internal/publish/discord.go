package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender delivers announcements over a discordgo session
type DiscordSender struct {
	session *discordgo.Session
}

// NewDiscordSender wraps a session as a Sender
func NewDiscordSender(session *discordgo.Session) *DiscordSender {
	return &DiscordSender{session: session}
}

// Send posts the announcement to a channel. Permission rejections are
// normalized to ErrForbidden so the fanout can tally and self-heal.
func (d *DiscordSender) Send(ctx context.Context, channelID, content string, embed *discordgo.MessageEmbed) error {
	msg := &discordgo.MessageSend{Content: content}
	if embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{embed}
	}
	_, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("channel %s: %w", channelID, ErrForbidden)
		}
	}
	return err
}

// RoleExists resolves a role id against the guild's current role list,
// preferring gateway state over a REST round trip.
func (d *DiscordSender) RoleExists(guildID, roleID string) bool {
	if guild, err := d.session.State.Guild(guildID); err == nil {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				return true
			}
		}
		return false
	}

	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return false
	}
	for _, role := range roles {
		if role.ID == roleID {
			return true
		}
	}
	return false
}
