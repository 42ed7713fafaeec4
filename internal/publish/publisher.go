package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// ErrForbidden marks a send rejected for missing permissions
var ErrForbidden = errors.New("forbidden")

// Kind separates the two announcement channels: official stream codes and
// wiki codes. Guilds opt in to each independently.
type Kind string

const (
	KindStream Kind = "stream"
	KindWiki   Kind = "wiki"
)

// GuildStore is the guild subscription surface the publisher reads. The
// publisher does not own guild lifecycles; it only clears stale channel or
// role references it discovers mid-fanout.
type GuildStore interface {
	ListGuildIDs() ([]string, error)
	GetGameConfig(guildID string, g game.Game) (*storage.GameConfig, error)
	SetGameConfigField(guildID string, g game.Game, field storage.ConfigField, value any) error
}

// Sender delivers one announcement to one channel
type Sender interface {
	// Send posts the message; a permission rejection is reported as an
	// error wrapping ErrForbidden
	Send(ctx context.Context, channelID, content string, embed *discordgo.MessageEmbed) error
	// RoleExists resolves a role against the guild's live role list
	RoleExists(guildID, roleID string) bool
}

// Stats are the per-run fanout tallies
type Stats struct {
	Success   int
	Failed    int
	Forbidden int
	NoChannel int
	NoRole    int
}

// Map returns the tallies keyed for analytics records
func (s Stats) Map() map[string]int {
	return map[string]int{
		"success":    s.Success,
		"failed":     s.Failed,
		"forbidden":  s.Forbidden,
		"no_channel": s.NoChannel,
		"no_role":    s.NoRole,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d success, %d failed, %d forbidden, %d no channel, %d no role",
		s.Success, s.Failed, s.Forbidden, s.NoChannel, s.NoRole)
}

// Publisher fans an announcement out to every subscribed guild
type Publisher struct {
	guilds GuildStore
	sender Sender
}

// NewPublisher creates a fanout publisher
func NewPublisher(guilds GuildStore, sender Sender) *Publisher {
	return &Publisher{guilds: guilds, sender: sender}
}

// Fanout sends the announcement to every guild with a channel configured
// for the game. A single guild's failure never aborts the loop; a cancelled
// context stops between guilds, never mid-send. An error means the guild
// list itself could not be read and not a single guild was attempted, so
// callers must not treat the run as delivered.
func (p *Publisher) Fanout(ctx context.Context, g game.Game, kind Kind, content string, embed *discordgo.MessageEmbed) (Stats, error) {
	var stats Stats

	guildIDs, err := p.guilds.ListGuildIDs()
	if err != nil {
		return stats, fmt.Errorf("failed to list guilds for fanout: %w", err)
	}

	for _, guildID := range guildIDs {
		if ctx.Err() != nil {
			slog.Info("Fanout interrupted by shutdown", "game", g, "remaining", len(guildIDs)-stats.total())
			break
		}
		p.sendToGuild(ctx, guildID, g, kind, content, embed, &stats)
	}
	return stats, nil
}

func (s *Stats) total() int {
	return s.Success + s.Failed + s.Forbidden + s.NoChannel + s.NoRole
}

func (p *Publisher) sendToGuild(ctx context.Context, guildID string, g game.Game, kind Kind, content string, embed *discordgo.MessageEmbed, stats *Stats) {
	cfg, err := p.guilds.GetGameConfig(guildID, g)
	if err != nil {
		slog.Error("Failed to load guild config", "guild", guildID, "game", g, "error", err)
		stats.Failed++
		return
	}

	// Per-guild opt-in for this announcement kind
	if kind == KindStream && !cfg.StreamCodes {
		return
	}
	if kind == KindWiki && !cfg.AllCodes {
		return
	}

	if cfg.ChannelID == "" {
		stats.NoChannel++
		return
	}

	mention := ""
	warning := ""
	switch cfg.Mention() {
	case storage.MentionEveryone:
		mention = "@everyone"
	case storage.MentionRole:
		if p.sender.RoleExists(guildID, cfg.RoleID) {
			mention = fmt.Sprintf("<@&%s>", cfg.RoleID)
		} else {
			// Role was deleted since it was configured; clear it so we
			// do not resolve it again next run
			if err := p.guilds.SetGameConfigField(guildID, g, storage.FieldRole, ""); err != nil {
				slog.Error("Failed to clear stale role", "guild", guildID, "game", g, "error", err)
			}
			warning = "\n-# The configured ping role no longer exists and has been removed."
			stats.NoRole++
		}
	}

	msg := content
	if mention != "" {
		msg = content + " " + mention
	}
	msg += warning

	if err := p.sender.Send(ctx, cfg.ChannelID, msg, embed); err != nil {
		if errors.Is(err, ErrForbidden) {
			// No permission to post anymore; drop the channel so the
			// guild stops counting as subscribed
			if err := p.guilds.SetGameConfigField(guildID, g, storage.FieldChannel, ""); err != nil {
				slog.Error("Failed to clear forbidden channel", "guild", guildID, "game", g, "error", err)
			}
			stats.Forbidden++
			return
		}
		slog.Error("Failed to send announcement", "guild", guildID, "game", g, "error", err)
		stats.Failed++
		return
	}
	stats.Success++
}
