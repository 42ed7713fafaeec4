package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/metrics"
	"github.com/wangyi68/zenox/internal/storage"
	"github.com/wangyi68/zenox/internal/webhook"
)

// ClientStats records guild and member growth once per day
type ClientStats struct {
	repo     *storage.Repository
	session  *discordgo.Session
	notifier *webhook.Notifier
}

// NewClientStats wires the stats task
func NewClientStats(repo *storage.Repository, session *discordgo.Session, notifier *webhook.Notifier) *ClientStats {
	return &ClientStats{repo: repo, session: session, notifier: notifier}
}

// Run takes one growth snapshot
func (t *ClientStats) Run(ctx context.Context) {
	guilds := t.session.State.Guilds
	guildCount := len(guilds)
	memberCount := 0

	for _, g := range guilds {
		memberCount += g.MemberCount
		if err := t.repo.SetGuildMemberCount(g.ID, g.MemberCount); err != nil {
			slog.Warn("Failed to update member count", "guild", g.ID, "error", err)
		}
	}

	if err := t.repo.InsertEvent("guild_growth", "", map[string]int{
		"guilds": guildCount,
		"users":  memberCount,
	}); err != nil {
		slog.Warn("Failed to record analytics event", "error", err)
	}

	metrics.GuildCount.Set(float64(guildCount))
	metrics.MemberCount.Set(float64(memberCount))

	t.notifier.Notify(ctx, "Client Stats Task", "", webhook.Embed{
		Title:       "Client Stats",
		Description: fmt.Sprintf("Guilds: %d\nUsers: %d", guildCount, memberCount),
		Color:       webhook.ColorPurple,
	})

	slog.Info("Recorded client stats", "guilds", guildCount, "members", memberCount)
}
