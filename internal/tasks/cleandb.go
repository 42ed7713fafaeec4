package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/storage"
	"github.com/wangyi68/zenox/internal/webhook"
)

// CleanDB reconciles the stored guild list against the guilds the bot is
// actually in. A guild missing once is marked pending; a guild missing two
// runs in a row is deleted; a guild that came back is restored.
type CleanDB struct {
	repo     *storage.Repository
	session  *discordgo.Session
	notifier *webhook.Notifier
}

// NewCleanDB wires the reconciliation task
func NewCleanDB(repo *storage.Repository, session *discordgo.Session, notifier *webhook.Notifier) *CleanDB {
	return &CleanDB{repo: repo, session: session, notifier: notifier}
}

// Run performs one reconciliation pass
func (t *CleanDB) Run(ctx context.Context) {
	start := time.Now()
	results := map[string]int{"skipped": 0, "restored": 0, "pending": 0, "deleted": 0, "error": 0}

	live := make(map[string]bool)
	for _, g := range t.session.State.Guilds {
		live[g.ID] = true
	}

	stored, err := t.repo.ListGuildIDs()
	if err != nil {
		slog.Error("Failed to list stored guilds", "error", err)
		return
	}

	seen := make(map[string]bool)
	for _, guildID := range stored {
		seen[guildID] = true
		settings, err := t.repo.GetGuild(guildID)
		if err != nil {
			slog.Error("Failed to load guild", "guild", guildID, "error", err)
			results["error"]++
			continue
		}

		if live[guildID] {
			if settings.PendingDeletion {
				if err := t.repo.SetGuildPendingDeletion(guildID, false); err != nil {
					results["error"]++
					continue
				}
				results["restored"]++
				continue
			}
			results["skipped"]++
			continue
		}

		if settings.PendingDeletion {
			if err := t.repo.DeleteGuild(guildID); err != nil {
				results["error"]++
				continue
			}
			results["deleted"]++
			continue
		}
		if err := t.repo.SetGuildPendingDeletion(guildID, true); err != nil {
			results["error"]++
			continue
		}
		results["pending"]++
	}

	// Guilds the bot is in but the store never saw
	for guildID := range live {
		if !seen[guildID] {
			if err := t.repo.UpsertGuild(guildID); err != nil {
				slog.Error("Failed to create guild row", "guild", guildID, "error", err)
				results["error"]++
			}
		}
	}

	if err := t.repo.InsertEvent("clean_db", "", results); err != nil {
		slog.Warn("Failed to record analytics event", "error", err)
	}

	embed := webhook.StatsEmbed("Database CleanUp Results", results,
		[]string{"skipped", "restored", "pending", "deleted", "error"}, webhook.ColorPurple)
	embed.Footer = &struct {
		Text string `json:"text"`
	}{Text: fmt.Sprintf("Task Duration: %.3fs", time.Since(start).Seconds())}
	t.notifier.Notify(ctx, "cleanDB Task", "", embed)

	slog.Info("Guild reconciliation finished",
		"skipped", results["skipped"], "restored", results["restored"],
		"pending", results["pending"], "deleted", results["deleted"], "error", results["error"])
}
