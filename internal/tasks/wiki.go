package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wangyi68/zenox/internal/codes"
	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/metrics"
	"github.com/wangyi68/zenox/internal/publish"
	"github.com/wangyi68/zenox/internal/storage"
	"github.com/wangyi68/zenox/internal/webhook"
	"github.com/wangyi68/zenox/internal/wiki"
)

// WikiFeed is the wiki page surface the discover step needs
type WikiFeed interface {
	CodeTable(ctx context.Context, g game.Game) ([]wiki.Row, error)
}

// WikiCodes discovers codes from the community wikis and publishes queued
// batches on a staged schedule. Discovery and publication run as separate
// scheduled task entrypoints.
type WikiCodes struct {
	repo      *storage.Repository
	registry  *codes.Registry
	queue     *codes.Queue
	feed      WikiFeed
	publisher *publish.Publisher
	notifier  *webhook.Notifier
}

// NewWikiCodes wires the wiki pipeline
func NewWikiCodes(repo *storage.Repository, registry *codes.Registry, queue *codes.Queue, feed WikiFeed, publisher *publish.Publisher, notifier *webhook.Notifier) *WikiCodes {
	return &WikiCodes{
		repo:      repo,
		registry:  registry,
		queue:     queue,
		feed:      feed,
		publisher: publisher,
		notifier:  notifier,
	}
}

// Discover scrapes each game's wiki page and queues genuinely new codes
func (t *WikiCodes) Discover(ctx context.Context) {
	var added []*storage.Code

	for _, g := range game.All() {
		if g.WikiURL() == "" {
			continue
		}
		queued, err := t.discoverGame(ctx, g)
		if err != nil {
			// Per-game skip; the next scheduled run is the retry
			slog.Error("Wiki discovery failed", "game", g, "error", err)
			t.notifier.Notify(ctx, "WikiCodes Task", "Error while scraping wiki",
				webhook.Embed{Title: "Error", Description: fmt.Sprintf("%s: %v", g.Name(), err), Color: webhook.ColorRed})
			continue
		}
		added = append(added, queued...)
	}

	t.reportDiscovery(ctx, added)
}

func (t *WikiCodes) discoverGame(ctx context.Context, g game.Game) ([]*storage.Code, error) {
	rows, err := t.feed.CodeTable(ctx, g)
	if err != nil {
		return nil, err
	}

	var added []*storage.Code
	for _, row := range rows {
		candidate := wiki.FilterRow(row)
		if candidate == nil {
			continue
		}

		batch, err := t.registerCandidate(g, candidate)
		if err != nil {
			return nil, err
		}

		// A batch is queued only if its lead code was never published,
		// never redeemed, is not China-only, and is not already queued
		lead := batch[0]
		if lead.Published || lead.Redeemed != nil || (lead.IsChina != nil && *lead.IsChina) {
			continue
		}
		if t.queue.Contains(g, lead.Code) {
			continue
		}
		t.queue.EnqueueBatch(g, batch)
		added = append(added, lead)
	}
	return added, nil
}

// registerCandidate upserts every code of one wiki row into the registry
func (t *WikiCodes) registerCandidate(g game.Game, candidate *wiki.Candidate) (codes.Batch, error) {
	var batch codes.Batch
	for _, codeStr := range candidate.Codes {
		c, created, err := t.registry.GetOrCreate(g, codeStr)
		if err != nil {
			return nil, err
		}
		if created {
			slog.Info("Discovered wiki code", "game", g, "code", codeStr)
			metrics.CodesDiscovered.WithLabelValues(string(g), "wiki").Inc()
		}
		if err := t.registry.SetDiscoveredAt(g, codeStr, time.Now()); err != nil {
			return nil, err
		}
		if c.IsChina == nil || !*c.IsChina {
			if err := t.registry.SetIsChina(g, codeStr, candidate.IsChina); err != nil {
				return nil, err
			}
		}
		// Each (code, reward) delta may be reported once only, so rewards
		// are merged solely on the first sighting of an empty reward list
		if len(c.Rewards) == 0 {
			for _, rw := range candidate.Rewards {
				if err := t.registry.MergeReward(g, codeStr, rw.Name, rw.Amount); err != nil {
					return nil, err
				}
			}
		}
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("candidate row produced no codes")
	}
	return batch, nil
}

func (t *WikiCodes) reportDiscovery(ctx context.Context, added []*storage.Code) {
	if len(added) == 0 {
		t.notifier.Notify(ctx, "WikiCodes Task", "No new codes found in wiki",
			webhook.Embed{Title: "No Codes Found", Color: webhook.ColorRed})
		return
	}

	var lines []string
	for _, c := range added {
		var rewards []string
		for _, rw := range c.Rewards {
			rewards = append(rewards, fmt.Sprintf("%s x%d", rw.Name, rw.Amount))
		}
		lines = append(lines, fmt.Sprintf("%s | %s | Rewards: %s", c.Code, c.Game.Name(), strings.Join(rewards, ", ")))
	}

	var queued []string
	for _, g := range game.All() {
		if n := t.queue.Len(g); n > 0 {
			queued = append(queued, fmt.Sprintf("%s: %d", g.Name(), n))
		}
	}

	t.notifier.Notify(ctx, "WikiCodes Task",
		fmt.Sprintf("Added %d codes to queue | Queued per game: %s", len(added), strings.Join(queued, ", ")),
		webhook.Embed{Title: "Added Codes", Description: strings.Join(lines, "\n"), Color: webhook.ColorGreen})
}

// Publish drains up to the batch limit per game and fans the codes out to
// every subscribed guild.
func (t *WikiCodes) Publish(ctx context.Context) {
	for _, g := range game.All() {
		if g.WikiURL() == "" {
			continue
		}
		if err := t.publishGame(ctx, g); err != nil {
			if errors.Is(err, codes.ErrDrainInProgress) {
				slog.Info("Skipping publish, drain already running", "game", g)
				continue
			}
			slog.Error("Wiki publish failed", "game", g, "error", err)
			t.notifier.Notify(ctx, "WikiCodes Task", "Error while publishing codes",
				webhook.Embed{Title: "Error", Description: fmt.Sprintf("%s: %v", g.Name(), err), Color: webhook.ColorRed})
		}
	}
}

func (t *WikiCodes) publishGame(ctx context.Context, g game.Game) error {
	batches, err := t.queue.Drain(g, codes.DrainLimit)
	if err != nil {
		// Another drain is running; this cycle simply yields
		return err
	}
	if len(batches) == 0 {
		return nil
	}

	// Each batch is announced through its lead code; tied codes of the
	// same row share the announcement and the published flag
	var leads []*storage.Code
	for _, batch := range batches {
		leads = append(leads, batch[0])
	}
	rewards := codes.MergeRewardLists(leads)

	content, embed := publish.CodesAnnouncement(g, leads, rewards)
	stats, err := t.publisher.Fanout(ctx, g, publish.KindWiki, content, embed)
	if err != nil {
		// No guild was attempted; put the batches back so the next cycle
		// can announce them
		t.queue.Requeue(g, batches)
		return err
	}

	for _, batch := range batches {
		for _, c := range batch {
			if err := t.registry.SetPublished(g, c.Code, true); err != nil {
				return fmt.Errorf("failed to mark %s published: %w", c.Code, err)
			}
		}
		metrics.CodesPublished.WithLabelValues(string(g)).Inc()
	}

	for outcome, count := range stats.Map() {
		metrics.FanoutResults.WithLabelValues(string(g), outcome).Add(float64(count))
	}
	if err := t.repo.InsertEvent("send_wiki_codes", g, stats.Map()); err != nil {
		slog.Warn("Failed to record analytics event", "error", err)
	}

	slog.Info("Published wiki codes", "game", g, "codes", len(leads), "stats", stats.String())
	t.notifier.Notify(ctx, "WikiCodes Task",
		fmt.Sprintf("Published %d codes for %s | %s | Remaining in queue: %d", len(leads), g.Name(), stats.String(), t.queue.Len(g)),
		webhook.Embed{Title: "Published Codes", Description: stats.String(), Color: webhook.ColorGreen})
	return nil
}
