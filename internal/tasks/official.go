package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/wangyi68/zenox/internal/codes"
	"github.com/wangyi68/zenox/internal/config"
	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/hoyolab"
	"github.com/wangyi68/zenox/internal/metrics"
	"github.com/wangyi68/zenox/internal/publish"
	"github.com/wangyi68/zenox/internal/storage"
)

// MaterialFeed is the official guide-material surface the poller needs
type MaterialFeed interface {
	GuideMaterial(ctx context.Context, g game.Game) (*hoyolab.MaterialResponse, error)
}

// OfficialCodes polls the Hoyolab guide material for special-program codes
// and keeps the per-game status message up to date.
type OfficialCodes struct {
	repo      *storage.Repository
	registry  *codes.Registry
	programs  *codes.Programs
	feed      MaterialFeed
	schedule  *config.ScheduleFile
	session   *discordgo.Session
	publisher *publish.Publisher
	interval  time.Duration
}

// NewOfficialCodes wires the official-feed poller
func NewOfficialCodes(repo *storage.Repository, registry *codes.Registry, feed MaterialFeed, schedule *config.ScheduleFile, session *discordgo.Session, publisher *publish.Publisher, interval time.Duration) *OfficialCodes {
	return &OfficialCodes{
		repo:      repo,
		registry:  registry,
		programs:  codes.NewPrograms(repo, registry),
		feed:      feed,
		schedule:  schedule,
		session:   session,
		publisher: publisher,
		interval:  interval,
	}
}

// Run polls every game once. Games are independent; a failure in one never
// aborts the others.
func (t *OfficialCodes) Run(ctx context.Context) {
	eg, ctx := errgroup.WithContext(ctx)
	for _, g := range game.All() {
		g := g
		eg.Go(func() error {
			t.pollGame(ctx, g)
			return nil
		})
	}
	_ = eg.Wait()
}

func (t *OfficialCodes) pollGame(ctx context.Context, g game.Game) {
	sched := t.schedule.Get(g)
	prog, err := t.programs.Load(g, sched.Version)
	if err != nil {
		slog.Error("Failed to load special program", "game", g, "version", sched.Version, "error", err)
		return
	}

	state := prog.State(codes.Schedule{Disabled: sched.Disabled, StreamTime: sched.StreamTime}, time.Now())
	if state == codes.StateSearching {
		// Only searching programs need a request; everything else is
		// settled or not live yet
		t.search(ctx, g, prog)
	}

	t.updateStatusMessage(ctx, g, prog, sched)
}

// search fetches the guide material and registers whatever codes it carries
func (t *OfficialCodes) search(ctx context.Context, g game.Game, prog *codes.Program) {
	material, err := t.feed.GuideMaterial(ctx, g)
	if err != nil {
		// Transient; next scheduled run is the retry
		slog.Warn("Official feed fetch failed", "game", g, "error", err)
		return
	}

	stream, ok := hoyolab.ExtractStreamCodes(material)
	if !ok {
		slog.Debug("No redemption module yet", "game", g)
		return
	}

	for _, bonus := range stream.Bonuses {
		if bonus.ExchangeCode == "" {
			continue
		}
		if err := t.registerCode(g, prog, bonus); err != nil {
			slog.Error("Failed to register stream code", "game", g, "code", bonus.ExchangeCode, "error", err)
			return
		}
	}

	found, err := prog.MarkFound(stream.CodeCount)
	if err != nil {
		slog.Error("Failed to mark program found", "game", g, "version", prog.Version(), "error", err)
		return
	}
	if found {
		slog.Info("All special program codes found", "game", g, "version", prog.Version(), "count", stream.CodeCount)
		if err := t.repo.InsertEvent("hoyolab_codes_found", g, map[string]int{"codes": len(prog.Codes())}); err != nil {
			slog.Warn("Failed to record analytics event", "error", err)
		}
	}
}

func (t *OfficialCodes) registerCode(g game.Game, prog *codes.Program, bonus hoyolab.Bonus) error {
	c, created, err := t.registry.GetOrCreate(g, bonus.ExchangeCode)
	if err != nil {
		return err
	}
	if created {
		slog.Info("Discovered stream code", "game", g, "code", bonus.ExchangeCode)
		metrics.CodesDiscovered.WithLabelValues(string(g), "hoyolab").Inc()
	}
	if bonus.OfflineAt != 0 && (c.ExpiresAt == nil || *c.ExpiresAt != bonus.OfflineAt) {
		if err := t.registry.SetExpiresAt(g, bonus.ExchangeCode, bonus.OfflineAt); err != nil {
			return err
		}
	}
	if err := t.registry.SetDiscoveredAt(g, bonus.ExchangeCode, time.Now()); err != nil {
		return err
	}
	if c.IsChina == nil {
		if err := t.registry.SetIsChina(g, bonus.ExchangeCode, false); err != nil {
			return err
		}
	}
	if err := prog.SetImage(bonus.Icon); err != nil {
		return err
	}
	_, err = prog.AddCode(bonus.ExchangeCode)
	return err
}

// PublishProgram announces a found program's codes to all subscribed
// guilds and marks the program published. Triggered by an operator, not by
// the poll loop; publication of stream codes stays a manual confirmation.
func (t *OfficialCodes) PublishProgram(ctx context.Context, g game.Game) (publish.Stats, error) {
	sched := t.schedule.Get(g)
	prog, err := t.programs.Load(g, sched.Version)
	if err != nil {
		return publish.Stats{}, err
	}
	if !prog.Found() {
		return publish.Stats{}, fmt.Errorf("program %s/%s has no complete code set yet", g, sched.Version)
	}
	if prog.Published() {
		return publish.Stats{}, fmt.Errorf("program %s/%s was already published", g, sched.Version)
	}

	var members []*storage.Code
	for _, code := range prog.Codes() {
		c, _, err := t.registry.GetOrCreate(g, code)
		if err != nil {
			return publish.Stats{}, err
		}
		members = append(members, c)
	}

	content, embed := publish.ProgramAnnouncement(g, sched.Version, members)
	stats, err := t.publisher.Fanout(ctx, g, publish.KindStream, content, embed)
	if err != nil {
		// Nothing was sent; keep the program unpublished so the operator
		// can retry
		return stats, err
	}

	if err := prog.MarkPublished(); err != nil {
		return stats, err
	}
	metrics.CodesPublished.WithLabelValues(string(g)).Add(float64(len(members)))
	for outcome, count := range stats.Map() {
		metrics.FanoutResults.WithLabelValues(string(g), outcome).Add(float64(count))
	}
	if err := t.repo.InsertEvent("send_hoyolab_codes", g, stats.Map()); err != nil {
		slog.Warn("Failed to record analytics event", "error", err)
	}
	slog.Info("Published special program codes", "game", g, "version", sched.Version, "stats", stats.String())
	return stats, nil
}

// updateStatusMessage edits the tracking message in the configured channel
func (t *OfficialCodes) updateStatusMessage(ctx context.Context, g game.Game, prog *codes.Program, sched config.StreamSchedule) {
	if sched.ChannelID == "" || sched.MessageID == "" {
		return
	}

	var members []*storage.Code
	for _, code := range prog.Codes() {
		c, _, err := t.registry.GetOrCreate(g, code)
		if err != nil {
			slog.Error("Failed to load program code", "game", g, "code", code, "error", err)
			continue
		}
		members = append(members, c)
	}

	state := prog.State(codes.Schedule{Disabled: sched.Disabled, StreamTime: sched.StreamTime}, time.Now())
	content := fmt.Sprintf("State `%s` Version `%s` Next Update <t:%d:R>",
		state, sched.Version, time.Now().Add(t.interval).Unix())
	embed := publish.ProgramStatusEmbed(g, sched.Version, members, prog.Image())

	_, err := t.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel: sched.ChannelID,
		ID:      sched.MessageID,
		Content: &content,
		Embeds:  &[]*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("Failed to edit status message", "game", g, "error", err)
	}
}
