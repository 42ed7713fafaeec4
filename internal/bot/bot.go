package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/codes"
	"github.com/wangyi68/zenox/internal/config"
	"github.com/wangyi68/zenox/internal/hoyolab"
	"github.com/wangyi68/zenox/internal/metrics"
	"github.com/wangyi68/zenox/internal/publish"
	"github.com/wangyi68/zenox/internal/scheduler"
	"github.com/wangyi68/zenox/internal/storage"
	"github.com/wangyi68/zenox/internal/tasks"
	"github.com/wangyi68/zenox/internal/webhook"
	"github.com/wangyi68/zenox/internal/wiki"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	registry *codes.Registry
	queue    *codes.Queue
	schedule *config.ScheduleFile
	notifier *webhook.Notifier

	official *tasks.OfficialCodes
	wikiTask *tasks.WikiCodes
	cleanDB  *tasks.CleanDB
	stats    *tasks.ClientStats

	sched    *scheduler.Scheduler
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Per-game stream schedules
	schedule, err := config.LoadSchedule(cfg.SchedulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream schedule: %w", err)
	}

	registry := codes.NewRegistry(repo)
	queue := codes.NewQueue()
	notifier := webhook.NewNotifier(cfg.LogWebhookURL)
	publisher := publish.NewPublisher(repo, publish.NewDiscordSender(session))
	interval := time.Duration(cfg.OfficialPollIntervalSeconds) * time.Second

	b := &Bot{
		config:   cfg,
		session:  session,
		repo:     repo,
		registry: registry,
		queue:    queue,
		schedule: schedule,
		notifier: notifier,
		official: tasks.NewOfficialCodes(repo, registry, hoyolab.NewClient(), schedule, session, publisher, interval),
		wikiTask: tasks.NewWikiCodes(repo, registry, queue, wiki.NewClient(), publisher, notifier),
		cleanDB:  tasks.NewCleanDB(repo, session, notifier),
		stats:    tasks.NewClientStats(repo, session, notifier),
		sched:    scheduler.New(),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Metrics listener
	if b.config.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(b.config.MetricsAddr); err != nil {
				slog.Error("Metrics listener stopped", "error", err)
			}
		}()
	}

	// Scheduled tasks. Wiki discovery and publication are staggered so a
	// discovered code sits queued for two hours before it can go out.
	interval := time.Duration(b.config.OfficialPollIntervalSeconds) * time.Second
	b.sched.Every(ctx, interval, scheduler.Task{Name: "hoyolab_codes", Run: b.official.Run})
	b.sched.DailyAt(ctx, []int{1, 13}, scheduler.UTC8, scheduler.Task{Name: "wiki_codes", Run: b.wikiTask.Discover})
	b.sched.DailyAt(ctx, []int{3, 15}, scheduler.UTC8, scheduler.Task{Name: "publish_wiki_codes", Run: b.wikiTask.Publish})
	b.sched.DailyAt(ctx, []int{0}, scheduler.UTC8, scheduler.Task{Name: "clean_db", Run: b.cleanDB.Run})
	b.sched.DailyAt(ctx, []int{0}, scheduler.UTC8, scheduler.Task{Name: "client_stats", Run: b.stats.Run})

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop scheduled tasks, waiting for in-flight runs
	b.sched.Stop()

	// Remove registered commands (optional - comment out to keep commands)
	// b.removeCommands()

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleGuildDelete)
}

// handleGuildCreate ensures a config row exists for every joined guild
func (b *Bot) handleGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if err := b.repo.UpsertGuild(e.ID); err != nil {
		slog.Error("Failed to create guild row", "guild", e.ID, "error", err)
		return
	}
	// A rejoin within the grace window cancels the pending deletion
	if settings, err := b.repo.GetGuild(e.ID); err == nil && settings.PendingDeletion {
		if err := b.repo.SetGuildPendingDeletion(e.ID, false); err != nil {
			slog.Error("Failed to restore guild", "guild", e.ID, "error", err)
		}
	}
}

// handleGuildDelete marks a left guild for deferred cleanup
func (b *Bot) handleGuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Unavailable {
		// Outage, not a removal
		return
	}
	if err := b.repo.SetGuildPendingDeletion(e.ID, true); err != nil {
		slog.Error("Failed to mark guild pending deletion", "guild", e.ID, "error", err)
	}
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "setchannel":
		b.handleSetChannel(s, i)
	case "setrole":
		b.handleSetRole(s, i)
	case "pingmode":
		b.handlePingMode(s, i)
	case "togglecodes":
		b.handleToggleCodes(s, i)
	case "codes":
		b.handleCodes(s, i)
	case "settings":
		b.handleSettings(s, i)
	case "publish":
		b.handlePublish(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
