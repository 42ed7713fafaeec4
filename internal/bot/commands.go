package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// buildGameChoices creates the game selection choices for slash commands
func buildGameChoices() []*discordgo.ApplicationCommandOptionChoice {
	games := game.All()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(games))
	for i, g := range games {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  g.Name(),
			Value: string(g),
		}
	}
	return choices
}

func gameOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "game",
		Description: "The game",
		Required:    true,
		Choices:     buildGameChoices(),
	}
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	manageServer := int64(discordgo.PermissionManageServer)
	admin := int64(discordgo.PermissionAdministrator)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setchannel",
			Description:              "Set the channel for code announcements",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to send code announcements to",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
						discordgo.ChannelTypeGuildNews,
					},
				},
			},
		},
		{
			Name:                     "setrole",
			Description:              "Set the role to mention when codes are announced",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "The role to mention, leave out to clear",
					Required:    false,
				},
			},
		},
		{
			Name:                     "pingmode",
			Description:              "Choose who gets pinged on code announcements",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Mention mode",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "none", Value: "none"},
						{Name: "role", Value: "role"},
						{Name: "everyone", Value: "everyone"},
					},
				},
			},
		},
		{
			Name:                     "togglecodes",
			Description:              "Enable or disable a code feed for this server",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "feed",
					Description: "Which feed to toggle",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "stream codes", Value: "stream"},
						{Name: "all codes", Value: "all"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether announcements for this feed are sent",
					Required:    true,
				},
			},
		},
		{
			Name:        "codes",
			Description: "List currently active redemption codes",
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
			},
		},
		{
			Name:        "settings",
			Description: "Show this server's code announcement settings",
		},
		{
			Name:                     "publish",
			Description:              "Publish the found special program codes to all servers",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(),
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// removeCommands removes all registered slash commands
func (b *Bot) removeCommands() {
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(b.session.State.User.ID, "", cmd.ID)
		if err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
}

// gameFromOptions resolves the game option, replying on failure
func (b *Bot) gameFromOptions(s *discordgo.Session, i *discordgo.InteractionCreate) (game.Game, bool) {
	g := game.Game(i.ApplicationCommandData().Options[0].StringValue())
	if !g.Valid() {
		respondWithMessage(s, i, fmt.Sprintf("Unknown game: `%s`.", g))
		return "", false
	}
	return g, true
}

// handleSetChannel handles the /setchannel command
func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}
	channel := i.ApplicationCommandData().Options[1].ChannelValue(s)

	if err := b.repo.UpsertGuild(i.GuildID); err != nil {
		slog.Error("Failed to ensure guild row", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to save settings. Please try again.")
		return
	}
	if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldChannel, channel.ID); err != nil {
		slog.Error("Failed to set channel", "guild", i.GuildID, "game", g, "error", err)
		respondWithMessage(s, i, "Failed to set the announcement channel. Please try again.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("%s code announcements will be sent to <#%s>", g.Name(), channel.ID))
}

// handleSetRole handles the /setrole command
func (b *Bot) handleSetRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}

	options := i.ApplicationCommandData().Options
	roleID := ""
	if len(options) > 1 {
		roleID = options[1].RoleValue(s, i.GuildID).ID
	}

	if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldRole, roleID); err != nil {
		slog.Error("Failed to set role", "guild", i.GuildID, "game", g, "error", err)
		respondWithMessage(s, i, "Failed to update the ping role. Please try again.")
		return
	}

	if roleID == "" {
		respondWithMessage(s, i, fmt.Sprintf("Cleared the ping role for %s.", g.Name()))
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("<@&%s> will be mentioned for %s code announcements.", roleID, g.Name()))
}

// handlePingMode handles the /pingmode command
func (b *Bot) handlePingMode(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}
	mode := i.ApplicationCommandData().Options[1].StringValue()

	switch mode {
	case "everyone":
		if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldEveryone, true); err != nil {
			respondWithMessage(s, i, "Failed to update the ping mode. Please try again.")
			return
		}
		respondWithMessage(s, i, fmt.Sprintf("@everyone will be pinged for %s code announcements.", g.Name()))
	case "role":
		cfg, err := b.repo.GetGameConfig(i.GuildID, g)
		if err != nil || cfg.RoleID == "" {
			respondWithMessage(s, i, "No ping role configured yet. Use `/setrole` first.")
			return
		}
		if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldEveryone, false); err != nil {
			respondWithMessage(s, i, "Failed to update the ping mode. Please try again.")
			return
		}
		respondWithMessage(s, i, fmt.Sprintf("<@&%s> will be pinged for %s code announcements.", cfg.RoleID, g.Name()))
	case "none":
		if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldEveryone, false); err != nil {
			respondWithMessage(s, i, "Failed to update the ping mode. Please try again.")
			return
		}
		if err := b.repo.SetGameConfigField(i.GuildID, g, storage.FieldRole, ""); err != nil {
			respondWithMessage(s, i, "Failed to update the ping mode. Please try again.")
			return
		}
		respondWithMessage(s, i, fmt.Sprintf("Nobody will be pinged for %s code announcements.", g.Name()))
	default:
		respondWithMessage(s, i, fmt.Sprintf("Unknown ping mode: `%s`.", mode))
	}
}

// handleToggleCodes handles the /togglecodes command
func (b *Bot) handleToggleCodes(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}
	options := i.ApplicationCommandData().Options
	feed := options[1].StringValue()
	enabled := options[2].BoolValue()

	var field storage.ConfigField
	var label string
	switch feed {
	case "stream":
		field, label = storage.FieldStreamCodes, "special program codes"
	case "all":
		field, label = storage.FieldAllCodes, "wiki codes"
	default:
		respondWithMessage(s, i, fmt.Sprintf("Unknown feed: `%s`.", feed))
		return
	}

	if err := b.repo.SetGameConfigField(i.GuildID, g, field, enabled); err != nil {
		slog.Error("Failed to toggle feed", "guild", i.GuildID, "game", g, "feed", feed, "error", err)
		respondWithMessage(s, i, "Failed to update settings. Please try again.")
		return
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	respondWithMessage(s, i, fmt.Sprintf("Announcements for %s %s are now %s.", g.Name(), label, verb))
}

// handleCodes handles the /codes command
func (b *Bot) handleCodes(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}

	activeCodes, err := b.repo.ListUnexpiredCodes(g, time.Now())
	if err != nil {
		slog.Error("Failed to list codes", "game", g, "error", err)
		respondWithMessage(s, i, "Failed to retrieve the code list.")
		return
	}

	if len(activeCodes) == 0 {
		respondWithMessage(s, i, fmt.Sprintf("No active codes known for %s right now.", g.Name()))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Active %s codes:**\n\n", g.Name()))
	for _, c := range activeCodes {
		sb.WriteString(fmt.Sprintf("`%s` | [Redeem](%s%s)", c.Code, g.RedeemURL(), c.Code))
		if c.ExpiresAt != nil {
			sb.WriteString(fmt.Sprintf(" | expires <t:%d:R>", *c.ExpiresAt))
		}
		sb.WriteString("\n")
	}

	respondWithMessage(s, i, sb.String())
}

// handleSettings handles the /settings command
func (b *Bot) handleSettings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := b.repo.UpsertGuild(i.GuildID); err != nil {
		slog.Error("Failed to ensure guild row", "guild", i.GuildID, "error", err)
		respondWithMessage(s, i, "Failed to load settings.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Code announcement settings:**\n\n")
	for _, g := range game.All() {
		cfg, err := b.repo.GetGameConfig(i.GuildID, g)
		if err != nil {
			slog.Error("Failed to load game config", "guild", i.GuildID, "game", g, "error", err)
			continue
		}

		sb.WriteString(fmt.Sprintf("**%s**\n", g.Name()))
		if cfg.ChannelID == "" {
			sb.WriteString("  Channel: not set\n")
		} else {
			sb.WriteString(fmt.Sprintf("  Channel: <#%s>\n", cfg.ChannelID))
		}
		switch cfg.Mention() {
		case storage.MentionEveryone:
			sb.WriteString("  Ping: @everyone\n")
		case storage.MentionRole:
			sb.WriteString(fmt.Sprintf("  Ping: <@&%s>\n", cfg.RoleID))
		default:
			sb.WriteString("  Ping: none\n")
		}
		sb.WriteString(fmt.Sprintf("  Stream codes: %s | Wiki codes: %s\n\n",
			onOff(cfg.StreamCodes), onOff(cfg.AllCodes)))
	}

	respondWithMessage(s, i, sb.String())
}

// handlePublish handles the /publish command
func (b *Bot) handlePublish(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g, ok := b.gameFromOptions(s, i)
	if !ok {
		return
	}

	// The fanout can take a while across many guilds
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := b.official.PublishProgram(ctx, g)
	if err != nil {
		slog.Error("Failed to publish program", "game", g, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Could not publish: %s", err.Error()))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Published %s special program codes: %s", g.Name(), stats.String()))
}

// Helper functions

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
}
