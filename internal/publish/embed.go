package publish

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

const (
	colorCodes   = 0x657478
	colorProgram = 0x657478
)

// CodesAnnouncement builds the outbound wiki-code announcement: one embed
// bundling every code in the drained batches with the merged reward summary.
func CodesAnnouncement(g game.Game, codes []*storage.Code, rewards []storage.Reward) (string, *discordgo.MessageEmbed) {
	var sb strings.Builder
	for _, c := range codes {
		sb.WriteString(fmt.Sprintf("> **%s** | [Redeem](%s%s)\n", c.Code, g.RedeemURL(), c.Code))
	}
	if len(rewards) > 0 {
		sb.WriteString("\n**〓 Rewards 〓**\n")
		for _, rw := range rewards {
			sb.WriteString(fmt.Sprintf("%s ×%d\n", rw.Name, rw.Amount))
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "New Redemption Codes",
		Description: sb.String(),
		Color:       colorCodes,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s • codes from the community wiki", g.Name()),
		},
	}
	return "New redemption codes are available!", embed
}

// ProgramAnnouncement builds the special-program code announcement sent
// when an official stream's codes are published to guilds.
func ProgramAnnouncement(g game.Game, version string, codes []*storage.Code) (string, *discordgo.MessageEmbed) {
	var sb strings.Builder
	for _, c := range codes {
		sb.WriteString(fmt.Sprintf("> **%s** | [Redeem](%s%s)\n", c.Code, g.RedeemURL(), c.Code))
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Special Program Codes", version),
		Description: sb.String(),
		Color:       colorProgram,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s • codes expire quickly, redeem soon", g.Name()),
		},
	}
	return "The special program codes have been found!", embed
}

// ProgramStatusEmbed builds the status-message embed the official poller
// keeps edited in the configured tracking channel.
func ProgramStatusEmbed(g game.Game, version string, codes []*storage.Code, image string) *discordgo.MessageEmbed {
	value := "No codes found yet"
	if len(codes) > 0 {
		var sb strings.Builder
		for _, c := range codes {
			sb.WriteString(fmt.Sprintf("%s | [Redeem](%s%s)\n", c.Code, g.RedeemURL(), c.Code))
		}
		value = sb.String()
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Version %s Special Program", version),
		Description: "Codes from the livestream are collected here as they are discovered.",
		Color:       colorProgram,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Codes", Value: value},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: g.Name(),
		},
	}
	if image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: image}
	}
	return embed
}
