package storage

import (
	"time"

	"github.com/wangyi68/zenox/internal/game"
)

// Reward is one reward line attached to a redemption code
type Reward struct {
	Name   string `json:"reward"`
	Amount int    `json:"amount"`
}

// Code represents a redemption code for one game.
// IsChina and Redeemed are tri-state: nil means unknown.
type Code struct {
	Game         game.Game
	Code         string
	IsChina      *bool
	Rewards      []Reward
	DiscoveredAt *int64 // unix seconds, set once on first sighting
	ExpiresAt    *int64 // unix seconds
	Published    bool
	Redeemed     *bool
}

// SpecialProgram is the per (game, version) aggregate of discovered
// stream codes. Found and Published only ever go false -> true.
type SpecialProgram struct {
	Game      game.Game
	Version   string
	Found     bool
	Published bool
	Image     string
	ExpiresAt *int64
	Codes     []string // member code strings, insertion order
}

// GuildSettings stores per-server bookkeeping
type GuildSettings struct {
	GuildID         string
	MemberCount     *int
	PendingDeletion bool
	CreatedAt       time.Time
}

// MentionMode selects who gets pinged when codes are announced
type MentionMode string

const (
	MentionNone     MentionMode = "none"
	MentionRole     MentionMode = "role"
	MentionEveryone MentionMode = "everyone"
)

// GameConfig is the per (guild, game) announcement configuration
type GameConfig struct {
	GuildID      string
	Game         game.Game
	ChannelID    string // empty = no channel configured
	RoleID       string // role to mention, empty = none
	EveryonePing bool
	StreamCodes  bool // opt-in for special-program codes
	AllCodes     bool // opt-in for wiki codes
}

// Mention returns the effective mention mode
func (c *GameConfig) Mention() MentionMode {
	if c.EveryonePing {
		return MentionEveryone
	}
	if c.RoleID != "" {
		return MentionRole
	}
	return MentionNone
}

// AnalyticsEvent is an append-only record of a task run
type AnalyticsEvent struct {
	ID    int64
	Kind  string
	Game  string
	Time  time.Time
	Stats map[string]int
}
