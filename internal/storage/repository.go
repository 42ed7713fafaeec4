package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wangyi68/zenox/internal/game"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS codes (
			game VARCHAR(20) NOT NULL,
			code VARCHAR(50) NOT NULL,
			is_china INTEGER,
			rewards TEXT NOT NULL DEFAULT '[]',
			discovered_at INTEGER,
			expires_at INTEGER,
			published INTEGER NOT NULL DEFAULT 0,
			redeemed INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game, code)
		)`,
		`CREATE TABLE IF NOT EXISTS special_programs (
			game VARCHAR(20) NOT NULL,
			version VARCHAR(10) NOT NULL,
			found INTEGER NOT NULL DEFAULT 0,
			published INTEGER NOT NULL DEFAULT 0,
			image TEXT NOT NULL DEFAULT '',
			expires_at INTEGER,
			codes TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game, version)
		)`,
		`CREATE TABLE IF NOT EXISTS guilds (
			guild_id VARCHAR(20) PRIMARY KEY,
			member_count INTEGER,
			pending_deletion INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_game_configs (
			guild_id VARCHAR(20) NOT NULL,
			game VARCHAR(20) NOT NULL,
			channel_id VARCHAR(20) NOT NULL DEFAULT '',
			role_id VARCHAR(20) NOT NULL DEFAULT '',
			everyone_ping INTEGER NOT NULL DEFAULT 0,
			stream_codes INTEGER NOT NULL DEFAULT 1,
			all_codes INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (guild_id, game)
		)`,
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind VARCHAR(50) NOT NULL,
			game VARCHAR(20) NOT NULL DEFAULT '',
			time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			stats TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_codes_game_published ON codes(game, published)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_kind ON analytics_events(kind)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Code operations

// InsertCode creates a blank code row; first-seen fields stay NULL
func (r *Repository) InsertCode(g game.Game, code string) error {
	_, err := r.db.Exec(
		`INSERT INTO codes (game, code) VALUES (?, ?)`,
		string(g), code,
	)
	return err
}

// GetCode loads one code row
func (r *Repository) GetCode(g game.Game, code string) (*Code, error) {
	c := &Code{}
	var (
		isChina  sql.NullBool
		rewards  string
		disc     sql.NullInt64
		expires  sql.NullInt64
		redeemed sql.NullBool
		gameStr  string
	)
	err := r.db.QueryRow(
		`SELECT game, code, is_china, rewards, discovered_at, expires_at, published, redeemed
		 FROM codes WHERE game = ? AND code = ?`,
		string(g), code,
	).Scan(&gameStr, &c.Code, &isChina, &rewards, &disc, &expires, &c.Published, &redeemed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Game = game.Game(gameStr)
	if isChina.Valid {
		c.IsChina = &isChina.Bool
	}
	if disc.Valid {
		c.DiscoveredAt = &disc.Int64
	}
	if expires.Valid {
		c.ExpiresAt = &expires.Int64
	}
	if redeemed.Valid {
		c.Redeemed = &redeemed.Bool
	}
	if err := json.Unmarshal([]byte(rewards), &c.Rewards); err != nil {
		return nil, fmt.Errorf("corrupt rewards for %s/%s: %w", g, code, err)
	}
	return c, nil
}

// SetCodeDiscoveredAt writes the discovery timestamp only if it is unset
func (r *Repository) SetCodeDiscoveredAt(g game.Game, code string, ts int64) error {
	_, err := r.db.Exec(
		`UPDATE codes SET discovered_at = ? WHERE game = ? AND code = ? AND discovered_at IS NULL`,
		ts, string(g), code,
	)
	return err
}

// SetCodeExpiresAt updates the expiry timestamp
func (r *Repository) SetCodeExpiresAt(g game.Game, code string, ts int64) error {
	_, err := r.db.Exec(
		`UPDATE codes SET expires_at = ? WHERE game = ? AND code = ?`,
		ts, string(g), code,
	)
	return err
}

// SetCodeIsChina updates the region flag
func (r *Repository) SetCodeIsChina(g game.Game, code string, isChina bool) error {
	_, err := r.db.Exec(
		`UPDATE codes SET is_china = ? WHERE game = ? AND code = ?`,
		isChina, string(g), code,
	)
	return err
}

// SetCodePublished updates the published flag
func (r *Repository) SetCodePublished(g game.Game, code string, published bool) error {
	_, err := r.db.Exec(
		`UPDATE codes SET published = ? WHERE game = ? AND code = ?`,
		published, string(g), code,
	)
	return err
}

// SetCodeRedeemed updates the redeemed marker
func (r *Repository) SetCodeRedeemed(g game.Game, code string, redeemed bool) error {
	_, err := r.db.Exec(
		`UPDATE codes SET redeemed = ? WHERE game = ? AND code = ?`,
		redeemed, string(g), code,
	)
	return err
}

// SetCodeRewards replaces the rewards list wholesale
func (r *Repository) SetCodeRewards(g game.Game, code string, rewards []Reward) error {
	data, err := json.Marshal(rewards)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`UPDATE codes SET rewards = ? WHERE game = ? AND code = ?`,
		string(data), string(g), code,
	)
	return err
}

// ListUnexpiredCodes returns published, not-yet-expired codes for a game
func (r *Repository) ListUnexpiredCodes(g game.Game, now time.Time) ([]*Code, error) {
	rows, err := r.db.Query(
		`SELECT code FROM codes
		 WHERE game = ? AND published = 1 AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY discovered_at DESC`,
		string(g), now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []*Code
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		c, err := r.GetCode(g, code)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// Special-program operations

// InsertProgram creates a blank program row
func (r *Repository) InsertProgram(g game.Game, version string) error {
	_, err := r.db.Exec(
		`INSERT INTO special_programs (game, version) VALUES (?, ?)`,
		string(g), version,
	)
	return err
}

// GetProgram loads one special program row
func (r *Repository) GetProgram(g game.Game, version string) (*SpecialProgram, error) {
	p := &SpecialProgram{}
	var (
		gameStr string
		expires sql.NullInt64
		codes   string
	)
	err := r.db.QueryRow(
		`SELECT game, version, found, published, image, expires_at, codes
		 FROM special_programs WHERE game = ? AND version = ?`,
		string(g), version,
	).Scan(&gameStr, &p.Version, &p.Found, &p.Published, &p.Image, &expires, &codes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Game = game.Game(gameStr)
	if expires.Valid {
		p.ExpiresAt = &expires.Int64
	}
	if err := json.Unmarshal([]byte(codes), &p.Codes); err != nil {
		return nil, fmt.Errorf("corrupt codes for %s/%s: %w", g, version, err)
	}
	return p, nil
}

// SetProgramFound flips the found flag
func (r *Repository) SetProgramFound(g game.Game, version string, found bool) error {
	_, err := r.db.Exec(
		`UPDATE special_programs SET found = ? WHERE game = ? AND version = ?`,
		found, string(g), version,
	)
	return err
}

// SetProgramPublished flips the published flag
func (r *Repository) SetProgramPublished(g game.Game, version string, published bool) error {
	_, err := r.db.Exec(
		`UPDATE special_programs SET published = ? WHERE game = ? AND version = ?`,
		published, string(g), version,
	)
	return err
}

// SetProgramCodes replaces the member code list
func (r *Repository) SetProgramCodes(g game.Game, version string, codes []string) error {
	data, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`UPDATE special_programs SET codes = ? WHERE game = ? AND version = ?`,
		string(data), string(g), version,
	)
	return err
}

// SetProgramImage updates the promo image URL
func (r *Repository) SetProgramImage(g game.Game, version, image string) error {
	_, err := r.db.Exec(
		`UPDATE special_programs SET image = ? WHERE game = ? AND version = ?`,
		image, string(g), version,
	)
	return err
}

// Guild operations

// UpsertGuild ensures a guild row and its per-game config rows exist
func (r *Repository) UpsertGuild(guildID string) error {
	_, err := r.db.Exec(
		`INSERT INTO guilds (guild_id) VALUES (?) ON CONFLICT(guild_id) DO NOTHING`,
		guildID,
	)
	if err != nil {
		return err
	}
	for _, g := range game.All() {
		_, err := r.db.Exec(
			`INSERT INTO guild_game_configs (guild_id, game) VALUES (?, ?)
			 ON CONFLICT(guild_id, game) DO NOTHING`,
			guildID, string(g),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetGuild loads one guild row
func (r *Repository) GetGuild(guildID string) (*GuildSettings, error) {
	s := &GuildSettings{}
	var memberCount sql.NullInt64
	err := r.db.QueryRow(
		`SELECT guild_id, member_count, pending_deletion, created_at FROM guilds WHERE guild_id = ?`,
		guildID,
	).Scan(&s.GuildID, &memberCount, &s.PendingDeletion, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if memberCount.Valid {
		n := int(memberCount.Int64)
		s.MemberCount = &n
	}
	return s, nil
}

// ListGuildIDs returns every stored guild id
func (r *Repository) ListGuildIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT guild_id FROM guilds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetGuildPendingDeletion marks or clears the pending-deletion flag
func (r *Repository) SetGuildPendingDeletion(guildID string, pending bool) error {
	_, err := r.db.Exec(
		`UPDATE guilds SET pending_deletion = ? WHERE guild_id = ?`,
		pending, guildID,
	)
	return err
}

// SetGuildMemberCount records the latest member count
func (r *Repository) SetGuildMemberCount(guildID string, count int) error {
	_, err := r.db.Exec(
		`UPDATE guilds SET member_count = ? WHERE guild_id = ?`,
		count, guildID,
	)
	return err
}

// DeleteGuild removes a guild and its game configs
func (r *Repository) DeleteGuild(guildID string) error {
	if _, err := r.db.Exec(`DELETE FROM guild_game_configs WHERE guild_id = ?`, guildID); err != nil {
		return err
	}
	_, err := r.db.Exec(`DELETE FROM guilds WHERE guild_id = ?`, guildID)
	return err
}

// GetGameConfig loads the per (guild, game) announcement config
func (r *Repository) GetGameConfig(guildID string, g game.Game) (*GameConfig, error) {
	c := &GameConfig{}
	var gameStr string
	err := r.db.QueryRow(
		`SELECT guild_id, game, channel_id, role_id, everyone_ping, stream_codes, all_codes
		 FROM guild_game_configs WHERE guild_id = ? AND game = ?`,
		guildID, string(g),
	).Scan(&c.GuildID, &gameStr, &c.ChannelID, &c.RoleID, &c.EveryonePing, &c.StreamCodes, &c.AllCodes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Game = game.Game(gameStr)
	return c, nil
}

// ConfigField names one mutable column of a guild game config
type ConfigField string

const (
	FieldChannel     ConfigField = "channel_id"
	FieldRole        ConfigField = "role_id"
	FieldEveryone    ConfigField = "everyone_ping"
	FieldStreamCodes ConfigField = "stream_codes"
	FieldAllCodes    ConfigField = "all_codes"
)

// SetGameConfigField updates one column of a guild game config. The field
// is a tagged constant, never caller-supplied text.
func (r *Repository) SetGameConfigField(guildID string, g game.Game, field ConfigField, value any) error {
	switch field {
	case FieldChannel, FieldRole, FieldEveryone, FieldStreamCodes, FieldAllCodes:
	default:
		return fmt.Errorf("unknown config field: %s", field)
	}
	_, err := r.db.Exec(
		fmt.Sprintf(`UPDATE guild_game_configs SET %s = ? WHERE guild_id = ? AND game = ?`, field),
		value, guildID, string(g),
	)
	return err
}

// Analytics operations

// InsertEvent appends an analytics record; best-effort, callers may ignore errors
func (r *Repository) InsertEvent(kind string, g game.Game, stats map[string]int) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(
		`INSERT INTO analytics_events (kind, game, time, stats) VALUES (?, ?, ?, ?)`,
		kind, string(g), time.Now(), string(data),
	)
	return err
}
