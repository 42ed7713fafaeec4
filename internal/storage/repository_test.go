package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangyi68/zenox/internal/game"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCodeRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameGenshin

	_, err := repo.GetCode(g, "GENSHINGIFT")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.InsertCode(g, "GENSHINGIFT"))

	c, err := repo.GetCode(g, "GENSHINGIFT")
	require.NoError(t, err)
	assert.Equal(t, g, c.Game)
	assert.Equal(t, "GENSHINGIFT", c.Code)
	assert.Nil(t, c.IsChina)
	assert.Nil(t, c.DiscoveredAt)
	assert.Nil(t, c.Redeemed)
	assert.False(t, c.Published)
	assert.Empty(t, c.Rewards)
}

func TestCodePrimaryKeyIsGameAndCode(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.InsertCode(game.GameGenshin, "SHARED"))
	require.NoError(t, repo.InsertCode(game.GameStarRail, "SHARED"))
	assert.Error(t, repo.InsertCode(game.GameGenshin, "SHARED"))
}

func TestSetCodeDiscoveredAtOnce(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameZZZ

	require.NoError(t, repo.InsertCode(g, "ZZZCODE"))
	require.NoError(t, repo.SetCodeDiscoveredAt(g, "ZZZCODE", 1700000000))
	require.NoError(t, repo.SetCodeDiscoveredAt(g, "ZZZCODE", 1800000000))

	c, err := repo.GetCode(g, "ZZZCODE")
	require.NoError(t, err)
	require.NotNil(t, c.DiscoveredAt)
	assert.Equal(t, int64(1700000000), *c.DiscoveredAt)
}

func TestCodeFlags(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameGenshin

	require.NoError(t, repo.InsertCode(g, "FLAGS"))
	require.NoError(t, repo.SetCodeIsChina(g, "FLAGS", true))
	require.NoError(t, repo.SetCodePublished(g, "FLAGS", true))
	require.NoError(t, repo.SetCodeRedeemed(g, "FLAGS", false))
	require.NoError(t, repo.SetCodeExpiresAt(g, "FLAGS", 1800000000))
	require.NoError(t, repo.SetCodeRewards(g, "FLAGS", []Reward{{Name: "Primogem", Amount: 60}}))

	c, err := repo.GetCode(g, "FLAGS")
	require.NoError(t, err)
	require.NotNil(t, c.IsChina)
	assert.True(t, *c.IsChina)
	assert.True(t, c.Published)
	require.NotNil(t, c.Redeemed)
	assert.False(t, *c.Redeemed)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, int64(1800000000), *c.ExpiresAt)
	assert.Equal(t, []Reward{{Name: "Primogem", Amount: 60}}, c.Rewards)
}

func TestListUnexpiredCodes(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameGenshin
	now := time.Unix(1700000000, 0)

	// Published, no expiry: listed
	require.NoError(t, repo.InsertCode(g, "EVERGREEN"))
	require.NoError(t, repo.SetCodePublished(g, "EVERGREEN", true))

	// Published, expires later: listed
	require.NoError(t, repo.InsertCode(g, "FRESH"))
	require.NoError(t, repo.SetCodePublished(g, "FRESH", true))
	require.NoError(t, repo.SetCodeExpiresAt(g, "FRESH", now.Add(time.Hour).Unix()))

	// Published but expired: excluded
	require.NoError(t, repo.InsertCode(g, "STALE"))
	require.NoError(t, repo.SetCodePublished(g, "STALE", true))
	require.NoError(t, repo.SetCodeExpiresAt(g, "STALE", now.Add(-time.Hour).Unix()))

	// Never published: excluded
	require.NoError(t, repo.InsertCode(g, "UNSEEN"))

	codes, err := repo.ListUnexpiredCodes(g, now)
	require.NoError(t, err)
	listed := make([]string, len(codes))
	for i, c := range codes {
		listed[i] = c.Code
	}
	assert.ElementsMatch(t, []string{"EVERGREEN", "FRESH"}, listed)
}

func TestProgramRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameStarRail

	_, err := repo.GetProgram(g, "3.0")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.InsertProgram(g, "3.0"))
	require.NoError(t, repo.SetProgramCodes(g, "3.0", []string{"AAAA", "BBBB"}))
	require.NoError(t, repo.SetProgramFound(g, "3.0", true))
	require.NoError(t, repo.SetProgramImage(g, "3.0", "https://example.com/promo.png"))

	p, err := repo.GetProgram(g, "3.0")
	require.NoError(t, err)
	assert.Equal(t, g, p.Game)
	assert.Equal(t, "3.0", p.Version)
	assert.True(t, p.Found)
	assert.False(t, p.Published)
	assert.Equal(t, []string{"AAAA", "BBBB"}, p.Codes)
	assert.Equal(t, "https://example.com/promo.png", p.Image)

	require.NoError(t, repo.SetProgramPublished(g, "3.0", true))
	p, err = repo.GetProgram(g, "3.0")
	require.NoError(t, err)
	assert.True(t, p.Published)
}

func TestGuildLifecycle(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.UpsertGuild("guild-1"))
	// Upsert is idempotent
	require.NoError(t, repo.UpsertGuild("guild-1"))
	require.NoError(t, repo.UpsertGuild("guild-2"))

	ids, err := repo.ListGuildIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"guild-1", "guild-2"}, ids)

	// Each guild gets a config row per game, feeds on by default
	for _, g := range game.All() {
		cfg, err := repo.GetGameConfig("guild-1", g)
		require.NoError(t, err)
		assert.Equal(t, "", cfg.ChannelID)
		assert.True(t, cfg.StreamCodes)
		assert.True(t, cfg.AllCodes)
		assert.Equal(t, MentionNone, cfg.Mention())
	}

	require.NoError(t, repo.SetGuildPendingDeletion("guild-2", true))
	s, err := repo.GetGuild("guild-2")
	require.NoError(t, err)
	assert.True(t, s.PendingDeletion)

	require.NoError(t, repo.SetGuildMemberCount("guild-2", 1234))
	s, err = repo.GetGuild("guild-2")
	require.NoError(t, err)
	require.NotNil(t, s.MemberCount)
	assert.Equal(t, 1234, *s.MemberCount)

	require.NoError(t, repo.DeleteGuild("guild-2"))
	_, err = repo.GetGuild("guild-2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetGameConfig("guild-2", game.GameGenshin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetGameConfigField(t *testing.T) {
	repo := newTestRepository(t)
	g := game.GameGenshin

	require.NoError(t, repo.UpsertGuild("guild-1"))
	require.NoError(t, repo.SetGameConfigField("guild-1", g, FieldChannel, "chan-1"))
	require.NoError(t, repo.SetGameConfigField("guild-1", g, FieldRole, "role-1"))
	require.NoError(t, repo.SetGameConfigField("guild-1", g, FieldAllCodes, false))

	cfg, err := repo.GetGameConfig("guild-1", g)
	require.NoError(t, err)
	assert.Equal(t, "chan-1", cfg.ChannelID)
	assert.Equal(t, "role-1", cfg.RoleID)
	assert.False(t, cfg.AllCodes)
	assert.Equal(t, MentionRole, cfg.Mention())

	err = repo.SetGameConfigField("guild-1", g, ConfigField("evil; DROP TABLE guilds"), "x")
	assert.Error(t, err)
}

func TestInsertEvent(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.InsertEvent("send_wiki_codes", game.GameGenshin, map[string]int{"success": 3}))
	require.NoError(t, repo.InsertEvent("clean_db", "", nil))
}
