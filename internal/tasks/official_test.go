package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangyi68/zenox/internal/codes"
	"github.com/wangyi68/zenox/internal/config"
	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/hoyolab"
	"github.com/wangyi68/zenox/internal/publish"
	"github.com/wangyi68/zenox/internal/storage"
)

// fakeMaterialFeed serves canned guide payloads per game
type fakeMaterialFeed struct {
	payloads map[game.Game]*hoyolab.MaterialResponse
}

func (f *fakeMaterialFeed) GuideMaterial(ctx context.Context, g game.Game) (*hoyolab.MaterialResponse, error) {
	return f.payloads[g], nil
}

func materialWith(codeCount int, bonuses ...hoyolab.Bonus) *hoyolab.MaterialResponse {
	m := &hoyolab.MaterialResponse{}
	m.Data.Modules = []hoyolab.Module{
		{ModuleType: 1},
		{
			ModuleType:    7,
			ExchangeGroup: &hoyolab.ExchangeGroup{Bonuses: bonuses},
		},
	}
	m.Data.Modules[1].ExchangeGroup.BonusesSummary.CodeCount = codeCount
	return m
}

func newOfficialPipeline(t *testing.T, feed *fakeMaterialFeed) (*OfficialCodes, *storage.Repository, *recordingSender) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewRepository(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.UpsertGuild("guild-1"))
	require.NoError(t, repo.SetGameConfigField("guild-1", game.GameGenshin, storage.FieldChannel, "chan-1"))

	schedule, err := config.LoadSchedule(filepath.Join(dir, "schedule.json"))
	require.NoError(t, err)
	// A stream that already aired puts the program in its searching phase
	require.NoError(t, schedule.Set(game.GameGenshin, config.StreamSchedule{
		StreamTime: time.Now().Add(-time.Hour).Unix(),
		Version:    "5.0",
	}))

	registry := codes.NewRegistry(repo)
	sender := &recordingSender{}
	publisher := publish.NewPublisher(repo, sender)

	return NewOfficialCodes(repo, registry, feed, schedule, nil, publisher, time.Minute), repo, sender
}

func TestRunIgnoresIncompleteCodeSet(t *testing.T) {
	feed := &fakeMaterialFeed{payloads: map[game.Game]*hoyolab.MaterialResponse{
		game.GameGenshin: materialWith(2,
			hoyolab.Bonus{ExchangeCode: "ABC123", OfflineAt: 1756600000, Icon: "https://img.example/special.png"},
			hoyolab.Bonus{ExchangeCode: ""},
		),
	}}
	task, repo, _ := newOfficialPipeline(t, feed)

	task.Run(context.Background())

	// The real code is registered with the feed's expiry
	c, err := repo.GetCode(game.GameGenshin, "ABC123")
	require.NoError(t, err)
	assert.NotNil(t, c.DiscoveredAt)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, int64(1756600000), *c.ExpiresAt)
	require.NotNil(t, c.IsChina)
	assert.False(t, *c.IsChina)

	// The placeholder entry never becomes a code row
	_, err = repo.GetCode(game.GameGenshin, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// One of two expected codes is not a complete set
	prog, err := repo.GetProgram(game.GameGenshin, "5.0")
	require.NoError(t, err)
	assert.False(t, prog.Found)
	assert.Equal(t, []string{"ABC123"}, prog.Codes)

	_, err = task.PublishProgram(context.Background(), game.GameGenshin)
	require.ErrorContains(t, err, "no complete code set")
}

func TestRunMarksFoundOnCompleteSet(t *testing.T) {
	feed := &fakeMaterialFeed{payloads: map[game.Game]*hoyolab.MaterialResponse{
		game.GameGenshin: materialWith(2,
			hoyolab.Bonus{ExchangeCode: "ABC123", OfflineAt: 1756600000},
			hoyolab.Bonus{ExchangeCode: "DEF456", OfflineAt: 1756600000},
		),
	}}
	task, repo, _ := newOfficialPipeline(t, feed)

	task.Run(context.Background())
	// A second poll of the same payload changes nothing
	task.Run(context.Background())

	prog, err := repo.GetProgram(game.GameGenshin, "5.0")
	require.NoError(t, err)
	assert.True(t, prog.Found)
	assert.False(t, prog.Published)
	assert.Equal(t, []string{"ABC123", "DEF456"}, prog.Codes)
}

func TestPublishProgramAnnouncesOnce(t *testing.T) {
	feed := &fakeMaterialFeed{payloads: map[game.Game]*hoyolab.MaterialResponse{
		game.GameGenshin: materialWith(2,
			hoyolab.Bonus{ExchangeCode: "ABC123", OfflineAt: 1756600000},
			hoyolab.Bonus{ExchangeCode: "DEF456", OfflineAt: 1756600000},
		),
	}}
	task, repo, sender := newOfficialPipeline(t, feed)

	task.Run(context.Background())

	stats, err := task.PublishProgram(context.Background(), game.GameGenshin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)
	require.Len(t, sender.sent, 1)
	require.NotNil(t, sender.sent[0].embed)
	assert.Contains(t, sender.sent[0].embed.Description, "ABC123")
	assert.Contains(t, sender.sent[0].embed.Description, "DEF456")

	for _, code := range []string{"ABC123", "DEF456"} {
		c, err := repo.GetCode(game.GameGenshin, code)
		require.NoError(t, err)
		assert.True(t, c.Published, "code %s", code)
	}
	prog, err := repo.GetProgram(game.GameGenshin, "5.0")
	require.NoError(t, err)
	assert.True(t, prog.Published)

	_, err = task.PublishProgram(context.Background(), game.GameGenshin)
	require.ErrorContains(t, err, "already published")
}

func TestPublishProgramRequiresCompleteSet(t *testing.T) {
	feed := &fakeMaterialFeed{payloads: map[game.Game]*hoyolab.MaterialResponse{}}
	task, _, sender := newOfficialPipeline(t, feed)

	task.Run(context.Background())

	_, err := task.PublishProgram(context.Background(), game.GameGenshin)
	require.ErrorContains(t, err, "no complete code set")
	assert.Empty(t, sender.sent)
}

func TestPublishProgramStaysUnpublishedWhenGuildListFails(t *testing.T) {
	feed := &fakeMaterialFeed{payloads: map[game.Game]*hoyolab.MaterialResponse{
		game.GameGenshin: materialWith(1,
			hoyolab.Bonus{ExchangeCode: "ABC123", OfflineAt: 1756600000},
		),
	}}
	task, repo, sender := newOfficialPipeline(t, feed)
	good := task.publisher
	task.publisher = publish.NewPublisher(&brokenGuildStore{Repository: repo}, sender)

	task.Run(context.Background())

	_, err := task.PublishProgram(context.Background(), game.GameGenshin)
	require.Error(t, err)
	assert.Empty(t, sender.sent)
	prog, err := repo.GetProgram(game.GameGenshin, "5.0")
	require.NoError(t, err)
	assert.False(t, prog.Published)

	// Once the store recovers the same publication goes through
	task.publisher = good
	stats, err := task.PublishProgram(context.Background(), game.GameGenshin)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)
	require.Len(t, sender.sent, 1)
}
