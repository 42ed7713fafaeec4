package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// fakeGuildStore holds per-guild configs for one game
type fakeGuildStore struct {
	order   []string
	configs map[string]*storage.GameConfig
}

func newFakeGuildStore() *fakeGuildStore {
	return &fakeGuildStore{configs: make(map[string]*storage.GameConfig)}
}

func (s *fakeGuildStore) add(guildID string, cfg storage.GameConfig) {
	cfg.GuildID = guildID
	s.order = append(s.order, guildID)
	s.configs[guildID] = &cfg
}

func (s *fakeGuildStore) ListGuildIDs() ([]string, error) {
	return append([]string{}, s.order...), nil
}

func (s *fakeGuildStore) GetGameConfig(guildID string, g game.Game) (*storage.GameConfig, error) {
	cfg, ok := s.configs[guildID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *fakeGuildStore) SetGameConfigField(guildID string, g game.Game, field storage.ConfigField, value any) error {
	cfg := s.configs[guildID]
	switch field {
	case storage.FieldChannel:
		cfg.ChannelID = value.(string)
	case storage.FieldRole:
		cfg.RoleID = value.(string)
	}
	return nil
}

type sentMessage struct {
	channelID string
	content   string
}

// fakeSender records sends and fails configured channels
type fakeSender struct {
	sent      []sentMessage
	failWith  map[string]error
	liveRoles map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failWith:  make(map[string]error),
		liveRoles: make(map[string]bool),
	}
}

func (s *fakeSender) Send(ctx context.Context, channelID, content string, embed *discordgo.MessageEmbed) error {
	if err, ok := s.failWith[channelID]; ok {
		return err
	}
	s.sent = append(s.sent, sentMessage{channelID: channelID, content: content})
	return nil
}

func (s *fakeSender) RoleExists(guildID, roleID string) bool {
	return s.liveRoles[guildID+"/"+roleID]
}

func TestFanoutPartialFailure(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", AllCodes: true})
	guilds.add("guild-b", storage.GameConfig{ChannelID: "chan-b", AllCodes: true})
	guilds.add("guild-c", storage.GameConfig{ChannelID: "chan-c", AllCodes: true})

	sender := newFakeSender()
	sender.failWith["chan-b"] = errors.New("http 500")

	stats, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "chan-a", sender.sent[0].channelID)
	assert.Equal(t, "chan-c", sender.sent[1].channelID)
}

// failingGuildStore cannot even list guilds
type failingGuildStore struct {
	*fakeGuildStore
}

func (s *failingGuildStore) ListGuildIDs() ([]string, error) {
	return nil, errors.New("database is locked")
}

func TestFanoutListError(t *testing.T) {
	inner := newFakeGuildStore()
	inner.add("guild-a", storage.GameConfig{ChannelID: "chan-a", AllCodes: true})
	guilds := &failingGuildStore{fakeGuildStore: inner}

	sender := newFakeSender()
	stats, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)

	require.Error(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, sender.sent)
}

func TestFanoutNoChannel(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{AllCodes: true})

	stats, err := NewPublisher(guilds, newFakeSender()).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{NoChannel: 1}, stats)
}

func TestFanoutKindOptIn(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", AllCodes: true, StreamCodes: false})

	sender := newFakeSender()
	p := NewPublisher(guilds, sender)

	// Opted out of stream codes: skipped without counting in any tally
	stats, err := p.Fanout(context.Background(), game.GameGenshin, KindStream, "Stream codes!", nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, sender.sent)

	stats, err = p.Fanout(context.Background(), game.GameGenshin, KindWiki, "Wiki codes!", nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Success: 1}, stats)
}

func TestFanoutRoleMention(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", RoleID: "role-1", AllCodes: true})

	sender := newFakeSender()
	sender.liveRoles["guild-a/role-1"] = true

	stats, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{Success: 1}, stats)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "New codes! <@&role-1>", sender.sent[0].content)
}

func TestFanoutStaleRoleSelfHeals(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", RoleID: "role-gone", AllCodes: true})

	sender := newFakeSender()

	stats, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	// The message still goes out, without the mention, and the stale role
	// reference is cleared
	assert.Equal(t, Stats{Success: 1, NoRole: 1}, stats)
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].content, "role-gone")
	assert.Contains(t, sender.sent[0].content, "no longer exists")
	assert.Equal(t, "", guilds.configs["guild-a"].RoleID)
}

func TestFanoutForbiddenClearsChannel(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", AllCodes: true})

	sender := newFakeSender()
	sender.failWith["chan-a"] = fmt.Errorf("missing access: %w", ErrForbidden)

	stats, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{Forbidden: 1}, stats)
	assert.Equal(t, "", guilds.configs["guild-a"].ChannelID)
}

func TestFanoutEveryoneMention(t *testing.T) {
	guilds := newFakeGuildStore()
	guilds.add("guild-a", storage.GameConfig{ChannelID: "chan-a", EveryonePing: true, AllCodes: true})

	sender := newFakeSender()
	_, err := NewPublisher(guilds, sender).Fanout(context.Background(), game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasSuffix(sender.sent[0].content, "@everyone"))
}

func TestFanoutCancelledContext(t *testing.T) {
	guilds := newFakeGuildStore()
	for i := 0; i < 5; i++ {
		guilds.add(fmt.Sprintf("guild-%d", i), storage.GameConfig{ChannelID: fmt.Sprintf("chan-%d", i), AllCodes: true})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := newFakeSender()
	stats, err := NewPublisher(guilds, sender).Fanout(ctx, game.GameGenshin, KindWiki, "New codes!", nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, sender.sent)
}

func TestStatsMap(t *testing.T) {
	s := Stats{Success: 3, Failed: 1, Forbidden: 2, NoChannel: 4, NoRole: 5}
	assert.Equal(t, map[string]int{
		"success":    3,
		"failed":     1,
		"forbidden":  2,
		"no_channel": 4,
		"no_role":    5,
	}, s.Map())
}
