package codes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// fakeCodeStore is an in-memory CodeStore for tests
type fakeCodeStore struct {
	codes   map[string]*storage.Code
	inserts int
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]*storage.Code)}
}

func (s *fakeCodeStore) key(g game.Game, code string) string {
	return string(g) + "/" + code
}

func (s *fakeCodeStore) GetCode(g game.Game, code string) (*storage.Code, error) {
	c, ok := s.codes[s.key(g, code)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCodeStore) InsertCode(g game.Game, code string) error {
	s.inserts++
	s.codes[s.key(g, code)] = &storage.Code{Game: g, Code: code}
	return nil
}

func (s *fakeCodeStore) SetCodeDiscoveredAt(g game.Game, code string, ts int64) error {
	c := s.codes[s.key(g, code)]
	if c.DiscoveredAt == nil {
		c.DiscoveredAt = &ts
	}
	return nil
}

func (s *fakeCodeStore) SetCodeExpiresAt(g game.Game, code string, ts int64) error {
	s.codes[s.key(g, code)].ExpiresAt = &ts
	return nil
}

func (s *fakeCodeStore) SetCodeIsChina(g game.Game, code string, isChina bool) error {
	s.codes[s.key(g, code)].IsChina = &isChina
	return nil
}

func (s *fakeCodeStore) SetCodePublished(g game.Game, code string, published bool) error {
	s.codes[s.key(g, code)].Published = published
	return nil
}

func (s *fakeCodeStore) SetCodeRedeemed(g game.Game, code string, redeemed bool) error {
	s.codes[s.key(g, code)].Redeemed = &redeemed
	return nil
}

func (s *fakeCodeStore) SetCodeRewards(g game.Game, code string, rewards []storage.Reward) error {
	s.codes[s.key(g, code)].Rewards = rewards
	return nil
}

func TestGetOrCreateDedupes(t *testing.T) {
	store := newFakeCodeStore()
	r := NewRegistry(store)

	c, created, err := r.GetOrCreate(game.GameGenshin, "GENSHINGIFT")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "GENSHINGIFT", c.Code)

	again, created, err := r.GetOrCreate(game.GameGenshin, "GENSHINGIFT")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, c, again)
	assert.Equal(t, 1, store.inserts)
}

func TestSameCodeDifferentGames(t *testing.T) {
	r := NewRegistry(newFakeCodeStore())

	_, created, err := r.GetOrCreate(game.GameGenshin, "STARRAILGIFT")
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = r.GetOrCreate(game.GameStarRail, "STARRAILGIFT")
	require.NoError(t, err)
	assert.True(t, created, "same code string under a different game is a distinct entry")
}

func TestDiscoveredAtWriteOnce(t *testing.T) {
	store := newFakeCodeStore()
	r := NewRegistry(store)

	first := time.Unix(1700000000, 0)
	require.NoError(t, r.SetDiscoveredAt(game.GameZZZ, "ZZZFREE100", first))
	require.NoError(t, r.SetDiscoveredAt(game.GameZZZ, "ZZZFREE100", first.Add(48*time.Hour)))

	c, _, err := r.GetOrCreate(game.GameZZZ, "ZZZFREE100")
	require.NoError(t, err)
	require.NotNil(t, c.DiscoveredAt)
	assert.Equal(t, first.Unix(), *c.DiscoveredAt)
}

func TestDiscoveredAtWriteOnceAfterInvalidate(t *testing.T) {
	store := newFakeCodeStore()
	r := NewRegistry(store)

	first := time.Unix(1700000000, 0)
	require.NoError(t, r.SetDiscoveredAt(game.GameZZZ, "ZZZFREE100", first))

	// A cache miss must not reopen the write window
	r.Invalidate(game.GameZZZ, "ZZZFREE100")
	require.NoError(t, r.SetDiscoveredAt(game.GameZZZ, "ZZZFREE100", first.Add(time.Hour)))

	c, _, err := r.GetOrCreate(game.GameZZZ, "ZZZFREE100")
	require.NoError(t, err)
	assert.Equal(t, first.Unix(), *c.DiscoveredAt)
}

func TestMergeRewardAccumulates(t *testing.T) {
	r := NewRegistry(newFakeCodeStore())
	g := game.GameGenshin

	require.NoError(t, r.MergeReward(g, "ABCD1234", "Primogem", 3))
	require.NoError(t, r.MergeReward(g, "ABCD1234", "Primogem", 5))
	require.NoError(t, r.MergeReward(g, "ABCD1234", "Primogem", 2))
	require.NoError(t, r.MergeReward(g, "ABCD1234", "Mora", 10000))

	c, _, err := r.GetOrCreate(g, "ABCD1234")
	require.NoError(t, err)
	require.Len(t, c.Rewards, 2)
	assert.Equal(t, storage.Reward{Name: "Primogem", Amount: 10}, c.Rewards[0])
	assert.Equal(t, storage.Reward{Name: "Mora", Amount: 10000}, c.Rewards[1])
}

func TestMergeRewardLists(t *testing.T) {
	codes := []*storage.Code{
		{Rewards: []storage.Reward{{Name: "Primogem", Amount: 60}, {Name: "Mora", Amount: 10000}}},
		{Rewards: []storage.Reward{{Name: "Primogem", Amount: 40}}},
		{Rewards: nil},
	}

	merged := MergeRewardLists(codes)
	require.Len(t, merged, 2)
	assert.Equal(t, storage.Reward{Name: "Primogem", Amount: 100}, merged[0])
	assert.Equal(t, storage.Reward{Name: "Mora", Amount: 10000}, merged[1])
}
