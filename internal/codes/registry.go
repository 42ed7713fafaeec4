package codes

import (
	"fmt"
	"sync"
	"time"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// maxCachedCodes bounds the registry's in-memory cache
const maxCachedCodes = 2048

// CodeStore is the persistence surface the registry needs
type CodeStore interface {
	GetCode(g game.Game, code string) (*storage.Code, error)
	InsertCode(g game.Game, code string) error
	SetCodeDiscoveredAt(g game.Game, code string, ts int64) error
	SetCodeExpiresAt(g game.Game, code string, ts int64) error
	SetCodeIsChina(g game.Game, code string, isChina bool) error
	SetCodePublished(g game.Game, code string, published bool) error
	SetCodeRedeemed(g game.Game, code string, redeemed bool) error
	SetCodeRewards(g game.Game, code string, rewards []storage.Reward) error
}

type codeKey struct {
	game game.Game
	code string
}

// Registry is the store of known redemption codes, deduped by (game, code).
// All writes for a key go through the registry mutex, so concurrent poller
// runs cannot interleave updates to the same code. Codes are never deleted.
type Registry struct {
	store CodeStore

	mu    sync.Mutex
	cache map[codeKey]*storage.Code
}

// NewRegistry creates a registry backed by the given store
func NewRegistry(store CodeStore) *Registry {
	return &Registry{
		store: store,
		cache: make(map[codeKey]*storage.Code),
	}
}

// GetOrCreate returns the code entry, creating and persisting a blank one on
// first sighting. The second return value reports whether the entry was
// created by this call, so callers can log first discoveries.
func (r *Registry) GetOrCreate(g game.Game, code string) (*storage.Code, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(g, code)
}

func (r *Registry) getOrCreateLocked(g game.Game, code string) (*storage.Code, bool, error) {
	key := codeKey{g, code}
	if c, ok := r.cache[key]; ok {
		return c, false, nil
	}

	c, err := r.store.GetCode(g, code)
	if err == nil {
		r.cacheLocked(key, c)
		return c, false, nil
	}
	if err != storage.ErrNotFound {
		return nil, false, fmt.Errorf("failed to load code %s/%s: %w", g, code, err)
	}

	if err := r.store.InsertCode(g, code); err != nil {
		return nil, false, fmt.Errorf("failed to create code %s/%s: %w", g, code, err)
	}
	c = &storage.Code{Game: g, Code: code, Rewards: []storage.Reward{}}
	r.cacheLocked(key, c)
	return c, true, nil
}

// SetDiscoveredAt records the discovery timestamp. The write is
// set-if-absent: once a code has a discovery time it never changes.
func (r *Registry) SetDiscoveredAt(g game.Game, code string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	if c.DiscoveredAt != nil {
		return nil
	}
	ts := t.Unix()
	if err := r.store.SetCodeDiscoveredAt(g, code, ts); err != nil {
		return err
	}
	c.DiscoveredAt = &ts
	return nil
}

// SetExpiresAt updates the expiry timestamp
func (r *Registry) SetExpiresAt(g game.Game, code string, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	if err := r.store.SetCodeExpiresAt(g, code, ts); err != nil {
		return err
	}
	c.ExpiresAt = &ts
	return nil
}

// SetIsChina updates the region flag
func (r *Registry) SetIsChina(g game.Game, code string, isChina bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	if err := r.store.SetCodeIsChina(g, code, isChina); err != nil {
		return err
	}
	c.IsChina = &isChina
	return nil
}

// SetPublished updates the published flag
func (r *Registry) SetPublished(g game.Game, code string, published bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	if err := r.store.SetCodePublished(g, code, published); err != nil {
		return err
	}
	c.Published = published
	return nil
}

// SetRedeemed updates the redeemed marker
func (r *Registry) SetRedeemed(g game.Game, code string, redeemed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	if err := r.store.SetCodeRedeemed(g, code, redeemed); err != nil {
		return err
	}
	c.Redeemed = &redeemed
	return nil
}

// MergeReward adds amount to an existing reward of the same name or appends
// a new reward line. The registry dedupes by reward name only; callers must
// report each observed (code, reward) pair at most once per discovery event.
func (r *Registry) MergeReward(g game.Game, code, name string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, _, err := r.getOrCreateLocked(g, code)
	if err != nil {
		return err
	}
	merged := mergeReward(c.Rewards, name, amount)
	if err := r.store.SetCodeRewards(g, code, merged); err != nil {
		return err
	}
	c.Rewards = merged
	return nil
}

// Invalidate drops a code from the in-memory cache
func (r *Registry) Invalidate(g game.Game, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, codeKey{g, code})
}

// cacheLocked inserts into the cache, evicting an arbitrary entry when full.
// Entries are plain reloads of persisted rows, so eviction order is a
// non-issue; the bound only keeps memory flat over years of codes.
func (r *Registry) cacheLocked(key codeKey, c *storage.Code) {
	if len(r.cache) >= maxCachedCodes {
		for k := range r.cache {
			delete(r.cache, k)
			break
		}
	}
	r.cache[key] = c
}

// mergeReward merges (name, amount) into a reward list by name
func mergeReward(rewards []storage.Reward, name string, amount int) []storage.Reward {
	out := make([]storage.Reward, len(rewards))
	copy(out, rewards)
	for i := range out {
		if out[i].Name == name {
			out[i].Amount += amount
			return out
		}
	}
	return append(out, storage.Reward{Name: name, Amount: amount})
}

// MergeRewardLists folds several codes' rewards into one summary list,
// merging amounts by reward name. Used for batch announcements.
func MergeRewardLists(codes []*storage.Code) []storage.Reward {
	var out []storage.Reward
	for _, c := range codes {
		for _, rw := range c.Rewards {
			out = mergeReward(out, rw.Name, rw.Amount)
		}
	}
	return out
}
