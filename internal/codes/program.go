package codes

import (
	"fmt"
	"sync"
	"time"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// ProgramState is a view over a special program's monotonic flags plus the
// external stream schedule. It is recomputed fresh on every query, never
// stored.
type ProgramState int

const (
	StateDisabled ProgramState = iota
	StateNoSchedule
	StateScheduledNotLive
	StateSearching
	StateFound
	StatePublished
)

func (s ProgramState) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateNoSchedule:
		return "No Schedule"
	case StateScheduledNotLive:
		return "Not yet live"
	case StateSearching:
		return "Searching"
	case StateFound:
		return "Found"
	case StatePublished:
		return "Published"
	}
	return fmt.Sprintf("ProgramState(%d)", int(s))
}

// Schedule is the external broadcast configuration a state view depends on
type Schedule struct {
	Disabled   bool
	StreamTime int64 // unix seconds, 0 = none scheduled
}

// ProgramStore is the persistence surface the tracker needs
type ProgramStore interface {
	GetProgram(g game.Game, version string) (*storage.SpecialProgram, error)
	InsertProgram(g game.Game, version string) error
	SetProgramFound(g game.Game, version string, found bool) error
	SetProgramPublished(g game.Game, version string, published bool) error
	SetProgramCodes(g game.Game, version string, codes []string) error
	SetProgramImage(g game.Game, version, image string) error
}

// Program tracks the (game, version) aggregate of official stream codes.
// found and published flip false -> true exactly once and never regress.
type Program struct {
	mu       sync.Mutex
	store    ProgramStore
	registry *Registry
	rec      *storage.SpecialProgram
}

// LoadProgram returns the tracker for (game, version), creating the record
// lazily on first query. A lost create race falls back to the row the
// winner inserted.
func LoadProgram(store ProgramStore, registry *Registry, g game.Game, version string) (*Program, error) {
	rec, err := store.GetProgram(g, version)
	if err == storage.ErrNotFound {
		if insErr := store.InsertProgram(g, version); insErr != nil {
			rec, err = store.GetProgram(g, version)
			if err != nil {
				return nil, fmt.Errorf("failed to create program %s/%s: %w", g, version, insErr)
			}
		} else {
			rec = &storage.SpecialProgram{Game: g, Version: version}
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load program %s/%s: %w", g, version, err)
	}
	return &Program{store: store, registry: registry, rec: rec}, nil
}

type programKey struct {
	game    game.Game
	version string
}

// Programs hands out one shared Program per (game, version), so every
// caller in the process sees the same mutex and the same monotonic flags
// rather than independently loaded copies.
type Programs struct {
	store    ProgramStore
	registry *Registry

	mu    sync.Mutex
	progs map[programKey]*Program
}

// NewPrograms creates an empty program cache over the given store
func NewPrograms(store ProgramStore, registry *Registry) *Programs {
	return &Programs{
		store:    store,
		registry: registry,
		progs:    make(map[programKey]*Program),
	}
}

// Load returns the shared tracker for (game, version), loading it on
// first request
func (ps *Programs) Load(g game.Game, version string) (*Program, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	key := programKey{g, version}
	if p, ok := ps.progs[key]; ok {
		return p, nil
	}
	p, err := LoadProgram(ps.store, ps.registry, g, version)
	if err != nil {
		return nil, err
	}
	ps.progs[key] = p
	return p, nil
}

// Game returns the program's game
func (p *Program) Game() game.Game {
	return p.rec.Game
}

// Version returns the program's version string
func (p *Program) Version() string {
	return p.rec.Version
}

// Found reports whether all expected codes have been discovered
func (p *Program) Found() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Found
}

// Published reports whether the program's codes were announced
func (p *Program) Published() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Published
}

// Image returns the promo image URL, empty if none was set
func (p *Program) Image() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Image
}

// SetImage records the promo image URL on first sighting; later values
// are ignored.
func (p *Program) SetImage(image string) error {
	if image == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rec.Image != "" {
		return nil
	}
	if err := p.store.SetProgramImage(p.rec.Game, p.rec.Version, image); err != nil {
		return err
	}
	p.rec.Image = image
	return nil
}

// Codes returns the member code strings in insertion order
func (p *Program) Codes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.rec.Codes))
	copy(out, p.rec.Codes)
	return out
}

// State computes the enumerated view from the flags and the schedule,
// evaluated against wall clock at call time.
func (p *Program) State(sched Schedule, now time.Time) ProgramState {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case sched.Disabled:
		return StateDisabled
	case sched.StreamTime == 0:
		return StateNoSchedule
	case sched.StreamTime > now.Unix():
		return StateScheduledNotLive
	case p.rec.Published:
		return StatePublished
	case p.rec.Found:
		return StateFound
	}
	return StateSearching
}

// AddCode adds a code to the program, deduped by code string. Duplicates
// are a no-op so repeated polls never double-count toward the expected
// code total.
func (p *Program) AddCode(code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.rec.Codes {
		if c == code {
			return false, nil
		}
	}
	updated := append(append([]string{}, p.rec.Codes...), code)
	if err := p.store.SetProgramCodes(p.rec.Game, p.rec.Version, updated); err != nil {
		return false, err
	}
	p.rec.Codes = updated
	return true, nil
}

// MarkFound flips found to true when the member count matches the expected
// code count reported by the feed. Strict equality: a stale or short count
// keeps the program unfound. Idempotent once found.
func (p *Program) MarkFound(expectedCount int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rec.Found {
		return false, nil
	}
	if expectedCount <= 0 || len(p.rec.Codes) != expectedCount {
		return false, nil
	}
	for _, c := range p.rec.Codes {
		if c == "" {
			return false, nil
		}
	}
	if err := p.store.SetProgramFound(p.rec.Game, p.rec.Version, true); err != nil {
		return false, err
	}
	p.rec.Found = true
	return true, nil
}

// publishCascade returns the code writes required before the program's own
// published flag may flip. Pure data, no I/O.
func publishCascade(rec *storage.SpecialProgram) []string {
	if rec.Published {
		return nil
	}
	out := make([]string, len(rec.Codes))
	copy(out, rec.Codes)
	return out
}

// MarkPublished flips published to true exactly once and cascades the flag
// to every owned code. Code flags are written before the program flag, so a
// published program never owns an unpublished code.
func (p *Program) MarkPublished() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cascade := publishCascade(p.rec)
	if p.rec.Published {
		return nil
	}
	for _, code := range cascade {
		if err := p.registry.SetPublished(p.rec.Game, code, true); err != nil {
			return fmt.Errorf("failed to cascade published to %s/%s: %w", p.rec.Game, code, err)
		}
	}
	if err := p.store.SetProgramPublished(p.rec.Game, p.rec.Version, true); err != nil {
		return err
	}
	p.rec.Published = true
	return nil
}
