package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wangyi68/zenox/internal/game"
)

// StreamSchedule holds the per-game special-program broadcast settings.
// Channel and Message identify the status message the official poller edits.
type StreamSchedule struct {
	ChannelID  string `json:"channel"`
	MessageID  string `json:"message"`
	StreamTime int64  `json:"stream_time"` // unix seconds, 0 = no stream scheduled
	Version    string `json:"version"`
	Disabled   bool   `json:"disabled"`
}

// ScheduleFile is the JSON-backed store of stream schedules for all games.
// Writes rewrite the whole file.
type ScheduleFile struct {
	mu    sync.RWMutex
	path  string
	games map[game.Game]StreamSchedule
}

// LoadSchedule reads the schedule file, creating a default one if missing
func LoadSchedule(path string) (*ScheduleFile, error) {
	s := &ScheduleFile{
		path:  path,
		games: make(map[game.Game]StreamSchedule),
	}
	for _, g := range game.All() {
		s.games[g] = StreamSchedule{Disabled: true}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.flush(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}

	var raw map[game.Game]StreamSchedule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}
	for g, cfg := range raw {
		if g.Valid() {
			s.games[g] = cfg
		}
	}
	return s, nil
}

// Get returns the schedule for one game
func (s *ScheduleFile) Get(g game.Game) StreamSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[g]
}

// Set replaces the schedule for one game and rewrites the file
func (s *ScheduleFile) Set(g game.Game, cfg StreamSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g] = cfg
	return s.flush()
}

// flush writes the current schedules to disk; callers hold the lock
func (s *ScheduleFile) flush() error {
	data, err := json.MarshalIndent(s.games, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schedule file: %w", err)
	}
	return nil
}
