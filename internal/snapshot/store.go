// Package snapshot holds the last observed invite state of every guild.
//
// The table is only ever swapped one whole guild at a time. Callers that read a
// snapshot, talk to the platform and write a new one back must do so inside the
// guild's exclusive section (Lock), otherwise two concurrent joins may diff against
// the same stale state.
package snapshot

import (
	"invitetrack/entity"
	"sort"
	"sync"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]entity.Snapshot

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		tables: make(map[string]entity.Snapshot),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Get returns a copy of the guild's snapshot, or an empty one if the guild is unknown.
func (s *Store) Get(guildID string) entity.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.tables[guildID]
	if !ok {
		return entity.Snapshot{}
	}
	return snap.Clone()
}

// Replace swaps the whole snapshot of a guild. The store keeps its own copy.
func (s *Store) Replace(guildID string, snap entity.Snapshot) {
	c := snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[guildID] = c
}

func (s *Store) Has(guildID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[guildID]
	return ok
}

// Forget drops the guild's snapshot, e.g. after the bot was removed from it.
func (s *Store) Forget(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, guildID)
}

// Communities returns the ids of all guilds with a snapshot, sorted.
func (s *Store) Communities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lock enters the exclusive section of one guild and returns the function that
// leaves it. Sections of different guilds never block each other.
func (s *Store) Lock(guildID string) (unlock func()) {
	s.locksMu.Lock()
	m, ok := s.locks[guildID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[guildID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}
