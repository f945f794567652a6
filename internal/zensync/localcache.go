package zensync

import (
	"log"
	"sync"
)

// Cache is the synchronous local tier. Every mutation lands here first and is
// flushed through the state backend before the call returns; remote
// availability never gates it. Lookups on a user that was never written
// return nil so callers can seed defaults.
//
// Cache calls never fail outward: a backend that cannot load is treated as
// empty, a backend that cannot save is logged and the in-memory copy stays
// authoritative for the life of the process.
type Cache struct {
	mu      sync.Mutex
	backend StateBackend
	state   *persistedState
}

func NewCache(backend StateBackend) *Cache {
	c := &Cache{backend: backend, state: &persistedState{Users: map[string]*userState{}}}
	if backend == nil {
		return c
	}
	snapshot, err := backend.Load()
	if err != nil {
		log.Printf("zensync: local state unreadable, starting empty: %v", err)
		return c
	}
	if snapshot != nil {
		if snapshot.Users == nil {
			snapshot.Users = map[string]*userState{}
		}
		c.state = snapshot
	}
	return c
}

func (c *Cache) userLocked(email string) *userState {
	email = NormalizeEmail(email)
	user := c.state.Users[email]
	if user == nil {
		user = &userState{}
		c.state.Users[email] = user
	}
	return user
}

func (c *Cache) flushLocked() {
	if c.backend == nil {
		return
	}
	if err := c.backend.Save(c.state); err != nil {
		log.Printf("zensync: local state flush failed: %v", err)
	}
}

func (c *Cache) Notes(email string) []Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil || user.Notes == nil {
		return nil
	}
	return append([]Note(nil), user.Notes...)
}

func (c *Cache) Note(email, id string) (Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil {
		return Note{}, false
	}
	for _, note := range user.Notes {
		if note.ID == id {
			return note, true
		}
	}
	return Note{}, false
}

func (c *Cache) SetNotes(email string, notes []Note) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userLocked(email).Notes = append([]Note{}, notes...)
	c.flushLocked()
}

// UpsertNote merges one note into the snapshot by id so a single-note edit
// cannot clobber unrelated notes. New notes go to the front, matching the
// most-recent-first ordering the rest of the app assumes.
func (c *Cache) UpsertNote(email string, note Note) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.userLocked(email)
	for i := range user.Notes {
		if user.Notes[i].ID == note.ID {
			user.Notes[i] = note
			c.flushLocked()
			return
		}
	}
	user.Notes = append([]Note{note}, user.Notes...)
	c.flushLocked()
}

// RemoveNote reports whether the id was actually present.
func (c *Cache) RemoveNote(email, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.userLocked(email)
	if user.Notes == nil {
		return false
	}
	kept := user.Notes[:0]
	removed := false
	for _, note := range user.Notes {
		if note.ID == id {
			removed = true
			continue
		}
		kept = append(kept, note)
	}
	user.Notes = kept
	c.flushLocked()
	return removed
}

func (c *Cache) Folders(email string) []Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil || user.Folders == nil {
		return nil
	}
	return append([]Folder(nil), user.Folders...)
}

func (c *Cache) SetFolders(email string, folders []Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userLocked(email).Folders = append([]Folder{}, folders...)
	c.flushLocked()
}

func (c *Cache) Inspiration(email string) []InspirationItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil || user.Inspiration == nil {
		return nil
	}
	return append([]InspirationItem(nil), user.Inspiration...)
}

func (c *Cache) SetInspiration(email string, items []InspirationItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userLocked(email).Inspiration = append([]InspirationItem{}, items...)
	c.flushLocked()
}

func (c *Cache) RemoveInspiration(email, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.userLocked(email)
	if user.Inspiration == nil {
		return false
	}
	kept := user.Inspiration[:0]
	removed := false
	for _, item := range user.Inspiration {
		if item.ID == id {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	user.Inspiration = kept
	c.flushLocked()
	return removed
}

func (c *Cache) Stats(email string) *UserStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil || user.Stats == nil {
		return nil
	}
	clone := *user.Stats
	clone.DailyHistory = append([]DailyStat(nil), user.Stats.DailyHistory...)
	clone.Achievements = append([]Achievement(nil), user.Stats.Achievements...)
	return &clone
}

func (c *Cache) SetStats(email string, stats UserStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := stats
	clone.DailyHistory = append([]DailyStat(nil), stats.DailyHistory...)
	clone.Achievements = append([]Achievement(nil), stats.Achievements...)
	c.userLocked(email).Stats = &clone
	c.flushLocked()
}

func (c *Cache) EditorSettings(email string) *EditorSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.Users[NormalizeEmail(email)]
	if user == nil || user.EditorSettings == nil {
		return nil
	}
	clone := *user.EditorSettings
	return &clone
}

func (c *Cache) SetEditorSettings(email string, settings EditorSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := settings
	c.userLocked(email).EditorSettings = &clone
	c.flushLocked()
}

func (c *Cache) Config() *RemoteConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Config == nil {
		return nil
	}
	clone := *c.state.Config
	return &clone
}

// SetConfig persists the override; nil clears it.
func (c *Cache) SetConfig(config *RemoteConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if config == nil {
		c.state.Config = nil
	} else {
		clone := *config
		c.state.Config = &clone
	}
	c.flushLocked()
}

// ReloadConfig re-reads only the Config section from the backend, for when
// another process has edited the state file. Entity snapshots are left alone:
// the in-memory copy is authoritative for those while this process runs.
func (c *Cache) ReloadConfig() {
	if c.backend == nil {
		return
	}
	snapshot, err := c.backend.Load()
	if err != nil {
		log.Printf("zensync: config reload failed: %v", err)
		return
	}
	c.mu.Lock()
	if snapshot == nil {
		c.state.Config = nil
	} else {
		c.state.Config = snapshot.Config
	}
	c.mu.Unlock()
}

// Flush forces a synchronous write of the current snapshot.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}
