package zensync

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheDistinguishesAbsentFromEmpty(t *testing.T) {
	cache := NewCache(NewInMemoryStateBackend())
	if cache.Notes("a@example.com") != nil {
		t.Fatalf("never-written collection must read as nil")
	}
	cache.SetNotes("a@example.com", []Note{})
	if notes := cache.Notes("a@example.com"); notes == nil || len(notes) != 0 {
		t.Fatalf("cleared collection must read as empty, not absent: %v", notes)
	}
}

func TestCacheUpsertNotePrependsNew(t *testing.T) {
	cache := NewCache(nil)
	cache.UpsertNote("a@example.com", Note{ID: "n1", Title: "first"})
	cache.UpsertNote("a@example.com", Note{ID: "n2", Title: "second"})
	notes := cache.Notes("a@example.com")
	if len(notes) != 2 || notes[0].ID != "n2" {
		t.Fatalf("new notes go to the front, got %+v", notes)
	}

	cache.UpsertNote("a@example.com", Note{ID: "n1", Title: "edited"})
	notes = cache.Notes("a@example.com")
	if len(notes) != 2 {
		t.Fatalf("upsert of existing id must not grow the list, got %d", len(notes))
	}
	if notes[1].Title != "edited" {
		t.Fatalf("existing note should be replaced in place, got %+v", notes[1])
	}
}

func TestCacheRemoveNote(t *testing.T) {
	cache := NewCache(nil)
	cache.SetNotes("a@example.com", []Note{{ID: "n1"}, {ID: "n2"}})
	cache.RemoveNote("a@example.com", "n1")
	notes := cache.Notes("a@example.com")
	if len(notes) != 1 || notes[0].ID != "n2" {
		t.Fatalf("expected only n2 left, got %+v", notes)
	}
}

func TestCacheNormalizesEmail(t *testing.T) {
	cache := NewCache(nil)
	cache.SetFolders("  A@Example.COM ", []Folder{{ID: "f1"}})
	if folders := cache.Folders("a@example.com"); len(folders) != 1 {
		t.Fatalf("email partitions must be case-insensitive, got %+v", folders)
	}
}

func TestCacheSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	cache := NewCache(NewJSONFileStateBackend(path))
	cache.SetNotes("a@example.com", []Note{{ID: "n1", Title: "kept"}})
	cache.SetStats("a@example.com", UserStats{TotalWordsWritten: 42})
	cache.SetConfig(&RemoteConfig{URL: "https://db.example.com", Key: "k"})

	reloaded := NewCache(NewJSONFileStateBackend(path))
	notes := reloaded.Notes("a@example.com")
	if len(notes) != 1 || notes[0].Title != "kept" {
		t.Fatalf("notes must survive a process restart, got %+v", notes)
	}
	stats := reloaded.Stats("a@example.com")
	if stats == nil || stats.TotalWordsWritten != 42 {
		t.Fatalf("stats must survive a process restart, got %+v", stats)
	}
	cfg := reloaded.Config()
	if cfg == nil || cfg.URL != "https://db.example.com" {
		t.Fatalf("config override must survive a process restart, got %+v", cfg)
	}
}

func TestCacheStatsReturnsClone(t *testing.T) {
	cache := NewCache(nil)
	cache.SetStats("a@example.com", UserStats{
		Achievements: []Achievement{{ID: "zen_master"}},
		DailyHistory: []DailyStat{{Date: "2026-03-10", WordCount: 1}},
	})
	first := cache.Stats("a@example.com")
	first.Achievements[0].Unlocked = true
	first.DailyHistory[0].WordCount = 999

	second := cache.Stats("a@example.com")
	if second.Achievements[0].Unlocked {
		t.Fatalf("mutating a returned snapshot must not touch the cache")
	}
	if second.DailyHistory[0].WordCount != 1 {
		t.Fatalf("mutating returned history must not touch the cache")
	}
}

func TestCacheConfigClear(t *testing.T) {
	cache := NewCache(NewInMemoryStateBackend())
	cache.SetConfig(&RemoteConfig{URL: "https://db.example.com", Key: "k"})
	cache.SetConfig(nil)
	if cache.Config() != nil {
		t.Fatalf("cleared config must read as nil")
	}
}

func TestCacheUnreadableStateStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	backend := NewJSONFileStateBackend(path)
	if err := backend.Save(&persistedState{Users: map[string]*userState{}}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	// Corrupt it.
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}
	cache := NewCache(backend)
	if cache.Notes("a@example.com") != nil {
		t.Fatalf("corrupt state must load as empty")
	}
	cache.SetNotes("a@example.com", []Note{{ID: "n1"}})
	if len(cache.Notes("a@example.com")) != 1 {
		t.Fatalf("cache must stay writable after a bad load")
	}
}
