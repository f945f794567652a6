package zensync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRemoteTimeout = 10 * time.Second

type StoreOptions struct {
	// StateBackend wins over StateFile; with neither the cache is
	// process-memory only.
	StateBackend StateBackend
	StateFile    string

	// Defaults is the bundled remote config, overridable at runtime.
	Defaults RemoteConfig

	DebounceWindow time.Duration
	RemoteTimeout  time.Duration
	EventLimit     int

	// Remote short-circuits the config-driven client factory. Test hook.
	Remote RemoteStore

	// WatchState re-reads the remote config when another process edits the
	// state file. Only meaningful with StateFile.
	WatchState bool
}

// Store is the single entry point: a synchronous local cache fronted by a
// best-effort remote mirror. Local writes complete before any call returns;
// remote traffic is coalesced, deadline-bound, and never surfaces an error
// to the caller. Reads prefer the remote copy and fall back to the cache.
type Store struct {
	cache     *Cache
	config    *ConfigStore
	remotes   *RemoteManager
	scheduler *Scheduler
	events    *eventHub

	remoteOverride RemoteStore
	remoteTimeout  time.Duration
	watcher        *stateWatcher
	closeOnce      sync.Once
}

func Open(opts StoreOptions) (*Store, error) {
	backend := opts.StateBackend
	if backend == nil && opts.StateFile != "" {
		backend = NewJSONFileStateBackend(opts.StateFile)
	}
	cache := NewCache(backend)
	config := NewConfigStore(cache, opts.Defaults)

	timeout := opts.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	s := &Store{
		cache:          cache,
		config:         config,
		remotes:        NewRemoteManager(config),
		scheduler:      NewScheduler(opts.DebounceWindow),
		events:         newEventHub(opts.EventLimit),
		remoteOverride: opts.Remote,
		remoteTimeout:  timeout,
	}
	config.SetOnChange(s.remotes.Invalidate)

	if opts.WatchState && opts.StateFile != "" {
		watcher, err := watchStateFile(opts.StateFile, s.onStateFileChanged)
		if err != nil {
			return nil, err
		}
		s.watcher = watcher
	}
	return s, nil
}

func (s *Store) onStateFileChanged() {
	before := s.config.Load()
	s.cache.ReloadConfig()
	if s.config.Load() != before {
		log.Printf("zensync: remote config changed on disk, rebuilding client")
		s.remotes.Invalidate()
	}
}

// remote returns the client to mirror through, or nil when the remote tier
// is off.
func (s *Store) remote() RemoteStore {
	if s.remoteOverride != nil {
		return s.remoteOverride
	}
	return s.remotes.Get()
}

func (s *Store) remoteEnabled() bool {
	return s.remoteOverride != nil || s.config.IsConfigured()
}

func (s *Store) remoteCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.remoteTimeout)
}

// --- Notes ---

// GetNotes returns the remote copy when the remote tier is up and holds
// notes for the user, otherwise the local snapshot. A user with no snapshot
// at all is seeded with the starter content.
func (s *Store) GetNotes(ctx context.Context, email string) []Note {
	email = NormalizeEmail(email)
	if remote := s.remote(); remote != nil {
		notes, err := remote.FetchNotes(ctx, email)
		if err != nil {
			s.publishReadFailure(CollectionNotes, email, err)
		} else if len(notes) > 0 {
			return notes
		}
	}
	if notes := s.cache.Notes(email); notes != nil {
		return notes
	}
	seeded := DefaultNotes(time.Now())
	s.cache.SetNotes(email, seeded)
	return seeded
}

// SaveNote writes locally right away and schedules one coalesced remote
// upsert per note id. A missing id gets one assigned; the returned note
// carries the id and refreshed timestamp.
func (s *Store) SaveNote(ctx context.Context, email string, note Note) (Note, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Note{}, ErrInvalidInput
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.UpdatedAt = time.Now().UnixMilli()
	s.cache.UpsertNote(email, note)

	if s.remoteEnabled() {
		id := note.ID
		s.scheduler.Schedule(noteKey(email, id), func() error {
			// Re-read at fire time so the last write in the window wins.
			current, ok := s.cache.Note(email, id)
			if !ok {
				return nil
			}
			return s.mirrorWrite(CollectionNotes, email, id, func(ctx context.Context, remote RemoteStore) error {
				return remote.UpsertNote(ctx, email, current)
			})
		})
	}
	return note, nil
}

// DeleteNote removes the note locally, drops any pending remote upsert for
// it, then issues the remote delete immediately. A deferred upsert must
// never resurrect a deleted note. With the remote tier off the cache is
// authoritative and an unknown id is ErrNotFound; with a remote the delete
// still goes out, since the id may live only remotely.
func (s *Store) DeleteNote(ctx context.Context, email, id string) error {
	email = NormalizeEmail(email)
	if email == "" || id == "" {
		return ErrInvalidInput
	}
	removed := s.cache.RemoveNote(email, id)
	s.scheduler.Cancel(noteKey(email, id))

	if remote := s.remote(); remote != nil {
		if err := remote.DeleteNote(ctx, id); err != nil {
			s.publishDelete(CollectionNotes, email, id, err)
		} else {
			s.publishDelete(CollectionNotes, email, id, nil)
		}
		return nil
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// --- Folders ---

func (s *Store) GetFolders(ctx context.Context, email string) []Folder {
	email = NormalizeEmail(email)
	if remote := s.remote(); remote != nil {
		folders, err := remote.FetchFolders(ctx, email)
		if err != nil {
			s.publishReadFailure(CollectionFolders, email, err)
		} else if len(folders) > 0 {
			return folders
		}
	}
	if folders := s.cache.Folders(email); folders != nil {
		return folders
	}
	seeded := DefaultFolders()
	s.cache.SetFolders(email, seeded)
	return seeded
}

// SaveFolders replaces the user's folder list locally and schedules one
// coalesced remote upsert of the whole list.
func (s *Store) SaveFolders(ctx context.Context, email string, folders []Folder) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	s.cache.SetFolders(email, folders)
	if s.remoteEnabled() {
		s.scheduler.Schedule(collectionKey(email, CollectionFolders), func() error {
			current := s.cache.Folders(email)
			return s.mirrorWrite(CollectionFolders, email, "", func(ctx context.Context, remote RemoteStore) error {
				return remote.UpsertFolders(ctx, email, current)
			})
		})
	}
	return nil
}

// --- Inspiration ---

func (s *Store) GetInspiration(ctx context.Context, email string) []InspirationItem {
	email = NormalizeEmail(email)
	if remote := s.remote(); remote != nil {
		items, err := remote.FetchInspiration(ctx, email)
		if err != nil {
			s.publishReadFailure(CollectionInspiration, email, err)
		} else if len(items) > 0 {
			return items
		}
	}
	if items := s.cache.Inspiration(email); items != nil {
		return items
	}
	seeded := DefaultInspiration(time.Now())
	s.cache.SetInspiration(email, seeded)
	return seeded
}

func (s *Store) SaveInspiration(ctx context.Context, email string, items []InspirationItem) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].CreatedAt == 0 {
			items[i].CreatedAt = time.Now().UnixMilli()
		}
	}
	s.cache.SetInspiration(email, items)
	if s.remoteEnabled() {
		s.scheduler.Schedule(collectionKey(email, CollectionInspiration), func() error {
			current := s.cache.Inspiration(email)
			return s.mirrorWrite(CollectionInspiration, email, "", func(ctx context.Context, remote RemoteStore) error {
				return remote.UpsertInspiration(ctx, email, current)
			})
		})
	}
	return nil
}

func (s *Store) DeleteInspiration(ctx context.Context, email, id string) error {
	email = NormalizeEmail(email)
	if email == "" || id == "" {
		return ErrInvalidInput
	}
	removed := s.cache.RemoveInspiration(email, id)
	if remote := s.remote(); remote != nil {
		if err := remote.DeleteInspiration(ctx, id); err != nil {
			s.publishDelete(CollectionInspiration, email, id, err)
		} else {
			s.publishDelete(CollectionInspiration, email, id, nil)
		}
		return nil
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// --- Stats ---

// GetStats returns remote stats when available, else the local snapshot,
// else stats derived from the user's current notes. Persisted snapshots are
// repaired on the way out: the achievement catalog is merged in, an empty
// day-history rebuilt, and threshold badges re-checked, so stats written
// before a badge existed never reach the UI truncated. The full
// cross-collection reconcile stays behind RefreshStats.
func (s *Store) GetStats(ctx context.Context, email string) UserStats {
	email = NormalizeEmail(email)
	if remote := s.remote(); remote != nil {
		stats, err := remote.FetchStats(ctx, email)
		if err != nil {
			s.publishReadFailure(CollectionStats, email, err)
		} else if stats != nil {
			repairStats(stats, time.Now())
			return *stats
		}
	}
	if stats := s.cache.Stats(email); stats != nil {
		if repairStats(stats, time.Now()) {
			s.cache.SetStats(email, *stats)
		}
		return *stats
	}
	stats := DefaultStats(s.GetNotes(ctx, email), time.Now())
	s.cache.SetStats(email, stats)
	return stats
}

// RefreshStats reconciles the stored stats against the data that actually
// exists now: achievements are merged with the full catalog, never re-locked,
// and count-based badges re-check. The repaired stats are saved back.
func (s *Store) RefreshStats(ctx context.Context, email string) UserStats {
	email = NormalizeEmail(email)
	persisted := s.cache.Stats(email)

	monospace := false
	if settings := s.cache.EditorSettings(email); settings != nil {
		monospace = settings.FontFamily == "mono" || settings.FontFamily == "monospace"
	}
	stats := Reconcile(persisted, ReconcileInput{
		Notes:            s.GetNotes(ctx, email),
		FolderCount:      len(s.GetFolders(ctx, email)),
		InspirationCount: len(s.GetInspiration(ctx, email)),
		MonospaceFont:    monospace,
		Now:              time.Now(),
	})
	s.saveStatsInternal(email, stats)
	return stats
}

// RecordWords applies an incremental word-count delta to the user's stats
// and persists the result. Returns the updated stats.
func (s *Store) RecordWords(ctx context.Context, email string, delta int) (UserStats, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return UserStats{}, ErrInvalidInput
	}
	stats := s.GetStats(ctx, email)
	AddWords(&stats, delta, time.Now())
	s.saveStatsInternal(email, stats)
	return stats, nil
}

// SaveStats replaces the stats snapshot wholesale. Achievements already
// unlocked locally stay unlocked regardless of what the caller sends.
func (s *Store) SaveStats(ctx context.Context, email string, stats UserStats) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	if prev := s.cache.Stats(email); prev != nil {
		for _, a := range prev.Achievements {
			if a.Unlocked && !achievementUnlocked(stats, a.ID) {
				unlockAchievement(&stats, a.ID, time.UnixMilli(a.UnlockedAt))
				for i := range stats.Achievements {
					if stats.Achievements[i].ID == a.ID {
						stats.Achievements[i].UnlockedAt = a.UnlockedAt
					}
				}
			}
		}
	}
	s.saveStatsInternal(email, stats)
	return nil
}

func (s *Store) saveStatsInternal(email string, stats UserStats) {
	s.cache.SetStats(email, stats)
	if s.remoteEnabled() {
		s.scheduler.Schedule(collectionKey(email, CollectionStats), func() error {
			current := s.cache.Stats(email)
			if current == nil {
				return nil
			}
			return s.mirrorWrite(CollectionStats, email, "", func(ctx context.Context, remote RemoteStore) error {
				return remote.UpsertStats(ctx, email, *current)
			})
		})
	}
}

// --- Editor settings (local only, never mirrored) ---

func (s *Store) GetEditorSettings(email string) EditorSettings {
	email = NormalizeEmail(email)
	if settings := s.cache.EditorSettings(email); settings != nil {
		return *settings
	}
	return DefaultEditorSettings()
}

func (s *Store) SaveEditorSettings(email string, settings EditorSettings) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	s.cache.SetEditorSettings(email, settings)
	return nil
}

// --- Remote config ---

func (s *Store) Config() RemoteConfig {
	return s.config.Load()
}

func (s *Store) IsConfigured() bool {
	return s.config.IsConfigured()
}

// SaveConfig persists a remote-connection override and drops any cached
// client so the next remote call uses it.
func (s *Store) SaveConfig(rawURL, key string) {
	s.config.Save(rawURL, key)
}

// ClearConfig removes the override, falling back to the bundled defaults.
func (s *Store) ClearConfig() {
	s.config.Clear()
}

// TestConnection builds a fresh client from the effective config and probes
// it with a minimal read. The outcome is published as a sync event either
// way.
func (s *Store) TestConnection(ctx context.Context) error {
	var err error
	if s.remoteOverride != nil {
		err = s.remoteOverride.Ping(ctx)
	} else {
		err = s.remotes.TestConnection(ctx)
	}
	event := SyncEvent{Type: EventConnectionTest}
	if err != nil {
		event.Error = err.Error()
	}
	s.events.publish(event)
	return err
}

// --- Session / lifecycle ---

// EndSession cancels every pending coalesced write for the user. Local state
// is already durable; only the deferred remote mirrors are dropped.
func (s *Store) EndSession(email string) int {
	email = NormalizeEmail(email)
	if email == "" {
		return 0
	}
	return s.scheduler.CancelPrefix(email + "/")
}

func (s *Store) PendingWrites() int {
	return s.scheduler.Pending()
}

func (s *Store) Subscribe() (<-chan SyncEvent, func()) {
	return s.events.subscribe()
}

func (s *Store) RecentEvents() []SyncEvent {
	return s.events.recentEvents()
}

// Close stops the coalescer and the state watcher, closes any live remote
// client, and flushes the local snapshot one last time.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.scheduler.Shutdown()
		s.watcher.stop()
		s.remotes.Close()
		if s.remoteOverride != nil {
			if err := s.remoteOverride.Close(); err != nil {
				log.Printf("zensync: remote close failed: %v", err)
			}
		}
		s.cache.Flush()
		if closer, ok := s.cache.backend.(stateBackendCloser); ok {
			if err := closer.Close(); err != nil {
				log.Printf("zensync: state backend close failed: %v", err)
			}
		}
	})
}

// --- internals ---

func noteKey(email, id string) string {
	return email + "/" + CollectionNotes + "/" + id
}

func collectionKey(email, collection string) string {
	return email + "/" + collection
}

// mirrorWrite runs one remote upsert under the store's deadline and turns
// the outcome into a sync event. The error return feeds the scheduler's log;
// nothing reaches the original caller.
func (s *Store) mirrorWrite(collection, email, entityID string, op func(context.Context, RemoteStore) error) error {
	remote := s.remote()
	if remote == nil {
		return nil
	}
	ctx, cancel := s.remoteCtx()
	defer cancel()
	err := op(ctx, remote)
	event := SyncEvent{Collection: collection, UserEmail: email, EntityID: entityID}
	if err != nil {
		event.Type = EventRemoteWriteFailed
		event.Error = err.Error()
	} else {
		event.Type = EventRemoteWrite
	}
	s.events.publish(event)
	return err
}

func (s *Store) publishReadFailure(collection, email string, err error) {
	log.Printf("zensync: remote read for %s/%s failed, using local: %v", email, collection, err)
	s.events.publish(SyncEvent{
		Type:       EventRemoteReadFailed,
		Collection: collection,
		UserEmail:  email,
		Error:      err.Error(),
	})
}

func (s *Store) publishDelete(collection, email, id string, err error) {
	event := SyncEvent{Collection: collection, UserEmail: email, EntityID: id}
	if err != nil {
		log.Printf("zensync: remote delete for %s/%s/%s failed: %v", email, collection, id, err)
		event.Type = EventRemoteDeleteFailed
		event.Error = err.Error()
	} else {
		event.Type = EventRemoteDelete
	}
	s.events.publish(event)
}
