package zensync

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "github.com/lib/pq"
)

// PostgresRemoteStore mirrors entities straight into SQL tables matching the
// remote schema. Tables are created on first use so a fresh database works
// without migrations.
type PostgresRemoteStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresRemoteStore(dsn string) (*PostgresRemoteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidConfig
	}
	return &PostgresRemoteStore{dsn: dsn, openDB: sql.Open}, nil
}

var postgresRemoteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		user_email TEXT NOT NULL,
		folder_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL DEFAULT 0,
		target_word_count BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS notes_user_email_idx ON notes (user_email)`,
	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		user_email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS folders_user_email_idx ON folders (user_email)`,
	`CREATE TABLE IF NOT EXISTS inspiration (
		id TEXT PRIMARY KEY,
		user_email TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		snippet TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL DEFAULT 0,
		x DOUBLE PRECISION NOT NULL DEFAULT 0,
		y DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS inspiration_user_email_idx ON inspiration (user_email)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
		user_email TEXT PRIMARY KEY,
		stats_json TEXT NOT NULL
	)`,
}

func (r *PostgresRemoteStore) ensureReady() error {
	if r == nil {
		return ErrInvalidInput
	}
	r.initOnce.Do(func() {
		db, err := r.openDB("postgres", r.dsn)
		if err != nil {
			r.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		for _, stmt := range postgresRemoteSchema {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				r.initErr = err
				return
			}
		}
		r.db = db
	})
	return r.initErr
}

func (r *PostgresRemoteStore) FetchNotes(ctx context.Context, email string) ([]Note, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, folder_id, title, content, updated_at, target_word_count
		FROM notes WHERE user_email = $1`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var note Note
		var target sql.NullInt64
		if err := rows.Scan(&note.ID, &note.FolderID, &note.Title, &note.Content, &note.UpdatedAt, &target); err != nil {
			return nil, err
		}
		if target.Valid {
			note.TargetWordCount = int(target.Int64)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *PostgresRemoteStore) UpsertNote(ctx context.Context, email string, note Note) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	var target sql.NullInt64
	if note.TargetWordCount > 0 {
		target = sql.NullInt64{Int64: int64(note.TargetWordCount), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notes (id, user_email, folder_id, title, content, updated_at, target_word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_email = EXCLUDED.user_email,
			folder_id = EXCLUDED.folder_id,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			target_word_count = EXCLUDED.target_word_count`,
		note.ID, email, note.FolderID, note.Title, note.Content, note.UpdatedAt, target)
	return err
}

func (r *PostgresRemoteStore) DeleteNote(ctx context.Context, id string) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	return err
}

func (r *PostgresRemoteStore) FetchFolders(ctx context.Context, email string) ([]Folder, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, color FROM folders WHERE user_email = $1`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var folder Folder
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.Color); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return folders, nil
}

func (r *PostgresRemoteStore) UpsertFolders(ctx context.Context, email string, folders []Folder) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	for _, folder := range folders {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO folders (id, user_email, name, color)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				user_email = EXCLUDED.user_email,
				name = EXCLUDED.name,
				color = EXCLUDED.color`,
			folder.ID, email, folder.Name, folder.Color)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRemoteStore) FetchInspiration(ctx context.Context, email string) ([]InspirationItem, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, content, title, snippet, created_at, x, y
		FROM inspiration WHERE user_email = $1`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InspirationItem
	for rows.Next() {
		var item InspirationItem
		var kind string
		if err := rows.Scan(&item.ID, &kind, &item.Content, &item.Title, &item.Snippet, &item.CreatedAt, &item.X, &item.Y); err != nil {
			return nil, err
		}
		item.Type = InspirationType(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresRemoteStore) UpsertInspiration(ctx context.Context, email string, items []InspirationItem) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	for _, item := range items {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO inspiration (id, user_email, type, content, title, snippet, created_at, x, y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				user_email = EXCLUDED.user_email,
				type = EXCLUDED.type,
				content = EXCLUDED.content,
				title = EXCLUDED.title,
				snippet = EXCLUDED.snippet,
				created_at = EXCLUDED.created_at,
				x = EXCLUDED.x,
				y = EXCLUDED.y`,
			item.ID, email, string(item.Type), item.Content, item.Title, item.Snippet, item.CreatedAt, item.X, item.Y)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRemoteStore) DeleteInspiration(ctx context.Context, id string) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM inspiration WHERE id = $1`, id)
	return err
}

func (r *PostgresRemoteStore) FetchStats(ctx context.Context, email string) (*UserStats, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT stats_json FROM user_stats WHERE user_email = $1`, email).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return statsFromRow(statsRow{UserEmail: email, StatsJSON: payload})
}

func (r *PostgresRemoteStore) UpsertStats(ctx context.Context, email string, stats UserStats) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	row, err := statsToRow(email, stats)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_email, stats_json)
		VALUES ($1, $2)
		ON CONFLICT (user_email) DO UPDATE SET stats_json = EXCLUDED.stats_json`,
		email, row.StatsJSON)
	return err
}

func (r *PostgresRemoteStore) Ping(ctx context.Context) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	var count int
	return r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT id FROM notes LIMIT 1) probe`).Scan(&count)
}

func (r *PostgresRemoteStore) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
