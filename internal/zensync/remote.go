package zensync

import (
	"context"
	"encoding/json"
)

// RemoteStore is the boundary to the optional mirrored tier. Fetches return
// (nil, nil) when the remote holds nothing for the user, which the facade
// treats the same as a miss. Implementations must not panic past this
// boundary; every failure comes back as an error for the facade to swallow.
type RemoteStore interface {
	FetchNotes(ctx context.Context, email string) ([]Note, error)
	UpsertNote(ctx context.Context, email string, note Note) error
	DeleteNote(ctx context.Context, id string) error

	FetchFolders(ctx context.Context, email string) ([]Folder, error)
	UpsertFolders(ctx context.Context, email string, folders []Folder) error

	FetchInspiration(ctx context.Context, email string) ([]InspirationItem, error)
	UpsertInspiration(ctx context.Context, email string, items []InspirationItem) error
	DeleteInspiration(ctx context.Context, id string) error

	FetchStats(ctx context.Context, email string) (*UserStats, error)
	UpsertStats(ctx context.Context, email string, stats UserStats) error

	// Ping performs a minimal read against a known collection.
	Ping(ctx context.Context) error
	Close() error
}

// Row shapes mirror the remote schema (§ remote tables): snake_case columns,
// one row per entity, stats serialized as one opaque blob per user.

type noteRow struct {
	ID              string `json:"id"`
	UserEmail       string `json:"user_email"`
	FolderID        string `json:"folder_id"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	UpdatedAt       int64  `json:"updated_at"`
	TargetWordCount *int   `json:"target_word_count,omitempty"`
}

type folderRow struct {
	ID        string `json:"id"`
	UserEmail string `json:"user_email"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
}

type inspirationRow struct {
	ID        string  `json:"id"`
	UserEmail string  `json:"user_email"`
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Title     string  `json:"title,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	CreatedAt int64   `json:"created_at"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
}

type statsRow struct {
	UserEmail string `json:"user_email"`
	StatsJSON string `json:"stats_json"`
}

func noteToRow(email string, note Note) noteRow {
	row := noteRow{
		ID:        note.ID,
		UserEmail: email,
		FolderID:  note.FolderID,
		Title:     note.Title,
		Content:   note.Content,
		UpdatedAt: note.UpdatedAt,
	}
	if note.TargetWordCount > 0 {
		target := note.TargetWordCount
		row.TargetWordCount = &target
	}
	return row
}

func noteFromRow(row noteRow) Note {
	note := Note{
		ID:        row.ID,
		FolderID:  row.FolderID,
		Title:     row.Title,
		Content:   row.Content,
		UpdatedAt: row.UpdatedAt,
	}
	if row.TargetWordCount != nil {
		note.TargetWordCount = *row.TargetWordCount
	}
	return note
}

func folderToRow(email string, folder Folder) folderRow {
	return folderRow{ID: folder.ID, UserEmail: email, Name: folder.Name, Color: folder.Color}
}

func folderFromRow(row folderRow) Folder {
	return Folder{ID: row.ID, Name: row.Name, Color: row.Color}
}

func inspirationToRow(email string, item InspirationItem) inspirationRow {
	return inspirationRow{
		ID:        item.ID,
		UserEmail: email,
		Type:      string(item.Type),
		Content:   item.Content,
		Title:     item.Title,
		Snippet:   item.Snippet,
		CreatedAt: item.CreatedAt,
		X:         item.X,
		Y:         item.Y,
	}
}

func inspirationFromRow(row inspirationRow) InspirationItem {
	return InspirationItem{
		ID:        row.ID,
		Type:      InspirationType(row.Type),
		Content:   row.Content,
		Title:     row.Title,
		Snippet:   row.Snippet,
		CreatedAt: row.CreatedAt,
		X:         row.X,
		Y:         row.Y,
	}
}

func statsToRow(email string, stats UserStats) (statsRow, error) {
	payload, err := json.Marshal(stats)
	if err != nil {
		return statsRow{}, err
	}
	return statsRow{UserEmail: email, StatsJSON: string(payload)}, nil
}

func statsFromRow(row statsRow) (*UserStats, error) {
	if row.StatsJSON == "" {
		return nil, nil
	}
	var stats UserStats
	if err := json.Unmarshal([]byte(row.StatsJSON), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
