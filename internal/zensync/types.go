package zensync

import (
	"errors"
	"strings"
)

var (
	ErrNotConfigured = errors.New("remote store not configured")
	ErrInvalidConfig = errors.New("invalid remote configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
)

// Collection names double as local snapshot keys and remote table names.
const (
	CollectionNotes       = "notes"
	CollectionFolders     = "folders"
	CollectionInspiration = "inspiration"
	CollectionStats       = "stats"
	CollectionSettings    = "editor_settings"
)

// Note content is an opaque HTML blob to this layer; only the word counter
// looks inside, and only to strip markup.
type Note struct {
	ID              string `json:"id"`
	FolderID        string `json:"folderId"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	UpdatedAt       int64  `json:"updatedAt"`
	TargetWordCount int    `json:"targetWordCount,omitempty"`
}

type Folder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type InspirationType string

const (
	InspirationText      InspirationType = "text"
	InspirationImage     InspirationType = "image"
	InspirationVideo     InspirationType = "video"
	InspirationLink      InspirationType = "link"
	InspirationHighlight InspirationType = "highlight"
)

type InspirationItem struct {
	ID        string          `json:"id"`
	Type      InspirationType `json:"type"`
	Content   string          `json:"content"`
	Title     string          `json:"title,omitempty"`
	Snippet   string          `json:"snippet,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	X         float64         `json:"x,omitempty"`
	Y         float64         `json:"y,omitempty"`
}

type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Unlocked    bool   `json:"unlocked"`
	UnlockedAt  int64  `json:"unlockedAt,omitempty"`
}

type DailyStat struct {
	Date      string `json:"date"` // YYYY-MM-DD
	WordCount int    `json:"wordCount"`
}

type UserStats struct {
	TotalWordsWritten int           `json:"totalWordsWritten"`
	CurrentStreak     int           `json:"currentStreak"`
	MaxStreak         int           `json:"maxStreak"`
	LastWrittenDate   string        `json:"lastWrittenDate,omitempty"`
	DailyHistory      []DailyStat   `json:"dailyHistory"`
	Achievements      []Achievement `json:"achievements"`
	Points            float64       `json:"points"`
}

type EditorSettings struct {
	FontFamily string `json:"fontFamily"`
	FontSize   string `json:"fontSize"`
	MaxWidth   string `json:"maxWidth"`
}

// RemoteConfig is the pair that selects and authenticates the remote store.
// The URL scheme picks the driver; Key is the access credential for drivers
// that need one out of band (the HTTP driver).
type RemoteConfig struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Every persisted key and every remote row is partitioned by a lower-cased
// email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
