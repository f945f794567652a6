package zensync

import "time"

// First-run content for a user with no snapshots yet.

func DefaultFolders() []Folder {
	return []Folder{
		{ID: "f1", Name: "Drafts", Color: "#78716c"},
		{ID: "f2", Name: "Ideas", Color: "#fbbf24"},
		{ID: "f3", Name: "Blog Posts", Color: "#3b82f6"},
	}
}

func DefaultNotes(now time.Time) []Note {
	return []Note{
		{
			ID:       "n1",
			FolderID: "f1",
			Title:    "Welcome to Beyond Words",
			Content: `<h1>Welcome!</h1><p>This is your new <b>vintage</b> writing space.</p>` +
				`<p>Try using the <i>AI Assistant</i> to help you write.</p>` +
				`<blockquote>"Fill your paper with the breathings of your heart." - Wordsworth</blockquote>`,
			UpdatedAt: now.UnixMilli(),
		},
	}
}

func DefaultInspiration(now time.Time) []InspirationItem {
	return []InspirationItem{
		{
			ID:        "i1",
			Type:      InspirationText,
			Content:   "Write drunk, edit sober.",
			Title:     "Hemingway Advice",
			CreatedAt: now.UnixMilli(),
			X:         100,
			Y:         100,
		},
		{
			ID:        "i2",
			Type:      InspirationVideo,
			Content:   "https://www.youtube.com/watch?v=Sagx9oJ0x64",
			Title:     "Vintage Typewriter ASMR",
			CreatedAt: now.UnixMilli(),
			X:         400,
			Y:         150,
		},
	}
}

func DefaultEditorSettings() EditorSettings {
	return EditorSettings{FontFamily: "serif", FontSize: "medium", MaxWidth: "medium"}
}
