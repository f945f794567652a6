package zensync

import (
	"regexp"
	"strings"
	"time"
)

const (
	dailyHistoryLimit = 30
	pointsPerWord     = 0.1
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// CountWords counts whitespace-separated tokens in note content after
// stripping markup. Tags become spaces so "one</p><p>two" stays two words.
func CountWords(html string) int {
	plain := htmlTagPattern.ReplaceAllString(html, " ")
	plain = strings.ReplaceAll(plain, "&nbsp;", " ")
	return len(strings.Fields(plain))
}

func dayString(t time.Time) string {
	return t.Format("2006-01-02")
}

// DefaultAchievements is the full badge catalog, all locked. Merging against
// it repairs stats persisted before a badge existed.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: "first_word", Title: "First Ink", Description: "Wrote your first word.", Icon: "Feather"},
		{ID: "words_1000", Title: "Scribe", Description: "Wrote 1,000 words total.", Icon: "Scroll"},
		{ID: "words_10000", Title: "Author", Description: "Wrote 10,000 words total.", Icon: "BookOpen"},
		{ID: "words_50000", Title: "Masterpiece", Description: "Wrote 50,000 words total.", Icon: "Crown"},
		{ID: "words_100000", Title: "Legend", Description: "Wrote 100,000 words total.", Icon: "Crown"},
		{ID: "streak_3", Title: "Consistency", Description: "Reached a 3-day writing streak.", Icon: "Flame"},
		{ID: "streak_7", Title: "Novelist", Description: "Reached a 7-day writing streak.", Icon: "Flame"},
		{ID: "streak_30", Title: "Dedicated", Description: "Reached a 30-day writing streak.", Icon: "Flame"},
		{ID: "streak_100", Title: "Century Club", Description: "Reached a 100-day writing streak.", Icon: "Flame"},
		{ID: "night_owl", Title: "Night Owl", Description: "Wrote something between 12 AM and 5 AM.", Icon: "Moon"},
		{ID: "early_bird", Title: "Early Bird", Description: "Wrote something between 6 AM and 9 AM.", Icon: "Sun"},
		{ID: "weekend_warrior", Title: "Weekend Warrior", Description: "Wrote on a Saturday or Sunday.", Icon: "Calendar"},
		{ID: "speed_writer", Title: "Speed Writer", Description: "Wrote 500 words in one day.", Icon: "Wind"},
		{ID: "marathon", Title: "Marathon", Description: "Wrote 2000 words in one day.", Icon: "TrendingUp"},
		{ID: "notes_10", Title: "Collector", Description: "Created 10 notes.", Icon: "Files"},
		{ID: "notes_50", Title: "Librarian", Description: "Created 50 notes.", Icon: "Files"},
		{ID: "notes_100", Title: "Archivist", Description: "Created 100 notes.", Icon: "Files"},
		{ID: "organizer", Title: "Organizer", Description: "Created 3 folders.", Icon: "Folder"},
		{ID: "goal_met", Title: "Goal Setter", Description: "Reached a word count goal.", Icon: "Target"},
		{ID: "ai_assist", Title: "Co-Pilot", Description: "Used AI assistance.", Icon: "Zap"},
		{ID: "inspiration_5", Title: "Inspired", Description: "Added 5 items to inspiration board.", Icon: "Lightbulb"},
		{ID: "published_1", Title: "Publisher", Description: "Published a note.", Icon: "Globe"},
		{ID: "zen_master", Title: "Zen Master", Description: "Used Focus Mode.", Icon: "Maximize"},
		{ID: "socialite", Title: "Socialite", Description: "Used Social Preview.", Icon: "Eye"},
		{ID: "visual_storyteller", Title: "Visual Storyteller", Description: "Inserted an image into a note.", Icon: "Image"},
		{ID: "director", Title: "Director", Description: "Inserted a video into a note.", Icon: "Video"},
		{ID: "structural_engineer", Title: "Engineer", Description: "Used a table in a note.", Icon: "Table"},
		{ID: "typewriter", Title: "Typewriter", Description: "Used the Monospace font setting.", Icon: "Type"},
		{ID: "editor_chief", Title: "Editor-in-Chief", Description: "Fixed grammar using AI.", Icon: "CheckCircle"},
		{ID: "dark_side", Title: "Dark Side", Description: "Enabled Dark Mode.", Icon: "Moon"},
	}
}

// DefaultStats builds first-run stats from the user's current notes: the past
// week zero-filled, today carrying the full derived count.
func DefaultStats(notes []Note, now time.Time) UserStats {
	total := 0
	for _, note := range notes {
		total += CountWords(note.Content)
	}
	today := dayString(now)

	history := make([]DailyStat, 0, 7)
	for i := 6; i >= 0; i-- {
		day := dayString(now.AddDate(0, 0, -i))
		count := 0
		if day == today && total > 0 {
			count = total
		}
		history = append(history, DailyStat{Date: day, WordCount: count})
	}

	stats := UserStats{
		TotalWordsWritten: total,
		DailyHistory:      history,
		Achievements:      DefaultAchievements(),
		Points:            float64(total) * pointsPerWord,
	}
	if total > 0 {
		stats.CurrentStreak = 1
		stats.MaxStreak = 1
		stats.LastWrittenDate = today
		unlockAchievement(&stats, "first_word", now)
	}
	if total >= 1000 {
		unlockAchievement(&stats, "words_1000", now)
	}
	return stats
}

// unlockAchievement flips a badge on. Already-unlocked badges keep their
// original timestamp; a badge never re-locks.
func unlockAchievement(stats *UserStats, id string, now time.Time) bool {
	for i := range stats.Achievements {
		if stats.Achievements[i].ID != id {
			continue
		}
		if stats.Achievements[i].Unlocked {
			return false
		}
		stats.Achievements[i].Unlocked = true
		stats.Achievements[i].UnlockedAt = now.UnixMilli()
		return true
	}
	return false
}

func achievementUnlocked(stats UserStats, id string) bool {
	for _, a := range stats.Achievements {
		if a.ID == id {
			return a.Unlocked
		}
	}
	return false
}

func unlockedCount(stats UserStats) int {
	count := 0
	for _, a := range stats.Achievements {
		if a.Unlocked {
			count++
		}
	}
	return count
}

// mergeAchievementCatalog returns the full catalog in canonical order with
// unlock state carried over from persisted entries. Badges added after the
// snapshot was written come back locked.
func mergeAchievementCatalog(persisted []Achievement) []Achievement {
	merged := DefaultAchievements()
	for i := range merged {
		for _, prev := range persisted {
			if prev.ID == merged[i].ID {
				merged[i] = prev
				break
			}
		}
	}
	return merged
}

// repairStats normalizes a persisted snapshot before it is handed out: the
// achievement list is merged with the full catalog, an empty day-history is
// rebuilt around the running total, and total/streak badges re-check. Cheap
// enough to run on every load; the cross-collection checks live in Reconcile.
// Reports whether anything changed so callers can skip a redundant save.
func repairStats(stats *UserStats, now time.Time) bool {
	if stats == nil {
		return false
	}
	changed := len(stats.Achievements) != len(DefaultAchievements())
	stats.Achievements = mergeAchievementCatalog(stats.Achievements)

	if len(stats.DailyHistory) == 0 {
		today := dayString(now)
		history := make([]DailyStat, 0, 7)
		for i := 6; i >= 0; i-- {
			day := dayString(now.AddDate(0, 0, -i))
			count := 0
			if day == today {
				count = stats.TotalWordsWritten
			}
			history = append(history, DailyStat{Date: day, WordCount: count})
		}
		stats.DailyHistory = history
		changed = true
	}

	before := unlockedCount(*stats)
	checkThresholds(stats, now)
	return changed || unlockedCount(*stats) != before
}

// ReconcileInput is the observed world the persisted stats are checked
// against on load.
type ReconcileInput struct {
	Notes            []Note
	FolderCount      int
	InspirationCount int
	MonospaceFont    bool
	Now              time.Time
}

// Reconcile repairs persisted stats against current data: the achievement
// list is merged with the full catalog (unlocked stays unlocked), the word
// total never drops below what the notes actually contain, and an empty
// history is rebuilt. Count-based badges re-check so progress made while the
// stats snapshot was stale still unlocks.
func Reconcile(persisted *UserStats, input ReconcileInput) UserStats {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	derived := DefaultStats(input.Notes, now)
	if persisted == nil {
		persisted = &derived
	}

	stats := *persisted
	stats.DailyHistory = append([]DailyStat(nil), persisted.DailyHistory...)
	if len(stats.DailyHistory) == 0 {
		stats.DailyHistory = derived.DailyHistory
	}

	// Catalog order, persisted unlock state.
	stats.Achievements = mergeAchievementCatalog(persisted.Achievements)

	if derived.TotalWordsWritten > stats.TotalWordsWritten {
		stats.TotalWordsWritten = derived.TotalWordsWritten
	}

	checkThresholds(&stats, now)
	if len(input.Notes) >= 10 {
		unlockAchievement(&stats, "notes_10", now)
	}
	if len(input.Notes) >= 50 {
		unlockAchievement(&stats, "notes_50", now)
	}
	if len(input.Notes) >= 100 {
		unlockAchievement(&stats, "notes_100", now)
	}
	if input.FolderCount >= 3 {
		unlockAchievement(&stats, "organizer", now)
	}
	if input.InspirationCount >= 5 {
		unlockAchievement(&stats, "inspiration_5", now)
	}
	if input.MonospaceFont {
		unlockAchievement(&stats, "typewriter", now)
	}
	for _, note := range input.Notes {
		if strings.Contains(note.Content, "<img") {
			unlockAchievement(&stats, "visual_storyteller", now)
		}
		if strings.Contains(note.Content, "<iframe") {
			unlockAchievement(&stats, "director", now)
		}
		if strings.Contains(note.Content, "<table") {
			unlockAchievement(&stats, "structural_engineer", now)
		}
		if note.TargetWordCount > 0 && CountWords(note.Content) >= note.TargetWordCount {
			unlockAchievement(&stats, "goal_met", now)
		}
	}
	return stats
}

func checkThresholds(stats *UserStats, now time.Time) {
	if stats.TotalWordsWritten > 0 {
		unlockAchievement(stats, "first_word", now)
	}
	if stats.TotalWordsWritten >= 1000 {
		unlockAchievement(stats, "words_1000", now)
	}
	if stats.TotalWordsWritten >= 10000 {
		unlockAchievement(stats, "words_10000", now)
	}
	if stats.TotalWordsWritten >= 50000 {
		unlockAchievement(stats, "words_50000", now)
	}
	if stats.TotalWordsWritten >= 100000 {
		unlockAchievement(stats, "words_100000", now)
	}
	if stats.CurrentStreak >= 3 {
		unlockAchievement(stats, "streak_3", now)
	}
	if stats.CurrentStreak >= 7 {
		unlockAchievement(stats, "streak_7", now)
	}
	if stats.CurrentStreak >= 30 {
		unlockAchievement(stats, "streak_30", now)
	}
	if stats.CurrentStreak >= 100 {
		unlockAchievement(stats, "streak_100", now)
	}
}

// AddWords applies an incremental word delta: total and points grow, today's
// history bucket accumulates (oldest day evicted past the cap), and the
// streak advances by the calendar rule. Writing again on the same day leaves
// the streak alone; writing the day after the last written date extends it;
// any gap resets it to 1. Non-positive deltas are ignored.
func AddWords(stats *UserStats, delta int, now time.Time) {
	if stats == nil || delta <= 0 {
		return
	}
	today := dayString(now)

	stats.TotalWordsWritten += delta
	stats.Points += float64(delta) * pointsPerWord

	todayCount := delta
	found := false
	for i := range stats.DailyHistory {
		if stats.DailyHistory[i].Date == today {
			stats.DailyHistory[i].WordCount += delta
			todayCount = stats.DailyHistory[i].WordCount
			found = true
			break
		}
	}
	if !found {
		stats.DailyHistory = append(stats.DailyHistory, DailyStat{Date: today, WordCount: delta})
		if len(stats.DailyHistory) > dailyHistoryLimit {
			stats.DailyHistory = stats.DailyHistory[1:]
		}
	}

	if stats.LastWrittenDate != today {
		yesterday := dayString(now.AddDate(0, 0, -1))
		if stats.LastWrittenDate == yesterday {
			stats.CurrentStreak++
		} else {
			stats.CurrentStreak = 1
		}
	}
	if stats.CurrentStreak > stats.MaxStreak {
		stats.MaxStreak = stats.CurrentStreak
	}
	stats.LastWrittenDate = today

	checkThresholds(stats, now)
	hour := now.Hour()
	if hour >= 0 && hour < 5 {
		unlockAchievement(stats, "night_owl", now)
	}
	if hour >= 6 && hour < 9 {
		unlockAchievement(stats, "early_bird", now)
	}
	if weekday := now.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
		unlockAchievement(stats, "weekend_warrior", now)
	}
	if todayCount >= 500 {
		unlockAchievement(stats, "speed_writer", now)
	}
	if todayCount >= 2000 {
		unlockAchievement(stats, "marathon", now)
	}
}
