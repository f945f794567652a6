package zensync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPostgRESTUpsertNoteSendsExpectedRequest(t *testing.T) {
	var capturedPath string
	var capturedQuery string
	var capturedAPIKey string
	var capturedAuth string
	var capturedPrefer string
	var capturedBody []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedQuery = r.URL.RawQuery
		capturedAPIKey = r.Header.Get("apikey")
		capturedAuth = r.Header.Get("Authorization")
		capturedPrefer = r.Header.Get("Prefer")
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{
		BaseURL:    server.URL,
		APIKey:     "anon_123",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	err = client.UpsertNote(context.Background(), "a@example.com", Note{
		ID: "n1", FolderID: "f1", Title: "t", Content: "<p>c</p>", UpdatedAt: 1700000000000, TargetWordCount: 500,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if capturedPath != "/rest/v1/notes" {
		t.Fatalf("expected notes endpoint, got %s", capturedPath)
	}
	if !strings.Contains(capturedQuery, "on_conflict=id") {
		t.Fatalf("expected on_conflict in query, got %s", capturedQuery)
	}
	if capturedAPIKey != "anon_123" || capturedAuth != "Bearer anon_123" {
		t.Fatalf("expected key in both headers, got %q / %q", capturedAPIKey, capturedAuth)
	}
	if !strings.Contains(capturedPrefer, "merge-duplicates") {
		t.Fatalf("expected upsert prefer header, got %q", capturedPrefer)
	}
	if len(capturedBody) != 1 || capturedBody[0]["user_email"] != "a@example.com" {
		t.Fatalf("expected snake_case row body, got %+v", capturedBody)
	}
	if capturedBody[0]["target_word_count"] != float64(500) {
		t.Fatalf("expected target_word_count in body, got %+v", capturedBody[0])
	}
}

func TestPostgRESTFetchNotesMapsRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_email"); got != "eq.a@example.com" {
			t.Errorf("expected email filter, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"n1","user_email":"a@example.com","folder_id":"f1","title":"t","content":"c","updated_at":5,"target_word_count":100}]`))
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{BaseURL: server.URL, APIKey: "k", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	notes, err := client.FetchNotes(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(notes) != 1 || notes[0].FolderID != "f1" || notes[0].TargetWordCount != 100 {
		t.Fatalf("unexpected mapping: %+v", notes)
	}
}

func TestPostgRESTFetchNotesEmptyIsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{BaseURL: server.URL, APIKey: "k", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	notes, err := client.FetchNotes(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if notes != nil {
		t.Fatalf("empty result must map to nil, got %+v", notes)
	}
}

func TestPostgRESTRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{
		BaseURL:    server.URL,
		APIKey:     "k",
		HTTPClient: server.Client(),
		MaxRetries: 2,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := client.DeleteNote(context.Background(), "n1"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", atomic.LoadInt32(&calls))
	}
}

func TestPostgRESTReturnsServerMessageOnPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"duplicate key"}`))
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{BaseURL: server.URL, APIKey: "k", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	err = client.UpsertFolders(context.Background(), "a@example.com", []Folder{{ID: "f1"}})
	if err == nil {
		t.Fatalf("expected permanent failure to error")
	}
	if !strings.Contains(err.Error(), "duplicate key") {
		t.Fatalf("expected server message surfaced, got %v", err)
	}
}

func TestPostgRESTHonorsRetryAfter(t *testing.T) {
	var calls int32
	var firstDone time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			firstDone = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{
		BaseURL:    server.URL,
		APIKey:     "k",
		HTTPClient: server.Client(),
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   50 * time.Millisecond, // caps the advertised 1s wait
	})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("expected recovery after 429, got %v", err)
	}
	if waited := time.Since(firstDone); waited > 500*time.Millisecond {
		t.Fatalf("retry-after must be capped by MaxDelay, waited %v", waited)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly one retry, got %d", atomic.LoadInt32(&calls))
	}
}

func TestPostgRESTStatsRoundTrip(t *testing.T) {
	var upserted statsRow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var rows []statsRow
			_ = json.NewDecoder(r.Body).Decode(&rows)
			if len(rows) == 1 {
				upserted = rows[0]
			}
			w.WriteHeader(http.StatusCreated)
			return
		}
		_ = json.NewEncoder(w).Encode([]statsRow{upserted})
	}))
	defer server.Close()

	client, err := NewPostgRESTClient(PostgRESTClientOptions{BaseURL: server.URL, APIKey: "k", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	in := UserStats{TotalWordsWritten: 12, CurrentStreak: 2, Achievements: DefaultAchievements()}
	if err := client.UpsertStats(context.Background(), "a@example.com", in); err != nil {
		t.Fatalf("upsert stats failed: %v", err)
	}
	out, err := client.FetchStats(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("fetch stats failed: %v", err)
	}
	if out == nil || out.TotalWordsWritten != 12 || out.CurrentStreak != 2 {
		t.Fatalf("expected stats back from blob, got %+v", out)
	}
}

func TestPostgRESTRequiresConfig(t *testing.T) {
	if _, err := NewPostgRESTClient(PostgRESTClientOptions{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := NewPostgRESTClient(PostgRESTClientOptions{BaseURL: "https://x"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
