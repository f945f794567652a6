package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beyondwords/zensync/internal/zensync"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*httptest.Server, *zensync.Store) {
	t.Helper()
	store, err := zensync.Open(zensync.StoreOptions{
		StateBackend:   zensync.NewInMemoryStateBackend(),
		DebounceWindow: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(store.Close)
	server := httptest.NewServer(NewServerWithConfig(store, cfg))
	t.Cleanup(server.Close)
	return server, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestNoteLifecycle(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	base := server.URL + "/v1/users/writer@example.com"

	resp := doJSON(t, http.MethodPut, base+"/notes", map[string]any{
		"title":   "First Draft",
		"content": "<p>hello there</p>",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put note: expected 200, got %d", resp.StatusCode)
	}
	var saved zensync.Note
	decodeBody(t, resp, &saved)
	if saved.ID == "" || saved.UpdatedAt == 0 {
		t.Fatalf("expected assigned id and timestamp, got %+v", saved)
	}

	resp = doJSON(t, http.MethodGet, base+"/notes", nil)
	var notes []zensync.Note
	decodeBody(t, resp, &notes)
	found := false
	for _, note := range notes {
		if note.ID == saved.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("saved note missing from list: %+v", notes)
	}

	resp = doJSON(t, http.MethodDelete, base+"/notes/"+saved.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete note: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/notes", nil)
	notes = nil
	decodeBody(t, resp, &notes)
	for _, note := range notes {
		if note.ID == saved.ID {
			t.Fatalf("deleted note still listed")
		}
	}
}

func TestNoteValidationRejectsMissingTitle(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodPut, server.URL+"/v1/users/a@example.com/notes", map[string]any{
		"content": "<p>no title</p>",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["code"] != "validation_failed" {
		t.Fatalf("expected validation error code, got %+v", body)
	}
}

func TestInspirationValidationRejectsUnknownType(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodPut, server.URL+"/v1/users/a@example.com/inspiration", []map[string]any{
		{"type": "hologram", "content": "x"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFoldersRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	base := server.URL + "/v1/users/writer@example.com"

	resp := doJSON(t, http.MethodPut, base+"/folders", []map[string]any{
		{"id": "f9", "name": "Poems", "color": "#123456"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put folders: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/folders", nil)
	var folders []zensync.Folder
	decodeBody(t, resp, &folders)
	if len(folders) != 1 || folders[0].Name != "Poems" {
		t.Fatalf("unexpected folders: %+v", folders)
	}
}

func TestStatsWordsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	base := server.URL + "/v1/users/writer@example.com"

	resp := doJSON(t, http.MethodPost, base+"/stats/words", map[string]any{"delta": 600})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record words: expected 200, got %d", resp.StatusCode)
	}
	var stats zensync.UserStats
	decodeBody(t, resp, &stats)
	if stats.TotalWordsWritten < 600 {
		t.Fatalf("expected total to include delta, got %d", stats.TotalWordsWritten)
	}

	resp = doJSON(t, http.MethodPost, base+"/stats/words", map[string]any{"delta": -5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative delta, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStatsRefreshQuery(t *testing.T) {
	server, store := newTestServer(t, ServerConfig{})
	store.SaveEditorSettings("writer@example.com", zensync.EditorSettings{FontFamily: "mono"})

	resp := doJSON(t, http.MethodGet, server.URL+"/v1/users/writer@example.com/stats?refresh=true", nil)
	var stats zensync.UserStats
	decodeBody(t, resp, &stats)
	unlocked := false
	for _, a := range stats.Achievements {
		if a.ID == "typewriter" && a.Unlocked {
			unlocked = true
		}
	}
	if !unlocked {
		t.Fatalf("refresh should notice the monospace setting")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	base := server.URL + "/v1/users/writer@example.com"

	resp := doJSON(t, http.MethodGet, base+"/settings", nil)
	var settings zensync.EditorSettings
	decodeBody(t, resp, &settings)
	if settings.FontFamily != "serif" {
		t.Fatalf("expected default settings, got %+v", settings)
	}

	resp = doJSON(t, http.MethodPut, base+"/settings", zensync.EditorSettings{
		FontFamily: "mono", FontSize: "large", MaxWidth: "wide",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put settings: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/settings", nil)
	decodeBody(t, resp, &settings)
	if settings.FontFamily != "mono" {
		t.Fatalf("expected saved settings, got %+v", settings)
	}
}

func TestConfigLifecycleDoesNotEchoKey(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})

	resp := doJSON(t, http.MethodPut, server.URL+"/v1/config", map[string]any{
		"url": "https://proj.supabase.co",
		"key": "secret-anon-key",
	})
	var putBody map[string]any
	decodeBody(t, resp, &putBody)
	if putBody["configured"] != true {
		t.Fatalf("expected configured after put, got %+v", putBody)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/v1/config", nil)
	var getBody map[string]any
	decodeBody(t, resp, &getBody)
	if getBody["keySet"] != true {
		t.Fatalf("expected keySet true, got %+v", getBody)
	}
	if _, leaked := getBody["key"]; leaked {
		t.Fatalf("config response must never include the key")
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/v1/config", nil)
	var delBody map[string]any
	decodeBody(t, resp, &delBody)
	if delBody["configured"] != false {
		t.Fatalf("expected unconfigured after delete, got %+v", delBody)
	}
}

func TestConfigValidationRequiresURL(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodPut, server.URL+"/v1/config", map[string]any{"key": "k"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionEndReportsCancelledWrites(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodPost, server.URL+"/v1/users/writer@example.com/session/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if _, ok := body["cancelledWrites"]; !ok {
		t.Fatalf("expected cancelledWrites in body, got %+v", body)
	}
}

func TestAuthTokenGate(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{AuthToken: "sekrit"})

	resp := doJSON(t, http.MethodGet, server.URL+"/v1/users/a@example.com/notes", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/users/a@example.com/notes", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}

	// Health stays open.
	open := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	if open.StatusCode != http.StatusOK {
		t.Fatalf("health must not require auth, got %d", open.StatusCode)
	}
	open.Body.Close()
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodGet, server.URL+"/v1/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSyncRecentEndpoint(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodGet, server.URL+"/v1/sync/recent", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var events []zensync.SyncEvent
	decodeBody(t, resp, &events)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	doJSON(t, http.MethodGet, server.URL+"/v1/users/a@example.com/notes", nil).Body.Close()

	resp := doJSON(t, http.MethodGet, server.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteUnknownNoteReturnsNotFound(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	resp := doJSON(t, http.MethodDelete, server.URL+"/v1/users/writer@example.com/notes/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown note id, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStatsLoadRestoresFullCatalog(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{})
	base := server.URL + "/v1/users/writer@example.com"

	resp := doJSON(t, http.MethodPut, base+"/stats", map[string]any{
		"totalWordsWritten": 1200,
		"achievements": []map[string]any{
			{"id": "first_word", "title": "First Ink", "unlocked": true},
		},
	})
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base+"/stats", nil)
	var stats zensync.UserStats
	decodeBody(t, resp, &stats)
	if len(stats.Achievements) != 30 {
		t.Fatalf("a plain stats read must carry the full catalog, got %d", len(stats.Achievements))
	}
}
