package zensync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type PostgRESTClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// PostgRESTClient speaks the Supabase-style REST dialect: each remote table
// under /rest/v1, filters as query parameters, upserts via POST with a
// merge-duplicates Prefer header, the access key doubling as apikey and
// bearer token. Transient failures (429, 5xx, transport errors) retry with
// exponential backoff, honoring Retry-After.
type PostgRESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewPostgRESTClient(opts PostgRESTClientOptions) (*PostgRESTClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: access key is required", ErrInvalidConfig)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &PostgRESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}, nil
}

func (c *PostgRESTClient) FetchNotes(ctx context.Context, email string) ([]Note, error) {
	query := url.Values{"select": {"*"}, "user_email": {"eq." + email}}
	var rows []noteRow
	if err := c.do(ctx, http.MethodGet, CollectionNotes, query, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	notes := make([]Note, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, noteFromRow(row))
	}
	return notes, nil
}

func (c *PostgRESTClient) UpsertNote(ctx context.Context, email string, note Note) error {
	query := url.Values{"on_conflict": {"id"}}
	return c.do(ctx, http.MethodPost, CollectionNotes, query, []noteRow{noteToRow(email, note)}, upsertPrefer, nil)
}

func (c *PostgRESTClient) DeleteNote(ctx context.Context, id string) error {
	query := url.Values{"id": {"eq." + id}}
	return c.do(ctx, http.MethodDelete, CollectionNotes, query, nil, "", nil)
}

func (c *PostgRESTClient) FetchFolders(ctx context.Context, email string) ([]Folder, error) {
	query := url.Values{"select": {"*"}, "user_email": {"eq." + email}}
	var rows []folderRow
	if err := c.do(ctx, http.MethodGet, CollectionFolders, query, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	folders := make([]Folder, 0, len(rows))
	for _, row := range rows {
		folders = append(folders, folderFromRow(row))
	}
	return folders, nil
}

func (c *PostgRESTClient) UpsertFolders(ctx context.Context, email string, folders []Folder) error {
	if len(folders) == 0 {
		return nil
	}
	rows := make([]folderRow, 0, len(folders))
	for _, folder := range folders {
		rows = append(rows, folderToRow(email, folder))
	}
	query := url.Values{"on_conflict": {"id"}}
	return c.do(ctx, http.MethodPost, CollectionFolders, query, rows, upsertPrefer, nil)
}

func (c *PostgRESTClient) FetchInspiration(ctx context.Context, email string) ([]InspirationItem, error) {
	query := url.Values{"select": {"*"}, "user_email": {"eq." + email}}
	var rows []inspirationRow
	if err := c.do(ctx, http.MethodGet, CollectionInspiration, query, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	items := make([]InspirationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, inspirationFromRow(row))
	}
	return items, nil
}

func (c *PostgRESTClient) UpsertInspiration(ctx context.Context, email string, items []InspirationItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]inspirationRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, inspirationToRow(email, item))
	}
	query := url.Values{"on_conflict": {"id"}}
	return c.do(ctx, http.MethodPost, CollectionInspiration, query, rows, upsertPrefer, nil)
}

func (c *PostgRESTClient) DeleteInspiration(ctx context.Context, id string) error {
	query := url.Values{"id": {"eq." + id}}
	return c.do(ctx, http.MethodDelete, CollectionInspiration, query, nil, "", nil)
}

func (c *PostgRESTClient) FetchStats(ctx context.Context, email string) (*UserStats, error) {
	query := url.Values{"select": {"stats_json"}, "user_email": {"eq." + email}}
	var rows []statsRow
	if err := c.do(ctx, http.MethodGet, "user_stats", query, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return statsFromRow(rows[0])
}

func (c *PostgRESTClient) UpsertStats(ctx context.Context, email string, stats UserStats) error {
	row, err := statsToRow(email, stats)
	if err != nil {
		return err
	}
	query := url.Values{"on_conflict": {"user_email"}}
	return c.do(ctx, http.MethodPost, "user_stats", query, []statsRow{row}, upsertPrefer, nil)
}

func (c *PostgRESTClient) Ping(ctx context.Context) error {
	query := url.Values{"select": {"id"}, "limit": {"1"}}
	var rows []map[string]any
	return c.do(ctx, http.MethodGet, CollectionNotes, query, nil, "", &rows)
}

func (c *PostgRESTClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

const upsertPrefer = "resolution=merge-duplicates,return=minimal"

func (c *PostgRESTClient) do(ctx context.Context, method, table string, query url.Values, body any, prefer string, out any) error {
	if c == nil {
		return fmt.Errorf("postgrest client is nil")
	}
	var bodyBytes []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyBytes = encoded
	}
	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		message := strings.TrimSpace(string(respBody))
		var parsed map[string]any
		if json.Unmarshal(respBody, &parsed) == nil {
			if detail, ok := parsed["message"].(string); ok && strings.TrimSpace(detail) != "" {
				message = detail
			}
		}
		return fmt.Errorf("remote %s %s failed: status=%d message=%s", method, table, resp.StatusCode, message)
	}
}

func (c *PostgRESTClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
