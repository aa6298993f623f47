package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/scholarpipe/indexer/internal/ids"
	"github.com/scholarpipe/indexer/internal/metrics"
	"github.com/scholarpipe/indexer/internal/record"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetries  = 2
	maxInPressPages = 1000
)

// RESTOptions configures a RESTClient.
type RESTOptions struct {
	BaseURL string
	Timeout time.Duration
	// Retries is the number of extra attempts after the first for
	// transient failures (timeouts, 401 token expiry, 429, 5xx).
	Retries    int
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// RESTClient talks to the token-authenticated catalog API. Tokens are
// fetched lazily per library, cached with an expiry buffer, and
// refreshed once when a request comes back 401.
type RESTClient struct {
	base    string
	http    *http.Client
	tokens  *TokenCache
	retries int
	log     *zap.Logger
	sleep   func(time.Duration)
}

// NewRESTClient builds a client over the given token cache.
func NewRESTClient(tokens *TokenCache, opts RESTOptions) *RESTClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &RESTClient{
		base:    opts.BaseURL,
		http:    httpClient,
		tokens:  tokens,
		retries: opts.Retries,
		log:     opts.Logger,
		sleep:   time.Sleep,
	}
}

type tokenResponse struct {
	Tokens []struct {
		ID        string `json:"id"`
		ExpiresAt string `json:"expires_at"`
	} `json:"api-tokens"`
}

func (c *RESTClient) fetchToken(ctx context.Context, libraryID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"libraryId": libraryID,
		"client":    "catalog-indexer",
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api-tokens", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request status %d", resp.StatusCode)
	}

	var decoded tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if len(decoded.Tokens) == 0 {
		return "", fmt.Errorf("token response empty")
	}

	token := decoded.Tokens[0].ID
	var expiresAt time.Time
	if raw := decoded.Tokens[0].ExpiresAt; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			expiresAt = parsed
		}
	}
	c.tokens.Put(libraryID, token, expiresAt)
	return token, nil
}

func (c *RESTClient) token(ctx context.Context, libraryID string, refresh bool) (string, error) {
	if !refresh {
		if token, ok := c.tokens.Get(libraryID); ok {
			return token, nil
		}
	}
	return c.fetchToken(ctx, libraryID)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// getJSON performs an authenticated GET with bounded retries. A nil map
// with a nil error means the resource is unavailable.
func (c *RESTClient) getJSON(ctx context.Context, path string, libraryID string, params url.Values) (map[string]any, error) {
	token, err := c.token(ctx, libraryID, false)
	if err != nil {
		return nil, err
	}

	target := c.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	for attempt := 0; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.api+json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.retries {
				c.sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			return nil, fmt.Errorf("request %s: %w", path, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt < c.retries:
			c.tokens.Invalidate(libraryID)
			token, err = c.token(ctx, libraryID, true)
			if err != nil {
				return nil, err
			}
			continue
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("read %s: %w", path, readErr)
			}
			var decoded map[string]any
			if err := json.Unmarshal(body, &decoded); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
			return decoded, nil
		case retryable(resp.StatusCode) && attempt < c.retries:
			c.sleep(time.Duration(attempt+1) * time.Second)
			continue
		default:
			c.log.Debug("source request failed",
				zap.String("path", path), zap.Int("status", resp.StatusCode))
			return nil, nil
		}
	}
	return nil, nil
}

func payloadList(value any) []record.Payload {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	payloads := make([]record.Payload, 0, len(items))
	for _, item := range items {
		if p, ok := item.(map[string]any); ok {
			payloads = append(payloads, p)
		}
	}
	return payloads
}

// JournalMetadata fetches one journal's catalog record.
func (c *RESTClient) JournalMetadata(ctx context.Context, journalID int64, libraryID string) (record.Payload, error) {
	path := fmt.Sprintf("/libraries/%s/journals/%d", url.PathEscape(libraryID), journalID)
	data, err := c.getJSON(ctx, path, libraryID, nil)
	if err != nil || data == nil {
		metrics.ObserveFetch("journal", "miss")
		return nil, err
	}
	metrics.ObserveFetch("journal", "ok")
	if payload, ok := data["data"].(map[string]any); ok {
		return payload, nil
	}
	return nil, nil
}

// PublicationYears fetches the years a journal has issues for.
func (c *RESTClient) PublicationYears(ctx context.Context, journalID int64, libraryID string) ([]int, error) {
	path := fmt.Sprintf("/libraries/%s/journals/%d/publication-years",
		url.PathEscape(libraryID), journalID)
	data, err := c.getJSON(ctx, path, libraryID, nil)
	if err != nil || data == nil {
		metrics.ObserveFetch("years", "miss")
		return nil, err
	}
	metrics.ObserveFetch("years", "ok")

	years := make([]int, 0)
	for _, item := range payloadList(data["publicationYears"]) {
		if year, ok := ids.ParseInt64(item["id"]); ok && year > 0 {
			years = append(years, int(year))
		}
	}
	return years, nil
}

// IssuesForYear fetches a journal year's issue records.
func (c *RESTClient) IssuesForYear(ctx context.Context, journalID int64, libraryID string, year int) ([]record.Payload, error) {
	path := fmt.Sprintf("/libraries/%s/journals/%d/issues",
		url.PathEscape(libraryID), journalID)
	params := url.Values{"publication-year": {fmt.Sprint(year)}}
	data, err := c.getJSON(ctx, path, libraryID, params)
	if err != nil || data == nil {
		metrics.ObserveFetch("issues", "miss")
		return nil, err
	}
	metrics.ObserveFetch("issues", "ok")
	return payloadList(data["issues"]), nil
}

// ArticlesForIssue fetches every article record in one issue.
func (c *RESTClient) ArticlesForIssue(ctx context.Context, issueID int64, libraryID string) ([]record.Payload, error) {
	path := fmt.Sprintf("/libraries/%s/issues/%d/articles",
		url.PathEscape(libraryID), issueID)
	data, err := c.getJSON(ctx, path, libraryID, nil)
	if err != nil || data == nil {
		metrics.ObserveFetch("articles", "miss")
		return nil, err
	}
	metrics.ObserveFetch("articles", "ok")
	return payloadList(data["data"]), nil
}

// InPressArticles fetches a journal's ahead-of-issue articles, following
// cursor pagination until the provider stops returning a next cursor.
func (c *RESTClient) InPressArticles(ctx context.Context, journalID int64, libraryID string) ([]record.Payload, error) {
	path := fmt.Sprintf("/libraries/%s/journals/%d/articles-in-press",
		url.PathEscape(libraryID), journalID)

	var results []record.Payload
	cursor := ""
	seen := make(map[string]bool)
	for page := 0; page < maxInPressPages; page++ {
		params := url.Values{}
		if cursor != "" {
			if seen[cursor] {
				break
			}
			seen[cursor] = true
			params.Set("cursor", cursor)
		}
		data, err := c.getJSON(ctx, path, libraryID, params)
		if err != nil {
			metrics.ObserveFetch("in_press", "miss")
			return results, err
		}
		if data == nil {
			break
		}
		results = append(results, payloadList(data["data"])...)
		cursor = nextCursor(data)
		if cursor == "" {
			break
		}
	}
	metrics.ObserveFetch("in_press", "ok")
	return results, nil
}

func nextCursor(data map[string]any) string {
	meta, ok := data["meta"].(map[string]any)
	if !ok {
		return ""
	}
	cursor, ok := meta["cursor"].(map[string]any)
	if !ok {
		return ""
	}
	next, _ := cursor["next"].(string)
	return next
}

var _ Client = (*RESTClient)(nil)
