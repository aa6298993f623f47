package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func tokenBody(id string) map[string]any {
	return map[string]any{
		"api-tokens": []map[string]any{{
			"id":         id,
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		}},
	}
}

func newTestClient(t *testing.T, handler http.Handler) *RESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewRESTClient(NewTokenCache(), RESTOptions{BaseURL: server.URL})
	client.sleep = func(time.Duration) {}
	return client
}

func TestRESTClientFetchesTokenOnce(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		writeJSON(t, w, tokenBody("tok-1"))
	})
	mux.HandleFunc("GET /libraries/lib-1/journals/42", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"data": map[string]any{"id": 42, "title": "J"}})
	})
	mux.HandleFunc("GET /libraries/lib-1/journals/42/publication-years", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"publicationYears": []map[string]any{
			{"id": 2023}, {"id": "2024"}, {"id": nil},
		}})
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	payload, err := client.JournalMetadata(ctx, 42, "lib-1")
	require.NoError(t, err)
	require.Equal(t, "J", payload["title"])

	years, err := client.PublicationYears(ctx, 42, "lib-1")
	require.NoError(t, err)
	require.Equal(t, []int{2023, 2024}, years)

	require.EqualValues(t, 1, tokenCalls.Load())
}

func TestRESTClientRefreshesTokenOn401(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		n := tokenCalls.Add(1)
		if n == 1 {
			writeJSON(t, w, tokenBody("stale"))
			return
		}
		writeJSON(t, w, tokenBody("fresh"))
	})
	mux.HandleFunc("GET /libraries/lib-1/issues/9/articles", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, map[string]any{"data": []map[string]any{{"id": 1}, {"id": 2}}})
	})

	client := newTestClient(t, mux)
	articles, err := client.ArticlesForIssue(context.Background(), 9, "lib-1")
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.EqualValues(t, 2, tokenCalls.Load())
}

func TestRESTClientRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, tokenBody("tok"))
	})
	mux.HandleFunc("GET /libraries/lib-1/journals/5/issues", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.Equal(t, "2024", r.URL.Query().Get("publication-year"))
		writeJSON(t, w, map[string]any{"issues": []map[string]any{{"id": 77}}})
	})

	client := newTestClient(t, mux)
	issues, err := client.IssuesForYear(context.Background(), 5, "lib-1", 2024)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.EqualValues(t, 3, attempts.Load())
}

func TestRESTClientReturnsNilOnNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, tokenBody("tok"))
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, mux)
	payload, err := client.JournalMetadata(context.Background(), 404, "lib-1")
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestRESTClientInPressPagination(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, tokenBody("tok"))
	})
	mux.HandleFunc("GET /libraries/lib-1/journals/3/articles-in-press", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(t, w, map[string]any{
				"data": []map[string]any{{"id": 1}},
				"meta": map[string]any{"cursor": map[string]any{"next": "p2"}},
			})
		case "p2":
			writeJSON(t, w, map[string]any{
				"data": []map[string]any{{"id": 2}},
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	client := newTestClient(t, mux)
	articles, err := client.InPressArticles(context.Background(), 3, "lib-1")
	require.NoError(t, err)
	require.Len(t, articles, 2)
}

func TestRESTClientStopsOnRepeatedCursor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api-tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, tokenBody("tok"))
	})
	mux.HandleFunc("GET /libraries/lib-1/journals/3/articles-in-press", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{{"id": 1}},
			"meta": map[string]any{"cursor": map[string]any{"next": "loop"}},
		})
	})

	client := newTestClient(t, mux)
	articles, err := client.InPressArticles(context.Background(), 3, "lib-1")
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.EqualValues(t, 2, calls.Load())
}
