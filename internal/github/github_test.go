package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, maxStarred int, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), srv.URL, "ghp_test", maxStarred, zap.NewNop())
}

func starredPage(start, n int) []map[string]any {
	page := make([]map[string]any, n)
	for i := range page {
		id := start + i
		page[i] = map[string]any{"id": id, "full_name": fmt.Sprintf("o/r%d", id), "name": fmt.Sprintf("r%d", id)}
	}
	return page
}

func TestAuthenticateSendsToken(t *testing.T) {
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"login":"octocat"}`))
	})

	u, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", u.Login)
}

func TestListStarredPaginatesUntilShortPage(t *testing.T) {
	var pages []int
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		pages = append(pages, page)
		n := 100
		if page == 2 {
			n = 30
		}
		_ = json.NewEncoder(w).Encode(starredPage((page-1)*100, n))
	})

	repos, err := c.ListStarred(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, repos, 130)
	assert.Equal(t, []int{1, 2}, pages)
	assert.Equal(t, "o/r0", repos[0].FullName)
	assert.Equal(t, int64(129), repos[129].ID)
}

func TestListStarredStopsAtCap(t *testing.T) {
	calls := 0
	c := newTestClient(t, 150, func(w http.ResponseWriter, r *http.Request) {
		calls++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(starredPage((page-1)*100, 100))
	})

	repos, err := c.ListStarred(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, repos, 150)
	assert.Equal(t, 2, calls)
}

func TestListStarredFailureIsHostError(t *testing.T) {
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	_, err := c.ListStarred(context.Background(), "")
	var hostErr *HostError
	require.True(t, errors.As(err, &hostErr))
	assert.Equal(t, http.StatusUnauthorized, hostErr.StatusCode)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestListNamedListsNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	lists, err := c.ListNamedLists(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, lists)
	assert.Empty(t, lists)
}

func TestListNamedListsServerErrorPropagates(t *testing.T) {
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.ListNamedLists(context.Background())
	var hostErr *HostError
	require.True(t, errors.As(err, &hostErr))
	assert.Equal(t, http.StatusBadGateway, hostErr.StatusCode)
}

func TestListNamedListsAcceptsNumericAndStringIDs(t *testing.T) {
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 42, "name": "Web", "description": "old desc"}, {"id": "UL_abc", "name": "Tools", "description": null}]`))
	})

	lists, err := c.ListNamedLists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "42", lists[0].ID)
	assert.Equal(t, "old desc", lists[0].Description)
	assert.Equal(t, "UL_abc", lists[1].ID)
	assert.Empty(t, lists[1].Description)
}

func TestListMutations(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{r.Method, r.URL.Path, body})
		switch r.Method {
		case http.MethodPost, http.MethodPatch:
			_, _ = w.Write([]byte(`{"id": 7, "name": "Tools", "description": "d"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	created, err := c.CreateList(ctx, "Tools", "d")
	require.NoError(t, err)
	assert.Equal(t, "7", created.ID)

	_, err = c.UpdateList(ctx, "7", "")
	require.NoError(t, err)
	require.NoError(t, c.AddReposToList(ctx, "7", []int64{1, 2}))
	require.NoError(t, c.RemoveReposFromList(ctx, "7", []int64{2}))

	require.Len(t, calls, 4)
	assert.Equal(t, call{http.MethodPost, "/user/starred/lists", map[string]any{"name": "Tools", "description": "d"}}, calls[0])
	assert.Equal(t, http.MethodPatch, calls[1].method)
	assert.Empty(t, calls[1].body)
	assert.Equal(t, call{http.MethodPut, "/user/starred/lists/7/items", map[string]any{"starred_repository_ids": []any{float64(1), float64(2)}}}, calls[2])
	assert.Equal(t, http.MethodDelete, calls[3].method)
}

func TestListStarredForNamedUser(t *testing.T) {
	var paths []string
	c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(starredPage(0, 2))
	})

	repos, err := c.ListStarred(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Len(t, repos, 2)
	assert.Equal(t, []string{"/users/octocat/starred"}, paths)

	_, err = c.ListStarred(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/user/starred", paths[1])
}
