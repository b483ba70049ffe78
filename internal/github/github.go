package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

const (
	DefaultBaseURL = "https://api.github.com"
	perPage        = 100
	userAgent      = "star-tidy"
)

// Client is a thin wrapper around the GitHub REST API for stars and star lists.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxStarred int
	logger     *zap.Logger
}

// User is the authenticated account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// NewClient returns a client authenticating with token. maxStarred caps
// ListStarred; values <= 0 mean the host maximum of 1000.
func NewClient(ctx context.Context, baseURL, token string, maxStarred int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxStarred <= 0 {
		maxStarred = 1000
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: oauth2.NewClient(ctx, src),
		maxStarred: maxStarred,
		logger:     logger,
	}
}

// Authenticate returns the user the token belongs to.
func (c *Client) Authenticate(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListStarred returns the starred repositories of user, or of the
// authenticated user when user is empty, paging until a short page or the
// configured cap. Only the authenticated form includes private repositories.
func (c *Client) ListStarred(ctx context.Context, user string) ([]models.Repository, error) {
	endpoint := "/user/starred"
	if user != "" {
		endpoint = "/users/" + url.PathEscape(user) + "/starred"
	}

	var all []models.Repository
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))

		var batch []models.Repository
		if err := c.do(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		c.logger.Debug("fetched starred page", zap.Int("page", page), zap.Int("total", len(all)))

		if len(batch) < perPage || len(all) >= c.maxStarred {
			break
		}
	}
	if len(all) > c.maxStarred {
		all = all[:c.maxStarred]
	}
	return all, nil
}

// ListNamedLists returns the user's star lists. A 404 means the host does
// not offer the feature and yields an empty slice.
func (c *Client) ListNamedLists(ctx context.Context) ([]models.RemoteList, error) {
	var wire []remoteList
	err := c.do(ctx, http.MethodGet, "/user/starred/lists", nil, &wire)
	var hostErr *HostError
	if errors.As(err, &hostErr) && hostErr.StatusCode == http.StatusNotFound {
		c.logger.Warn("star lists API not available, returning empty list")
		return []models.RemoteList{}, nil
	}
	if err != nil {
		return nil, err
	}
	lists := make([]models.RemoteList, 0, len(wire))
	for _, l := range wire {
		lists = append(lists, l.model())
	}
	return lists, nil
}

func (c *Client) CreateList(ctx context.Context, name, description string) (*models.RemoteList, error) {
	body := map[string]string{"name": name, "description": description}
	var l remoteList
	if err := c.do(ctx, http.MethodPost, "/user/starred/lists", body, &l); err != nil {
		return nil, err
	}
	m := l.model()
	return &m, nil
}

// UpdateList changes a list's description. An empty description is not sent.
func (c *Client) UpdateList(ctx context.Context, listID, description string) (*models.RemoteList, error) {
	body := map[string]string{}
	if description != "" {
		body["description"] = description
	}
	var l remoteList
	if err := c.do(ctx, http.MethodPatch, "/user/starred/lists/"+url.PathEscape(listID), body, &l); err != nil {
		return nil, err
	}
	m := l.model()
	return &m, nil
}

// AddReposToList attaches repositories to a list in one call. Repositories
// already on the list are left as they are.
func (c *Client) AddReposToList(ctx context.Context, listID string, repoIDs []int64) error {
	body := map[string][]int64{"starred_repository_ids": repoIDs}
	return c.do(ctx, http.MethodPut, "/user/starred/lists/"+url.PathEscape(listID)+"/items", body, nil)
}

func (c *Client) RemoveReposFromList(ctx context.Context, listID string, repoIDs []int64) error {
	body := map[string][]int64{"starred_repository_ids": repoIDs}
	return c.do(ctx, http.MethodDelete, "/user/starred/lists/"+url.PathEscape(listID)+"/items", body, nil)
}

// --- internal ---

// remoteList accepts either a numeric or string id.
type remoteList struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
}

func (l remoteList) model() models.RemoteList {
	m := models.RemoteList{Name: l.Name}
	var s string
	if err := json.Unmarshal(l.ID, &s); err == nil {
		m.ID = s
	} else {
		m.ID = strings.TrimSpace(string(l.ID))
	}
	if l.Description != nil {
		m.Description = *l.Description
	}
	return m
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &HostError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &HostError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HostError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &HostError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// HostError is a failed repository-host call. StatusCode is 0 when the
// request never got a response.
type HostError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *HostError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("GitHub API %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
	case e.StatusCode != 0:
		return fmt.Sprintf("GitHub API %s %s (%d): %v", e.Method, e.Path, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("GitHub API %s %s: %v", e.Method, e.Path, e.Err)
	}
}

func (e *HostError) Unwrap() error { return e.Err }
