package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/github"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

type fakeHost struct {
	mu        sync.Mutex
	repos     []models.Repository
	lists     []models.RemoteList
	authErr   error
	starErr   error
	listErr   error
	listCalls int
	mutations []string
}

func (h *fakeHost) Authenticate(context.Context) (*github.User, error) {
	if h.authErr != nil {
		return nil, h.authErr
	}
	return &github.User{Login: "octocat"}, nil
}

func (h *fakeHost) ListStarred(context.Context, string) ([]models.Repository, error) {
	return h.repos, h.starErr
}

func (h *fakeHost) ListNamedLists(context.Context) ([]models.RemoteList, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listCalls++
	if h.listErr != nil {
		return nil, h.listErr
	}
	return append([]models.RemoteList(nil), h.lists...), nil
}

func (h *fakeHost) CreateList(_ context.Context, name, description string) (*models.RemoteList, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutations = append(h.mutations, "create:"+name)
	l := models.RemoteList{ID: fmt.Sprintf("L%d", len(h.lists)+1), Name: name, Description: description}
	h.lists = append(h.lists, l)
	return &l, nil
}

func (h *fakeHost) UpdateList(_ context.Context, listID, description string) (*models.RemoteList, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutations = append(h.mutations, "update:"+listID)
	for i := range h.lists {
		if h.lists[i].ID == listID {
			h.lists[i].Description = description
			l := h.lists[i]
			return &l, nil
		}
	}
	return nil, errors.New("not found")
}

func (h *fakeHost) AddReposToList(_ context.Context, listID string, _ []int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutations = append(h.mutations, "add:"+listID)
	return nil
}

// categoryGateway classifies by the repo name suffix after "-" and records
// every prompt.
type categoryGateway struct {
	mu      sync.Mutex
	prompts []string
}

func (g *categoryGateway) Complete(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	for _, line := range strings.Split(prompt, "\n") {
		if name, ok := strings.CutPrefix(line, "- Name: "); ok {
			category := name[strings.LastIndex(name, "-")+1:]
			return fmt.Sprintf("```yaml\ncategory: %s\nreason: test\nconfidence: 0.9\n```", category), nil
		}
	}
	return "", errors.New("unexpected prompt")
}

type fakeRecorder struct {
	reports []models.Report
	err     error
}

func (f *fakeRecorder) RecordRun(_ context.Context, report models.Report, _ map[string]models.ClassificationResult) error {
	f.reports = append(f.reports, report)
	return f.err
}

func testConfig() config.Config {
	return config.Config{
		GitHubToken:  "ghp_test",
		OpenAIAPIKey: "sk-test",
		AIModel:      "test-model",
		Mode:         models.ModeAuto,
		SummaryOptions: config.SummaryOptions{
			AutoComplete:    true,
			EnhanceExisting: true,
			IncludeStats:    true,
		},
		Concurrency: 3,
	}
}

func starredRepos() []models.Repository {
	return []models.Repository{
		{ID: 1, FullName: "a/cli-Tools", StargazersCount: 10},
		{ID: 2, FullName: "a/fmt-Tools", StargazersCount: 5},
		{ID: 3, FullName: "a/site-Web", StargazersCount: 1},
		{ID: 4, FullName: "a/secret-Tools"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.ExcludeRepos = []string{"a/secret-Tools"}
	host := &fakeHost{repos: starredRepos()}
	gw := &categoryGateway{}
	rec := &fakeRecorder{}

	report, err := New(cfg, host, gw, rec, io.Discard, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "octocat", report.User)
	assert.Equal(t, 4, report.Starred)
	assert.Equal(t, 1, report.Excluded)
	assert.Equal(t, 3, report.Classified)
	assert.Equal(t, 2, report.Categories)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 3, report.TotalRepos)
	assert.Equal(t, models.ActionCreated, report.Results["Tools"].Action)
	assert.Equal(t, 2, report.Results["Tools"].ReposAdded)

	for _, p := range gw.prompts {
		assert.NotContains(t, p, "a/secret-Tools")
	}
	assert.Len(t, gw.prompts, 3)
	// Auto mode reads lists only once, for reconciliation.
	assert.Equal(t, 1, host.listCalls)
	require.Len(t, rec.reports, 1)
	assert.Equal(t, report.RunID, rec.reports[0].RunID)
}

func TestRunTwiceConverges(t *testing.T) {
	host := &fakeHost{repos: starredRepos()[:3]}
	c := New(testConfig(), host, &categoryGateway{}, &fakeRecorder{}, io.Discard, zap.NewNop())

	first, err := c.Run(context.Background())
	require.NoError(t, err)
	second, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ActionCreated, first.Results["Web"].Action)
	assert.Equal(t, models.ActionUpdated, second.Results["Web"].Action)
	assert.Len(t, host.lists, 2)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunDryRunIsPure(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	host := &fakeHost{repos: starredRepos()}

	report, err := New(cfg, host, &categoryGateway{}, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, host.mutations)
	assert.True(t, report.DryRun)
	assert.Equal(t, models.ActionDryRun, report.Results["Tools"].Action)
	assert.Equal(t, 3, report.Results["Tools"].ReposCount)
	assert.Equal(t, 4, report.TotalRepos)
}

func TestRunExistingListsModeConstrainsPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = models.ModeExistingLists
	host := &fakeHost{
		repos: starredRepos()[:1],
		lists: []models.RemoteList{{ID: "T", Name: "Tools", Description: "my tools"}},
	}
	gw := &categoryGateway{}

	report, err := New(cfg, host, gw, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, host.listCalls)
	require.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "   - Tools")
	assert.Equal(t, models.ActionUpdated, report.Results["Tools"].Action)
	assert.Equal(t, "T", report.Results["Tools"].ListID)
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		cfg := testConfig()
		cfg.GitHubToken = ""
		host := &fakeHost{}

		_, err := New(cfg, host, &categoryGateway{}, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())

		var cfgErr *config.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, []string{"github_token"}, cfgErr.Missing)
	})

	t.Run("authentication", func(t *testing.T) {
		host := &fakeHost{authErr: &github.HostError{Method: "GET", Path: "/user", StatusCode: 401}}

		_, err := New(testConfig(), host, &categoryGateway{}, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())

		var hostErr *github.HostError
		require.True(t, errors.As(err, &hostErr))
		assert.Equal(t, 401, hostErr.StatusCode)
	})

	t.Run("starred fetch", func(t *testing.T) {
		gw := &categoryGateway{}
		host := &fakeHost{starErr: errors.New("boom")}

		_, err := New(testConfig(), host, gw, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetching starred repositories")
		assert.Empty(t, gw.prompts)
	})
}

func TestRunListFetchFailure(t *testing.T) {
	t.Run("live run fails every category", func(t *testing.T) {
		host := &fakeHost{repos: starredRepos()[:3], listErr: errors.New("503")}
		var out bytes.Buffer

		report, err := New(testConfig(), host, &categoryGateway{}, &fakeRecorder{}, &out, zap.NewNop()).Run(context.Background())
		require.NoError(t, err)

		assert.Empty(t, host.mutations)
		assert.Equal(t, 2, report.Failed)
		assert.Zero(t, report.Successful)
		assert.Contains(t, report.Results["Web"].Error, "existing star lists unavailable")
		assert.Contains(t, out.String(), "existing star lists are unavailable")
	})

	t.Run("dry run continues", func(t *testing.T) {
		cfg := testConfig()
		cfg.DryRun = true
		host := &fakeHost{repos: starredRepos()[:3], listErr: errors.New("503")}

		report, err := New(cfg, host, &categoryGateway{}, &fakeRecorder{}, io.Discard, zap.NewNop()).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, report.Successful)
	})
}

func TestRecorderFailureIsNotFatal(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	host := &fakeHost{repos: starredRepos()[:1]}

	report, err := New(testConfig(), host, &categoryGateway{}, rec, io.Discard, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
	assert.Len(t, rec.reports, 1)
}

func TestRunWritesProgressToWriter(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	host := &fakeHost{repos: starredRepos()}
	var out bytes.Buffer

	_, err := New(cfg, host, &categoryGateway{}, &fakeRecorder{}, &out, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Fetched 4 starred repos (0 excluded)")
	assert.Contains(t, out.String(), "Classifying 4 repos with test-model")
	assert.Contains(t, out.String(), "DRY RUN: no changes will be made")
}
