package models

import "time"

// Repository is a starred repository as returned by the host.
type Repository struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     *string  `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Language        *string  `json:"language"`
	Topics          []string `json:"topics"`
	StargazersCount int      `json:"stargazers_count"`
}

// RemoteList is a named list of starred repositories on the host.
type RemoteList struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Mode selects how categories are chosen.
type Mode string

const (
	ModeAuto          Mode = "auto"
	ModeExistingLists Mode = "existing_lists"
)

// Uncategorized is the category used when nothing fits or classification fails.
const Uncategorized = "Uncategorized"

// ClassificationResult is one repository's category assignment.
type ClassificationResult struct {
	Category   string  `json:"category"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Operation actions recorded in OperationResult.Action.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDryRun  = "dry_run"
)

// OperationResult is the outcome of reconciling one category.
type OperationResult struct {
	Success             bool     `json:"success"`
	Action              string   `json:"action,omitempty"`
	ListID              string   `json:"list_id,omitempty"`
	ReposAdded          int      `json:"repos_added,omitempty"`
	ReposCount          int      `json:"repos_count,omitempty"`
	Repos               []string `json:"repos,omitempty"`
	EnhancedDescription string   `json:"enhanced_description,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// RepoCount is the number reported for a category: repos attached on a live
// run, repos that would be attached on a dry run.
func (r OperationResult) RepoCount() int {
	if r.Action == ActionDryRun {
		return r.ReposCount
	}
	return r.ReposAdded
}

// Report summarizes a pipeline run for the CLI and run history.
type Report struct {
	RunID      string                     `json:"run_id"`
	Mode       Mode                       `json:"mode"`
	DryRun     bool                       `json:"dry_run"`
	User       string                     `json:"user"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Starred    int                        `json:"starred"`
	Excluded   int                        `json:"excluded"`
	Classified int                        `json:"classified"`
	Results    map[string]OperationResult `json:"results"`
	Categories int                        `json:"categories"`
	Successful int                        `json:"successful"`
	Failed     int                        `json:"failed"`
	TotalRepos int                        `json:"total_repos"`
}

// Tally fills the aggregate counts from Results.
func (r *Report) Tally() {
	r.Categories = len(r.Results)
	r.Successful, r.Failed, r.TotalRepos = 0, 0, 0
	for _, res := range r.Results {
		if res.Success {
			r.Successful++
			r.TotalRepos += res.RepoCount()
		} else {
			r.Failed++
		}
	}
}
