package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportTally(t *testing.T) {
	r := &Report{Results: map[string]OperationResult{
		"Tools": {Success: true, Action: ActionCreated, ReposAdded: 3},
		"Web":   {Success: true, Action: ActionDryRun, ReposCount: 2, Repos: []string{"a/b", "a/c"}},
		"Data":  {Success: false, Error: "boom"},
	}}
	r.Tally()

	assert.Equal(t, 3, r.Categories)
	assert.Equal(t, 2, r.Successful)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 5, r.TotalRepos)
}

func TestRepoCountUsesActionSpecificField(t *testing.T) {
	assert.Equal(t, 4, OperationResult{Action: ActionUpdated, ReposAdded: 4}.RepoCount())
	assert.Equal(t, 7, OperationResult{Action: ActionDryRun, ReposCount: 7}.RepoCount())
}
