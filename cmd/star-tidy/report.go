package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func printReport(w io.Writer, r *models.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Run complete"))
	if r.DryRun {
		fmt.Fprintln(w, warnStyle.Render("DRY RUN: no changes were made"))
	}
	fmt.Fprintf(w, "  User:        %s\n", r.User)
	fmt.Fprintf(w, "  Mode:        %s\n", r.Mode)
	fmt.Fprintf(w, "  Starred:     %s (%d excluded)\n", humanize.Comma(int64(r.Starred)), r.Excluded)
	fmt.Fprintf(w, "  Classified:  %s\n", humanize.Comma(int64(r.Classified)))
	fmt.Fprintf(w, "  Categories:  %d (%d ok, %d failed)\n", r.Categories, r.Successful, r.Failed)
	fmt.Fprintf(w, "  Repos:       %s\n", humanize.Comma(int64(r.TotalRepos)))
	fmt.Fprintf(w, "  Run ID:      %s\n", dimStyle.Render(r.RunID))

	if len(r.Results) == 0 {
		return
	}

	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Categories"))
	for _, name := range names {
		fmt.Fprintln(w, "  "+resultLine(name, r.Results[name]))
	}
}

func resultLine(name string, res models.OperationResult) string {
	switch {
	case !res.Success:
		return errStyle.Render("✗") + fmt.Sprintf(" %s: Failed - %s", name, res.Error)
	case res.Action == models.ActionDryRun:
		return warnStyle.Render("⚠") + fmt.Sprintf(" %s: %d repos (dry run)", name, res.RepoCount())
	default:
		return okStyle.Render("✓") + fmt.Sprintf(" %s: %d repos (%s)", name, res.RepoCount(), res.Action)
	}
}
