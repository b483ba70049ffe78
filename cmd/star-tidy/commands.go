package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/llm"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
	"github.com/kevinmichaelchen/star-tidy/internal/store"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Configuration"))
			for _, kv := range cfg.Redacted() {
				value := kv[1]
				if value == "" {
					value = dimStyle.Render("(not set)")
				}
				fmt.Fprintf(w, "  %-20s %s\n", kv[0], value)
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(w)
				fmt.Fprintln(w, errStyle.Render(err.Error()))
			}
			return nil
		},
	}
}

// setupFile is the subset of Config written by the setup command.
type setupFile struct {
	GitHubToken    string                `yaml:"github_token"`
	OpenAIAPIKey   string                `yaml:"openai_api_key"`
	OpenAIAPIBase  string                `yaml:"openai_api_base"`
	AIModel        string                `yaml:"ai_model"`
	Mode           models.Mode           `yaml:"mode"`
	DryRun         bool                  `yaml:"dry_run"`
	ExcludeRepos   []string              `yaml:"exclude_repos,omitempty"`
	SummaryOptions config.SummaryOptions `yaml:"summary_options"`
}

func setupCmd() *cobra.Command {
	var (
		output string
		force  bool
		file   setupFile
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a config file",
		Long: `Writes a YAML config file. Values not given as flags are taken from the
current environment, and credentials still missing are prompted for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fill := func(dst *string, flag, fallback string) {
				if !cmd.Flags().Changed(flag) {
					*dst = fallback
				}
			}
			fill(&file.GitHubToken, "github-token", cfg.GitHubToken)
			fill(&file.OpenAIAPIKey, "openai-api-key", cfg.OpenAIAPIKey)
			fill(&file.OpenAIAPIBase, "api-base", cfg.OpenAIAPIBase)
			fill(&file.AIModel, "ai-model", cfg.AIModel)
			if !cmd.Flags().Changed("mode") {
				file.Mode = cfg.Mode
			}
			file.DryRun = cfg.DryRun
			file.ExcludeRepos = cfg.ExcludeRepos
			file.SummaryOptions = cfg.SummaryOptions

			in := bufio.NewReader(cmd.InOrStdin())
			if file.GitHubToken == "" {
				if file.GitHubToken, err = prompt(cmd.OutOrStdout(), in, "GitHub token"); err != nil {
					return err
				}
			}
			if file.OpenAIAPIKey == "" {
				if file.OpenAIAPIKey, err = prompt(cmd.OutOrStdout(), in, "OpenAI API key"); err != nil {
					return err
				}
			}

			data, err := yaml.Marshal(file)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.yaml", "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&file.GitHubToken, "github-token", "", "GitHub token")
	cmd.Flags().StringVar(&file.OpenAIAPIKey, "openai-api-key", "", "OpenAI API key")
	cmd.Flags().StringVar(&file.OpenAIAPIBase, "api-base", "", "OpenAI-compatible API base URL")
	cmd.Flags().StringVar(&file.AIModel, "ai-model", "", "Model name")
	cmd.Flags().StringVar((*string)(&file.Mode), "mode", "", "Classification mode: auto or existing_lists")
	return cmd
}

func prompt(w io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(w, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func testLLMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-llm",
		Short: "Check that the language model API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.OpenAIAPIKey == "" {
				return &config.ConfigError{Missing: []string{"openai_api_key"}}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := llm.NewClient(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, llm.Options{Model: cfg.AIModel}, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Testing %s at %s...\n", cfg.AIModel, cfg.OpenAIAPIBase)
			start := time.Now()
			reply, err := client.Ping(ctx)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), errStyle.Render("✗ connection failed"))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ connection ok")+
				dimStyle.Render(fmt.Sprintf(" (%s) %q", time.Since(start).Round(time.Millisecond), reply)))
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs and the latest category breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rec, err := store.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close(ctx) }()

			runs, err := rec.RecentRuns(ctx, n)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded")
				return nil
			}

			fmt.Fprintln(w, titleStyle.Render("Recent runs"))
			for _, r := range runs {
				flag := ""
				if r.DryRun {
					flag = warnStyle.Render(" (dry run)")
				}
				fmt.Fprintf(w, "  %-14s %-15s %3d categories  %3d ok  %3d failed  %5d repos%s\n",
					humanize.Time(r.StartedAt), r.Mode, r.Categories, r.Successful, r.Failed, r.TotalRepos, flag)
			}

			latest := runs[0]
			rows, err := rec.CategoryBreakdown(ctx, latest.ID)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, titleStyle.Render("Latest run ")+dimStyle.Render(latest.ID))
				for _, row := range rows {
					fmt.Fprintln(w, "  "+resultLine(row.Category, models.OperationResult{
						Success:    row.Success,
						Action:     row.Action,
						ReposAdded: row.Repos,
						ReposCount: row.Repos,
						Error:      row.Error,
					}))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10, "Number of runs to show")
	return cmd
}
