package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/github"
	"github.com/kevinmichaelchen/star-tidy/internal/llm"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
	"github.com/kevinmichaelchen/star-tidy/internal/pipeline"
	"github.com/kevinmichaelchen/star-tidy/internal/store"
)

type runOptions struct {
	mode            string
	dryRun          bool
	autoComplete    bool
	enhanceExisting bool
	useAISummary    bool
	includeStats    bool
	excludeRepos    []string
	aiModel         string
	apiBase         string
	maxTokens       int
	temperature     float32
	concurrency     int
	noHistory       bool
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify starred repositories and reconcile star lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	f := cmd.Flags()
	f.StringVar(&o.mode, "mode", "", "Classification mode: auto or existing_lists")
	f.BoolVar(&o.dryRun, "dry-run", false, "Compute everything but change nothing on GitHub")
	f.BoolVar(&o.autoComplete, "auto-complete-summaries", false, "Write descriptions for lists that have none")
	f.BoolVar(&o.enhanceExisting, "enhance-existing-summaries", false, "Revise existing list descriptions")
	f.BoolVar(&o.useAISummary, "use-ai-summary", false, "Generate descriptions with the language model")
	f.BoolVar(&o.includeStats, "include-stats", false, "Include star totals in generated descriptions")
	f.StringArrayVar(&o.excludeRepos, "exclude-repo", nil, "Skip a repository by full name (repeatable)")
	f.StringVar(&o.aiModel, "ai-model", "", "Model name")
	f.StringVar(&o.apiBase, "api-base", "", "OpenAI-compatible API base URL")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "Maximum completion tokens")
	f.Float32Var(&o.temperature, "temperature", 0, "Sampling temperature")
	f.IntVar(&o.concurrency, "concurrency", 0, "Concurrent model and GitHub calls")
	f.BoolVar(&o.noHistory, "no-history", false, "Do not record this run")
}

// apply overrides cfg with the flags that were set explicitly, so an unset
// boolean flag never clobbers a value from the environment or config file.
func (o runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Mode = models.Mode(o.mode)
	}
	if f.Changed("dry-run") {
		cfg.DryRun = o.dryRun
	}
	if f.Changed("auto-complete-summaries") {
		cfg.SummaryOptions.AutoComplete = o.autoComplete
	}
	if f.Changed("enhance-existing-summaries") {
		cfg.SummaryOptions.EnhanceExisting = o.enhanceExisting
	}
	if f.Changed("use-ai-summary") {
		cfg.SummaryOptions.UseAISummary = o.useAISummary
	}
	if f.Changed("include-stats") {
		cfg.SummaryOptions.IncludeStats = o.includeStats
	}
	cfg.ExcludeRepos = append(cfg.ExcludeRepos, o.excludeRepos...)
	if f.Changed("ai-model") {
		cfg.AIModel = o.aiModel
	}
	if f.Changed("api-base") {
		cfg.OpenAIAPIBase = o.apiBase
	}
	if f.Changed("max-tokens") {
		cfg.MaxTokens = o.maxTokens
	}
	if f.Changed("temperature") {
		t := o.temperature
		cfg.Temperature = &t
	}
	if f.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	recorder := openRecorder(ctx, cfg, opts.noHistory, cmd.OutOrStdout())
	defer func() { _ = recorder.Close(ctx) }()

	host := github.NewClient(ctx, cfg.GitHubAPIURL, cfg.GitHubToken, cfg.MaxStarred, logger)
	gateway := llm.NewClient(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, llm.Options{
		Model:       cfg.AIModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		RatePerMin:  cfg.RateLimitPerMin,
	}, logger)

	report, err := pipeline.New(cfg, host, gateway, recorder, cmd.OutOrStdout(), logger).Run(ctx)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// openRecorder returns the run history store, or store.Nop when history is
// disabled or the store cannot be opened. History never blocks a run.
func openRecorder(ctx context.Context, cfg config.Config, disabled bool, w io.Writer) store.Recorder {
	if disabled {
		return store.Nop{}
	}
	rec, err := store.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(w, "WARN: run history disabled: %v\n", err)
		return store.Nop{}
	}
	return rec
}
