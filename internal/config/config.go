package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

type SummaryOptions struct {
	AutoComplete    bool `yaml:"auto_complete"`
	EnhanceExisting bool `yaml:"enhance_existing"`
	UseAISummary    bool `yaml:"use_ai_summary"`
	IncludeStats    bool `yaml:"include_stats"`
}

// Config is the immutable snapshot of options for one run. It is passed by
// value; nothing downstream reads the environment.
type Config struct {
	GitHubToken  string `yaml:"github_token"`
	GitHubAPIURL string `yaml:"github_api_url"`
	MaxStarred   int    `yaml:"max_starred"`

	OpenAIAPIKey  string   `yaml:"openai_api_key"`
	OpenAIAPIBase string   `yaml:"openai_api_base"`
	AIModel       string   `yaml:"ai_model"`
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   *float32 `yaml:"temperature"`

	Mode           models.Mode    `yaml:"mode"`
	DryRun         bool           `yaml:"dry_run"`
	ExcludeRepos   []string       `yaml:"exclude_repos"`
	SummaryOptions SummaryOptions `yaml:"summary_options"`

	Concurrency     int `yaml:"concurrency"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`

	HistoryPath string `yaml:"history_path"`
	SurrealURL  string `yaml:"surreal_url"`
	SurrealNS   string `yaml:"surreal_ns"`
	SurrealDB   string `yaml:"surreal_db"`
	SurrealUser string `yaml:"surreal_user"`
	SurrealPass string `yaml:"surreal_pass"`

	// Source is the config file that was merged in, if any.
	Source string `yaml:"-"`
}

// Candidate config file names, searched in the working directory.
var searchFiles = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	".star-tidy.yaml",
	".star-tidy.yml",
	".star-tidy.json",
}

func defaults() Config {
	return Config{
		GitHubAPIURL:  "https://api.github.com",
		MaxStarred:    1000,
		OpenAIAPIBase: "https://api.openai.com/v1",
		AIModel:       "gpt-4o-mini",
		Mode:          models.ModeAuto,
		SummaryOptions: SummaryOptions{
			AutoComplete:    true,
			EnhanceExisting: true,
			UseAISummary:    true,
			IncludeStats:    true,
		},
		Concurrency: 5,
		HistoryPath: filepath.Join(dataDir(), "history.db"),
	}
}

// Load builds a Config from defaults, .env, environment variables and a
// config file, in increasing priority. explicit may be empty, in which case
// CONFIG_FILE and then the working directory are searched.
func Load(explicit string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	path, err := resolvePath(explicit)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.Source = path
	}

	cfg.normalize()
	return cfg, nil
}

func resolvePath(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv("CONFIG_FILE")
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, name := range searchFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

func (c *Config) applyEnv() error {
	setString(&c.GitHubToken, "GITHUB_TOKEN")
	setString(&c.GitHubAPIURL, "GITHUB_API_URL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIAPIBase, "OPENAI_API_BASE")
	setString(&c.AIModel, "AI_MODEL")
	setString(&c.HistoryPath, "HISTORY_PATH")
	setString(&c.SurrealURL, "SURREAL_URL")
	setString(&c.SurrealNS, "SURREAL_NS")
	setString(&c.SurrealDB, "SURREAL_DB")
	setString(&c.SurrealUser, "SURREAL_USER")
	setString(&c.SurrealPass, "SURREAL_PASS")

	if v := os.Getenv("STAR_TIDY_MODE"); v != "" {
		c.Mode = models.Mode(v)
	}
	if v := os.Getenv("EXCLUDE_REPOS"); v != "" {
		c.ExcludeRepos = SplitList(v)
	}

	for key, dst := range map[string]*bool{
		"DRY_RUN":                    &c.DryRun,
		"AUTO_COMPLETE_SUMMARIES":    &c.SummaryOptions.AutoComplete,
		"ENHANCE_EXISTING_SUMMARIES": &c.SummaryOptions.EnhanceExisting,
		"USE_AI_SUMMARY":             &c.SummaryOptions.UseAISummary,
		"INCLUDE_STATS":              &c.SummaryOptions.IncludeStats,
	} {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}

	for key, dst := range map[string]*int{
		"MAX_TOKENS":         &c.MaxTokens,
		"CONCURRENCY":        &c.Concurrency,
		"RATE_LIMIT_PER_MIN": &c.RateLimitPerMin,
		"MAX_STARRED":        &c.MaxStarred,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("parsing TEMPERATURE: %w", err)
		}
		t := float32(f)
		c.Temperature = &t
	}
	return nil
}

func (c *Config) normalize() {
	c.OpenAIAPIBase = strings.TrimSuffix(c.OpenAIAPIBase, "/")
	c.GitHubAPIURL = strings.TrimSuffix(c.GitHubAPIURL, "/")
	// The SDK appends /rpc automatically
	c.SurrealURL = strings.TrimSuffix(c.SurrealURL, "/rpc")
	c.SurrealURL = strings.TrimSuffix(c.SurrealURL, "/")
}

// Validate checks credentials and option ranges. Missing credentials are
// reported together in a single *ConfigError.
func (c Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "github_token")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "openai_api_key")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	if c.Mode != models.ModeAuto && c.Mode != models.ModeExistingLists {
		return &ConfigError{Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if c.Concurrency < 1 {
		return &ConfigError{Reason: fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency)}
	}
	return nil
}

// ExcludeSet returns ExcludeRepos as a lookup set.
func (c Config) ExcludeSet() map[string]bool {
	set := make(map[string]bool, len(c.ExcludeRepos))
	for _, name := range c.ExcludeRepos {
		set[name] = true
	}
	return set
}

// Redacted returns the configuration as display pairs with secrets masked.
func (c Config) Redacted() [][2]string {
	temp := ""
	if c.Temperature != nil {
		temp = strconv.FormatFloat(float64(*c.Temperature), 'f', -1, 32)
	}
	return [][2]string{
		{"github_token", mask(c.GitHubToken)},
		{"github_api_url", c.GitHubAPIURL},
		{"openai_api_key", mask(c.OpenAIAPIKey)},
		{"openai_api_base", c.OpenAIAPIBase},
		{"ai_model", c.AIModel},
		{"max_tokens", strconv.Itoa(c.MaxTokens)},
		{"temperature", temp},
		{"mode", string(c.Mode)},
		{"dry_run", strconv.FormatBool(c.DryRun)},
		{"exclude_repos", strings.Join(c.ExcludeRepos, ", ")},
		{"auto_complete", strconv.FormatBool(c.SummaryOptions.AutoComplete)},
		{"enhance_existing", strconv.FormatBool(c.SummaryOptions.EnhanceExisting)},
		{"use_ai_summary", strconv.FormatBool(c.SummaryOptions.UseAISummary)},
		{"include_stats", strconv.FormatBool(c.SummaryOptions.IncludeStats)},
		{"concurrency", strconv.Itoa(c.Concurrency)},
		{"rate_limit_per_min", strconv.Itoa(c.RateLimitPerMin)},
		{"max_starred", strconv.Itoa(c.MaxStarred)},
		{"history_path", c.HistoryPath},
		{"surreal_url", c.SurrealURL},
		{"config_file", c.Source},
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return secret[:len(secret)/2] + "..."
	}
	return secret[:8] + "..."
}

// dataDir returns the XDG data directory for star-tidy.
func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "star-tidy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "star-tidy")
}
