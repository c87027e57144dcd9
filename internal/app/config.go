package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultGitHubScopes   = "repo,read:user,user:email"
	defaultNetworkTimeout = 2 * time.Minute
)

// Config captures runtime options sourced from environment variables. CLI
// flags are applied on top by the caller.
type Config struct {
	LogLevel        string
	LogFormat       string
	Verbose         bool
	WorkDir         string
	DryRun          bool
	GitHubClientID  string
	GitHubScopes    []string
	GitHubURL       string
	GitHubAPIURL    string
	GitHubUploadURL string
	StorePath       string
	NetworkTimeout  time.Duration
}

// LoadConfig reads GITPANEL_* variables from the environment, applies
// defaults, and performs validation.
func LoadConfig() (Config, error) {
	cfg := Config{
		LogLevel:        strings.ToLower(strings.TrimSpace(envOrDefault("GITPANEL_LOG_LEVEL", defaultLogLevel))),
		LogFormat:       strings.ToLower(strings.TrimSpace(envOrDefault("GITPANEL_LOG_FORMAT", defaultLogFormat))),
		WorkDir:         strings.TrimSpace(os.Getenv("GITPANEL_WORKDIR")),
		GitHubClientID:  strings.TrimSpace(os.Getenv("GITPANEL_GITHUB_CLIENT_ID")),
		GitHubScopes:    parseList(envOrDefault("GITPANEL_GITHUB_SCOPES", defaultGitHubScopes)),
		GitHubURL:       strings.TrimSpace(os.Getenv("GITPANEL_GITHUB_URL")),
		GitHubAPIURL:    strings.TrimSpace(os.Getenv("GITPANEL_GITHUB_API_URL")),
		GitHubUploadURL: strings.TrimSpace(os.Getenv("GITPANEL_GITHUB_UPLOAD_URL")),
		StorePath:       strings.TrimSpace(os.Getenv("GITPANEL_STORE_PATH")),
		NetworkTimeout:  defaultNetworkTimeout,
	}

	if rawDryRun := strings.TrimSpace(os.Getenv("GITPANEL_DRY_RUN")); rawDryRun != "" {
		dryRun, err := strconv.ParseBool(rawDryRun)
		if err != nil {
			return Config{}, fmt.Errorf("parse GITPANEL_DRY_RUN: %w", err)
		}
		cfg.DryRun = dryRun
	}

	if rawVerbose := strings.TrimSpace(os.Getenv("GITPANEL_VERBOSE")); rawVerbose != "" {
		verbose, err := strconv.ParseBool(rawVerbose)
		if err != nil {
			return Config{}, fmt.Errorf("parse GITPANEL_VERBOSE: %w", err)
		}
		cfg.Verbose = verbose
	}

	if rawTimeout := strings.TrimSpace(os.Getenv("GITPANEL_NETWORK_TIMEOUT")); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse GITPANEL_NETWORK_TIMEOUT: %w", err)
		}
		cfg.NetworkTimeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fills defaults and checks option combinations. It is safe to call
// again after flags have modified the config.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.GitHubAPIURL == "" && c.GitHubUploadURL != "" {
		return fmt.Errorf("GITPANEL_GITHUB_UPLOAD_URL requires GITPANEL_GITHUB_API_URL for GitHub Enterprise")
	}

	if c.Verbose {
		c.LogLevel = "debug"
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r'
	})

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}
