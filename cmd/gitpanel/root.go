package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rancher/gitpanel/internal/app"
	"github.com/rancher/gitpanel/internal/dispatch"
	gh "github.com/rancher/gitpanel/internal/github"
	"github.com/rancher/gitpanel/internal/notify"
	"github.com/rancher/gitpanel/internal/store"
)

// coreFactory builds the application core for a command invocation.
type coreFactory func(cfg app.Config, logger *slog.Logger, sink notify.Sink) (*app.Core, error)

func defaultCoreFactory(cfg app.Config, logger *slog.Logger, sink notify.Sink) (*app.Core, error) {
	return app.NewCoreWithDeps(cfg, app.Deps{Logger: logger, Sink: sink})
}

type globalOptions struct {
	workDir   string
	storePath string
	logLevel  string
	logFormat string
	dryRun    bool
	verbose   bool
}

type cli struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	newCore coreFactory
	opts    globalOptions
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer, factory coreFactory) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr, newCore: factory}

	root := &cobra.Command{
		Use:   "gitpanel",
		Short: "Drive a local git repository and a linked GitHub account",
		Long: `gitpanel runs a fixed set of git actions against the current repository,
links a GitHub account through the OAuth device flow, and answers questions
about the repository through a configurable chat model.

Examples:
  gitpanel status
  gitpanel commit --message "Fix typo"
  gitpanel create-branch --name feature/login
  gitpanel login
  gitpanel serve < commands.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.opts.workDir, "workdir", "C", "", "Repository directory (defaults to the current directory)")
	flags.StringVar(&c.opts.storePath, "store", "", "Path of the secrets and settings file")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&c.opts.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&c.opts.dryRun, "dry-run", false, "Log git commands instead of running them")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "Enable debug logging")

	for _, action := range dispatch.Actions() {
		root.AddCommand(c.actionCmd(action))
	}
	root.AddCommand(c.loginCmd(), c.logoutCmd(), c.statsCmd(), c.chatCmd(), c.settingsCmd(), c.serveCmd())

	return root
}

// config loads environment configuration and applies flags that were set
// explicitly.
func (c *cli) config(cmd *cobra.Command) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("workdir") {
		cfg.WorkDir = c.opts.workDir
	}
	if flags.Changed("store") {
		cfg.StorePath = c.opts.storePath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(c.opts.logLevel))
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(c.opts.logFormat))
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = c.opts.dryRun
	}
	if flags.Changed("verbose") {
		cfg.Verbose = c.opts.verbose
	}

	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func (c *cli) core(cmd *cobra.Command, sink func(*slog.Logger) notify.Sink) (*app.Core, error) {
	cfg, err := c.config(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(c.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	var s notify.Sink = notify.Log{Logger: logger}
	if sink != nil {
		s = sink(logger)
	}
	return c.newCore(cfg, logger, s)
}

func (c *cli) actionCmd(action dispatch.Action) *cobra.Command {
	var payload dispatch.Payload

	cmd := &cobra.Command{
		Use:   string(action),
		Short: actionSummaries[action],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, nil)
			if err != nil {
				return err
			}

			result := core.RunGitAction(cmd.Context(), action, payload)
			if !result.Succeeded {
				return errors.New(result.ErrorMessage)
			}
			_, err = fmt.Fprintln(c.stdout, app.RenderResult(result))
			return err
		},
	}

	switch action {
	case dispatch.ActionCommit:
		cmd.Flags().StringVarP(&payload.Message, "message", "m", "", "Commit message")
	case dispatch.ActionSetRemote:
		cmd.Flags().StringVar(&payload.URL, "url", "", "Remote URL for origin")
	case dispatch.ActionCreateBranch, dispatch.ActionDeleteBranch, dispatch.ActionSwitchBranch, dispatch.ActionMergeBranch:
		cmd.Flags().StringVar(&payload.Name, "name", "", "Branch name")
	}
	return cmd
}

var actionSummaries = map[dispatch.Action]string{
	dispatch.ActionStatus:       "Show the short working tree status",
	dispatch.ActionPush:         "Push the current branch to origin",
	dispatch.ActionPull:         "Pull from origin",
	dispatch.ActionFetch:        "Fetch from origin",
	dispatch.ActionCommit:       "Commit staged changes",
	dispatch.ActionFastPush:     "Stage everything, commit, and push",
	dispatch.ActionStash:        "Stash local changes",
	dispatch.ActionSetRemote:    "Add or update the origin remote",
	dispatch.ActionCreateBranch: "Create and switch to a branch",
	dispatch.ActionDeleteBranch: "Force delete a branch",
	dispatch.ActionSwitchBranch: "Switch to a branch",
	dispatch.ActionMergeBranch:  "Merge a branch into the current branch",
}

// deviceCodePrinter shows device flow prompts on a terminal.
type deviceCodePrinter struct {
	w io.Writer
}

func (p deviceCodePrinter) Notify(n notify.Notification) {
	if code, ok := n.Payload.(notify.DeviceCode); ok && n.Type == notify.TypeShowDeviceCode {
		_, _ = fmt.Fprintf(p.w, "Open %s and enter code %s\n", code.VerificationURI, code.UserCode)
	}
}

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Link a GitHub account with the device flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, func(logger *slog.Logger) notify.Sink {
				return notify.Multi{notify.Log{Logger: logger}, deviceCodePrinter{w: c.stdout}}
			})
			if err != nil {
				return err
			}

			flow, err := core.LoginWithDeviceFlow(cmd.Context())
			if err != nil {
				return err
			}

			select {
			case <-flow.Done():
			case <-cmd.Context().Done():
				flow.Cancel()
				<-flow.Done()
			}

			if status := flow.Status(); status != gh.FlowSucceeded {
				return fmt.Errorf("login %s", status)
			}

			name := "GitHub"
			if p := core.Profile(); p != nil {
				name = p.DisplayName
			}
			_, err = fmt.Fprintf(c.stdout, "Logged in as %s\n", name)
			return err
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, nil)
			if err != nil {
				return err
			}
			return core.Logout(cmd.Context())
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show repository and account details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, nil)
			if err != nil {
				return err
			}

			stats := core.Stats(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			_, err = fmt.Fprint(c.stdout, app.RenderStats(stats))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask the configured model about the repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := c.core(cmd, nil)
			if err != nil {
				return err
			}

			reply, err := core.SubmitChatQuery(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.stdout, reply)
			return err
		},
	}
}

func (c *cli) settingsCmd() *cobra.Command {
	var (
		next   store.Settings
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update chat settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			current := core.RequestSettings(ctx)
			flags := cmd.Flags()
			if flags.Changed("provider") || flags.Changed("base-url") || flags.Changed("model") || flags.Changed("api-key") {
				merged := store.Settings{Provider: current.Provider, BaseURL: current.BaseURL, ModelName: current.ModelName}
				if flags.Changed("provider") {
					merged.Provider = strings.TrimSpace(next.Provider)
				}
				if flags.Changed("base-url") {
					merged.BaseURL = strings.TrimSpace(next.BaseURL)
				}
				if flags.Changed("model") {
					merged.ModelName = strings.TrimSpace(next.ModelName)
				}
				if err := core.SaveSettings(ctx, merged, strings.TrimSpace(apiKey)); err != nil {
					return err
				}
				current = core.RequestSettings(ctx)
			}

			_, err = fmt.Fprintf(c.stdout, "provider: %s\nbase url: %s\nmodel: %s\napi key set: %t\n",
				current.Provider, current.BaseURL, current.ModelName, current.HasAPIKey)
			return err
		},
	}

	cmd.Flags().StringVar(&next.Provider, "provider", "", "Chat provider: gemini or openai")
	cmd.Flags().StringVar(&next.BaseURL, "base-url", "", "Base URL of an OpenAI compatible endpoint")
	cmd.Flags().StringVar(&next.ModelName, "model", "", "Model name")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the chat provider")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Read JSON commands from stdin and write JSON notifications to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := c.core(cmd, func(logger *slog.Logger) notify.Sink {
				return notify.NewJSON(c.stdout, logger)
			})
			if err != nil {
				return err
			}
			return core.Serve(cmd.Context(), c.stdin)
		},
	}
}
