package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rancher/gitpanel/internal/chat"
	"github.com/rancher/gitpanel/internal/dispatch"
	"github.com/rancher/gitpanel/internal/event"
	"github.com/rancher/gitpanel/internal/git"
	gh "github.com/rancher/gitpanel/internal/github"
	"github.com/rancher/gitpanel/internal/notify"
	"github.com/rancher/gitpanel/internal/store"
)

// ErrLoginUnavailable is returned when no OAuth client id is configured.
var ErrLoginUnavailable = errors.New("device login unavailable: GITPANEL_GITHUB_CLIENT_ID is not set")

// ChatFactory builds a chat client for the stored settings.
type ChatFactory func(ctx context.Context, settings store.Settings, apiKey string) (chat.Client, error)

// Deps are the collaborators of a Core. Zero fields are filled from Config by
// NewCore.
type Deps struct {
	Logger        *slog.Logger
	Runner        git.Runner
	Store         store.Store
	Sink          notify.Sink
	GitHub        gh.Factory
	Authenticator *gh.Authenticator
	Chat          ChatFactory
}

// Core owns the repository facade, the dispatcher, and the account state for
// one working directory.
type Core struct {
	cfg        Config
	log        *slog.Logger
	repo       *git.Repository
	dispatcher *dispatch.Dispatcher
	store      store.Store
	sink       notify.Sink
	auth       *gh.Authenticator
	profiles   *gh.ProfileResolver
	newChat    ChatFactory

	// mu serializes repository access.
	mu sync.Mutex

	profileMu sync.RWMutex
	profile   *gh.ProfileSummary
}

// NewCore constructs a Core from cfg, building default collaborators.
func NewCore(cfg Config) (*Core, error) {
	logger, err := NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return NewCoreWithDeps(cfg, Deps{Logger: logger})
}

// NewCoreWithDeps constructs a Core with injected dependencies.
func NewCoreWithDeps(cfg Config, deps Deps) (*Core, error) {
	log := deps.Logger

	runner := deps.Runner
	if runner == nil {
		if cfg.DryRun {
			runner = git.NewDryRunRunner(log)
		} else {
			shell := git.NewShellRunner()
			shell.NetworkTimeout = cfg.NetworkTimeout
			runner = shell
		}
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			workDir = cwd
		}
	}
	repo := git.NewRepository(git.ResolveWorkDir(workDir), runner, log)

	st := deps.Store
	if st == nil {
		path := cfg.StorePath
		if path == "" {
			p, err := store.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		fs, err := store.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		st = fs
	}

	sink := deps.Sink
	if sink == nil {
		sink = notify.Noop{}
	}

	factory := deps.GitHub
	if factory == nil {
		factory = gh.NewRESTFactory(cfg.GitHubAPIURL, cfg.GitHubUploadURL)
	}

	auth := deps.Authenticator
	if auth == nil && cfg.GitHubClientID != "" {
		a, err := gh.NewAuthenticator(gh.AuthenticatorConfig{
			ClientID: cfg.GitHubClientID,
			Scopes:   cfg.GitHubScopes,
			WebURL:   cfg.GitHubURL,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("configure device login: %w", err)
		}
		auth = a
	}

	newChat := deps.Chat
	if newChat == nil {
		newChat = func(ctx context.Context, settings store.Settings, apiKey string) (chat.Client, error) {
			return chat.New(ctx, settings, apiKey, log)
		}
	}

	c := &Core{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		store:    st,
		sink:     sink,
		auth:     auth,
		profiles: gh.NewProfileResolver(factory, log),
		newChat:  newChat,
	}
	c.dispatcher = dispatch.New(repo, dispatch.RefreshFunc(c.refreshLocked), log)
	return c, nil
}

// Repository returns the facade driven by this core.
func (c *Core) Repository() *git.Repository { return c.repo }

// Start shows the dashboard when a token is stored and the setup view
// otherwise.
func (c *Core) Start(ctx context.Context) {
	if c.log != nil {
		c.log.Info("starting gitpanel", "workdir", c.repo.WorkDir(), "dry_run", c.cfg.DryRun, "device_login", c.auth != nil)
	}
	if _, err := c.store.Get(ctx, store.KeyGitHubToken); err != nil {
		c.sink.Notify(notify.ShowSetup())
		return
	}
	c.sink.Notify(notify.ShowDashboard())
	c.Refresh(ctx)
}

// RunGitAction dispatches a git action, notifies its result, and returns it.
func (c *Core) RunGitAction(ctx context.Context, action dispatch.Action, payload dispatch.Payload) dispatch.Result {
	c.mu.Lock()
	result := c.dispatcher.Dispatch(ctx, action, payload)
	c.mu.Unlock()

	c.sink.Notify(notify.ActionResult(result))
	return result
}

// RejectGitAction reports a git action refused at the command boundary. It
// notifies the failed result after the usual stats refresh.
func (c *Core) RejectGitAction(ctx context.Context, action dispatch.Action, err error) dispatch.Result {
	c.mu.Lock()
	result := c.dispatcher.Reject(ctx, action, err)
	c.mu.Unlock()

	c.sink.Notify(notify.ActionResult(result))
	return result
}

// Refresh emits updateStats for the current repository and account.
func (c *Core) Refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
}

// Stats collects the current repository and account view.
func (c *Core) Stats(ctx context.Context) notify.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked(ctx)
}

func (c *Core) refreshLocked(ctx context.Context) {
	c.sink.Notify(notify.UpdateStats(c.statsLocked(ctx)))
}

func (c *Core) statsLocked(ctx context.Context) notify.Stats {
	stats := notify.Stats{
		Branch:   c.repo.CurrentBranch(ctx),
		Remote:   c.repo.RemoteURL(ctx),
		Status:   c.repo.Status(ctx),
		RepoName: c.repo.RepositoryName(ctx),
		RepoPath: c.repo.WorkDir(),
	}
	if user := c.resolveUser(ctx); user != nil {
		stats.User = *user
	}
	return stats
}

// resolveUser refreshes the cached profile when a token is stored. A failed
// lookup keeps the previous profile, or a placeholder when there is none.
func (c *Core) resolveUser(ctx context.Context) *gh.ProfileSummary {
	token, err := c.store.Get(ctx, store.KeyGitHubToken)
	if err != nil {
		return nil
	}

	summary, err := c.profiles.FetchProfile(ctx, token)
	if err == nil {
		c.setProfile(&summary)
		return &summary
	}

	if c.log != nil {
		c.log.Warn("profile lookup failed", "error", err, "retryable", gh.IsRetryable(err))
	}
	if cached := c.Profile(); cached != nil {
		return cached
	}
	return &gh.ProfileSummary{DisplayName: "GitHub User"}
}

// Profile returns the cached profile, or nil.
func (c *Core) Profile() *gh.ProfileSummary {
	c.profileMu.RLock()
	defer c.profileMu.RUnlock()
	if c.profile == nil {
		return nil
	}
	p := *c.profile
	return &p
}

func (c *Core) setProfile(p *gh.ProfileSummary) {
	c.profileMu.Lock()
	defer c.profileMu.Unlock()
	c.profile = p
}

// LoginWithDeviceFlow starts a device authorization flow, replacing any flow
// in progress. The user code is announced through showDeviceCode; on success
// the token is stored, injected into an HTTPS origin, and the dashboard is
// shown. Any authentication failure falls back to showSetup.
func (c *Core) LoginWithDeviceFlow(ctx context.Context) (*gh.Flow, error) {
	if c.auth == nil {
		c.sink.Notify(notify.ShowSetup())
		return nil, ErrLoginUnavailable
	}

	flow, err := c.auth.Start(ctx, gh.FlowCallbacks{
		OnCode: func(code gh.DeviceCode) {
			c.sink.Notify(notify.ShowDeviceCode(code.UserCode, code.VerificationURI))
		},
		OnToken: func(token string) {
			c.completeLogin(ctx, token)
		},
		OnError: func(err error) {
			if c.log != nil {
				c.log.Warn("device login failed", "error", err)
			}
			c.sink.Notify(notify.ShowSetup())
		},
	})
	if errors.Is(err, gh.ErrFlowCancelled) {
		return nil, err
	}
	if err != nil {
		if c.log != nil {
			c.log.Warn("device login could not start", "error", err)
		}
		c.sink.Notify(notify.ShowSetup())
		return nil, err
	}
	return flow, nil
}

func (c *Core) completeLogin(ctx context.Context, token string) {
	if err := c.store.Set(ctx, store.KeyGitHubToken, token); err != nil && c.log != nil {
		c.log.Warn("store github token", "error", err)
	}

	c.mu.Lock()
	update, err := c.repo.UpdateRemoteWithToken(ctx, token)
	c.mu.Unlock()
	switch {
	case err != nil && !errors.Is(err, git.ErrNoRepository):
		if c.log != nil {
			c.log.Warn("update origin with token", "error", err)
		}
	case update.Updated:
		if c.log != nil {
			c.log.Info("origin updated with token")
		}
	}

	c.sink.Notify(notify.ShowDashboard())
	c.Refresh(ctx)
}

// Logout cancels any pending login, forgets the token and profile, and shows
// the setup view.
func (c *Core) Logout(ctx context.Context) error {
	if c.auth != nil {
		c.auth.Cancel()
	}
	c.setProfile(nil)

	err := c.store.Delete(ctx, store.KeyGitHubToken)
	if err != nil && c.log != nil {
		c.log.Warn("delete github token", "error", err)
	}
	c.sink.Notify(notify.ShowSetup())
	return err
}

// SubmitChatQuery echoes text as a user message and answers it with the
// configured chat backend.
func (c *Core) SubmitChatQuery(ctx context.Context, text string) (string, error) {
	c.sink.Notify(notify.ChatMessage(chat.RoleUser, text))

	settings, err := c.store.Settings(ctx)
	if err != nil {
		settings = store.Settings{}
	}
	apiKey, err := c.store.Get(ctx, store.KeyAPIKey)
	if err != nil {
		apiKey = ""
	}

	client, err := c.newChat(ctx, settings, apiKey)
	if err != nil {
		c.sink.Notify(notify.ChatMessage(chat.RoleAssistant, chatFailure(err)))
		return "", err
	}

	c.mu.Lock()
	branch := c.repo.CurrentBranch(ctx)
	status := c.repo.Status(ctx)
	c.mu.Unlock()

	reply, err := client.Complete(ctx, chat.Prompt(text, branch, status))
	if err != nil {
		if c.log != nil {
			c.log.Warn("chat completion failed", "error", err)
		}
		c.sink.Notify(notify.ChatMessage(chat.RoleAssistant, chatFailure(err)))
		return "", err
	}

	c.sink.Notify(notify.ChatMessage(chat.RoleAssistant, reply))
	return reply, nil
}

func chatFailure(err error) string {
	if errors.Is(err, chat.ErrNotConfigured) {
		return "Chat is not configured. Add an API key in settings."
	}
	return fmt.Sprintf("Chat request failed: %v", err)
}

// SaveSettings persists settings and, when non-empty, the API key, then
// notifies the stored view.
func (c *Core) SaveSettings(ctx context.Context, settings store.Settings, apiKey string) error {
	if err := c.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if apiKey != "" {
		if err := c.store.Set(ctx, store.KeyAPIKey, apiKey); err != nil {
			return fmt.Errorf("save api key: %w", err)
		}
	}
	c.RequestSettings(ctx)
	return nil
}

// RequestSettings notifies the stored settings without revealing the key.
func (c *Core) RequestSettings(ctx context.Context) notify.SettingsView {
	settings, err := c.store.Settings(ctx)
	if err != nil {
		settings = store.Settings{}
	}
	_, keyErr := c.store.Get(ctx, store.KeyAPIKey)

	view := notify.SettingsView{
		Provider:  settings.Provider,
		BaseURL:   settings.BaseURL,
		ModelName: settings.ModelName,
		HasAPIKey: keyErr == nil,
	}
	c.sink.Notify(notify.Settings(view))
	return view
}

// HandleCommand routes a presentation command.
func (c *Core) HandleCommand(ctx context.Context, cmd event.Command) error {
	switch cmd.Type {
	case event.CommandRunGitAction:
		result := c.RunGitAction(ctx, cmd.Action, cmd.Payload)
		if !result.Succeeded {
			return result.Err
		}
		return nil
	case event.CommandSubmitChatQuery:
		_, err := c.SubmitChatQuery(ctx, cmd.Text)
		return err
	case event.CommandRequestStatsRefresh:
		c.Refresh(ctx)
		return nil
	case event.CommandSaveSettings:
		return c.SaveSettings(ctx, cmd.Settings, cmd.APIKey)
	case event.CommandRequestSettings:
		c.RequestSettings(ctx)
		return nil
	case event.CommandLoginWithDeviceFlow:
		_, err := c.LoginWithDeviceFlow(ctx)
		return err
	case event.CommandLogout:
		return c.Logout(ctx)
	default:
		return fmt.Errorf("unsupported command %q", cmd.Type)
	}
}

// Serve reads JSON commands from r until EOF or ctx is done. Commands run one
// at a time in arrival order on a single worker, so reading never waits on a
// slow command. Failures are logged and reported through notifications, never
// returned.
func (c *Core) Serve(ctx context.Context, r io.Reader) error {
	c.Start(ctx)

	queue := newCommandQueue()
	worked := make(chan struct{})
	go func() {
		defer close(worked)
		for {
			job, ok := queue.next(ctx)
			if !ok {
				return
			}
			job(ctx)
		}
	}()

	err := event.DecodeCommands(r, func(cmd event.Command) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		queue.push(func(ctx context.Context) {
			if err := c.HandleCommand(ctx, cmd); err != nil && c.log != nil {
				c.log.Debug("command failed", "type", cmd.Type, "error", err)
			}
		})
		return nil
	}, func(line int, err error) {
		if rejected, ok := event.AsRejectedAction(err); ok {
			queue.push(func(ctx context.Context) {
				c.RejectGitAction(ctx, rejected.Action, rejected.Err)
			})
			return
		}
		if c.log != nil {
			c.log.Warn("ignoring malformed command", "line", line, "error", err)
		}
	})
	queue.close()
	<-worked

	if c.auth != nil {
		if flow := c.auth.Active(); flow != nil {
			select {
			case <-flow.Done():
			case <-ctx.Done():
			}
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
