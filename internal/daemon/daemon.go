package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/salim/tukang/internal/config"
	"github.com/salim/tukang/internal/logger"
	"github.com/salim/tukang/internal/metrics"
	"github.com/salim/tukang/pkg/agent"
	"github.com/salim/tukang/pkg/gitx"
	"github.com/salim/tukang/pkg/slack"
	"github.com/salim/tukang/pkg/thread"
	"github.com/salim/tukang/pkg/webhook"
	"github.com/salim/tukang/pkg/workspace"
)

// Daemon represents the Tukang daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	metrics *metrics.Metrics
	backend gitx.Backend
	pool    *workspace.Pool
	manager *thread.Manager
	runner  agent.Runner
	sweeper *thread.Sweeper
	watcher *thread.Watcher

	// Slack ingress, one of the two depending on config
	webhookServer *webhook.Server
	socketClient  *slack.SocketClient
	slackClient   *slack.Client

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeIngress(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize ingress: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes the worktree pool, thread manager,
// agent runner, and reclamation sweeper in dependency order
func (d *Daemon) initializeCoreModules() error {
	d.metrics = metrics.New()

	d.backend = gitx.NewGit(d.config.Workspace.RepoPath)
	if err := d.backend.Check(d.ctx); err != nil {
		return fmt.Errorf("git backend unavailable: %w", err)
	}
	d.logger.Info().Str("repo", d.config.Workspace.RepoPath).Msg("Git backend verified")

	pool, err := workspace.NewPool(d.backend, d.config.Workspace.WorktreesRoot, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create worktree pool: %w", err)
	}
	d.pool = pool
	d.logger.Info().Str("root", d.config.Workspace.WorktreesRoot).Msg("Worktree pool initialized")

	d.runner = agent.NewCLIRunner(agent.CLIRunnerConfig{
		Binary:          d.config.Agent.Binary,
		AllowedTools:    d.config.Agent.AllowedTools,
		AnthropicAPIKey: d.config.Agent.AnthropicAPIKey,
		Logger:          d.logger.GetZerolog(),
	})
	d.logger.Info().Str("binary", d.config.Agent.Binary).Msg("Agent runner initialized")

	staleAfter, err := d.config.Workspace.StaleAfterDuration()
	if err != nil {
		return fmt.Errorf("invalid stale_after duration: %w", err)
	}

	manager, err := thread.NewManager(d.pool, d.backend, d.runner, thread.Options{
		Capacity:   d.config.Workspace.MaxThreads,
		BaseBranch: d.config.Workspace.BaseBranch,
		StaleAfter: staleAfter,
	}, d.metrics, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create thread manager: %w", err)
	}
	d.manager = manager
	d.logger.Info().
		Int("max_threads", d.config.Workspace.MaxThreads).
		Dur("stale_after", staleAfter).
		Msg("Thread manager initialized")

	sweepInterval, err := d.config.Workspace.SweepIntervalDuration()
	if err != nil {
		return fmt.Errorf("invalid sweep_interval duration: %w", err)
	}
	d.sweeper = thread.NewSweeper(d.manager, sweepInterval, d.logger.GetZerolog())

	return nil
}

// initializeIngress initializes the Slack client and the configured
// event transport
func (d *Daemon) initializeIngress() error {
	slackClient, err := slack.NewClient(slack.ClientConfig{
		BotToken: d.config.Slack.BotToken,
		Logger:   d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create slack client: %w", err)
	}
	d.slackClient = slackClient

	switch d.config.Slack.Mode {
	case "socket":
		socketClient, err := slack.NewSocketClient(slack.SocketClientConfig{
			AppToken: d.config.Slack.AppToken,
			Handler:  d.handleEvent,
			Logger:   d.logger.GetZerolog(),
		})
		if err != nil {
			return fmt.Errorf("failed to create socket mode client: %w", err)
		}
		d.socketClient = socketClient
		d.logger.Info().Msg("Socket mode client initialized")

	default:
		webhookServer, err := webhook.NewServer(webhook.ServerOptions{
			Port:           d.config.Webhook.Port,
			SigningSecret:  d.config.Slack.SigningSecret,
			RequireHTTPS:   d.config.Webhook.RequireHTTPS,
			MetricsHandler: d.metrics.Handler(),
		}, d.handleEvent, d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create webhook server: %w", err)
		}
		d.webhookServer = webhookServer
		d.logger.Info().Int("port", d.config.Webhook.Port).Msg("Webhook server initialized")
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Tukang daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// The registry is volatile, so every worktree left on disk by a
	// previous run is unowned and must go before events are accepted.
	// An inconsistent pool at startup is fatal.
	if err := d.manager.ReconcileStartup(d.ctx); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}
	d.logger.Info().Msg("Startup reconciliation completed")

	if err := d.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	watcher, err := thread.NewWatcher(d.manager, d.logger.GetZerolog())
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to create worktree watcher, continuing without it")
	} else {
		d.watcher = watcher
		d.watcher.Start()
	}

	if d.webhookServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.webhookServer.Start(); err != nil {
				d.logger.Error().Err(err).Msg("Webhook server exited")
				d.cancel()
			}
		}()
		d.logger.Info().Msg("Webhook server started")
	}

	if d.socketClient != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.socketClient.Run(d.ctx); err != nil && d.ctx.Err() == nil {
				d.logger.Error().Err(err).Msg("Socket mode client exited")
				d.cancel()
			}
		}()
		d.logger.Info().Msg("Socket mode client started")
	}

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Tukang daemon")

	if d.webhookServer != nil {
		if err := d.webhookServer.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop webhook server")
		}
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}

	d.sweeper.Stop()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().Msg("All goroutines stopped")
	case <-time.After(10 * time.Second):
		d.logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Wait blocks until the daemon receives a shutdown signal
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
		d.logger.Info().Msg("Internal shutdown requested")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Threads = d.manager.Snapshot()
	}

	return status
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Threads   []thread.Record
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetManager returns the thread manager
func (d *Daemon) GetManager() *thread.Manager {
	return d.manager
}
