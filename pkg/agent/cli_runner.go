package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// CLIRunner runs the agent by spawning its command-line binary in the
// worktree and parsing the JSON result it prints.
type CLIRunner struct {
	binary       string
	allowedTools []string
	extraEnv     []string
	logger       zerolog.Logger
}

// CLIRunnerConfig holds CLIRunner configuration
type CLIRunnerConfig struct {
	// Binary is the agent executable name, default "claude"
	Binary string

	// AllowedTools restricts the tools the agent may use
	AllowedTools []string

	// AnthropicAPIKey is passed to the child process when set
	AnthropicAPIKey string

	Logger zerolog.Logger
}

// NewCLIRunner creates a runner for the agent CLI
func NewCLIRunner(cfg CLIRunnerConfig) *CLIRunner {
	binary := cfg.Binary
	if binary == "" {
		binary = "claude"
	}

	var extraEnv []string
	if cfg.AnthropicAPIKey != "" {
		extraEnv = append(extraEnv, "ANTHROPIC_API_KEY="+cfg.AnthropicAPIKey)
	}

	return &CLIRunner{
		binary:       binary,
		allowedTools: cfg.AllowedTools,
		extraEnv:     extraEnv,
		logger:       cfg.Logger,
	}
}

// Run executes the agent CLI in the task's worktree. The call blocks
// until the agent finishes; duration is unbounded.
func (r *CLIRunner) Run(ctx context.Context, task Task) (Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With().
		Str("run_id", runID).
		Str("thread_id", task.ThreadID).
		Logger()

	args := []string{}
	if task.ContinuationHandle != "" {
		// --resume must come before -p
		args = append(args, "--resume", task.ContinuationHandle)
	}
	args = append(args,
		"-p", task.Prompt,
		"--output-format", "json",
		"--dangerously-skip-permissions",
	)
	if len(r.allowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(r.allowedTools, ","))
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = task.WorktreePath
	cmd.Env = append(os.Environ(), r.extraEnv...)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info().Str("binary", r.binary).Msg("Starting agent run")
	start := time.Now()

	err := cmd.Run()

	logger.Info().
		Dur("duration", time.Since(start)).
		Int("stdout_bytes", stdout.Len()).
		Msg("Agent run finished")

	if err != nil && stdout.Len() == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Result{}, fmt.Errorf("agent process failed: %s", msg)
	}

	result, ok := parseResult(stdout.Bytes())
	if !ok {
		logger.Warn().Msg("Agent output was not parsable JSON, using raw output")
		fallback := strings.TrimSpace(stdout.String())
		if fallback == "" {
			fallback = strings.TrimSpace(stderr.String())
		}
		if fallback == "" {
			fallback = "Something went wrong."
		}
		return Result{Text: fallback}, nil
	}

	return result, nil
}

// parseResult extracts the answer text and session id from the CLI's
// JSON output.
func parseResult(output []byte) (Result, bool) {
	if !gjson.ValidBytes(output) {
		return Result{}, false
	}

	parsed := gjson.ParseBytes(output)
	if !parsed.IsObject() {
		return Result{}, false
	}

	text := parsed.Get("result").String()
	if text == "" {
		text = "Done, but no output."
	}

	return Result{
		Text:               text,
		ContinuationHandle: parsed.Get("session_id").String(),
	}, true
}
