package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salim/tukang/internal/config"
	"github.com/salim/tukang/internal/logger"
	"github.com/salim/tukang/internal/metrics"
	"github.com/salim/tukang/pkg/agent"
	"github.com/salim/tukang/pkg/gitx"
	"github.com/salim/tukang/pkg/slack"
	"github.com/salim/tukang/pkg/thread"
	"github.com/salim/tukang/pkg/workspace"
)

// slackCall records one Web API request seen by the fake Slack server
type slackCall struct {
	Method  string
	Payload map[string]interface{}
}

type fixture struct {
	daemon *Daemon

	mu    sync.Mutex
	calls []slackCall
}

func (f *fixture) recorded() []slackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]slackCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func newFixture(t *testing.T, runFunc func(ctx context.Context, task agent.Task) (agent.Result, error)) *fixture {
	t.Helper()

	f := &fixture{}

	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)

		f.mu.Lock()
		f.calls = append(f.calls, slackCall{
			Method:  filepath.Base(r.URL.Path),
			Payload: payload,
		})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(slackSrv.Close)

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	backend := gitx.NewFake()
	pool, err := workspace.NewPool(backend, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	manager, err := thread.NewManager(pool, backend, &agent.FakeRunner{RunFunc: runFunc}, thread.Options{}, metrics.New(), zerolog.Nop())
	require.NoError(t, err)

	slackClient, err := slack.NewClient(slack.ClientConfig{
		BotToken: "xoxb-test",
		BaseURL:  slackSrv.URL,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	f.daemon = &Daemon{
		config:      cfg,
		logger:      log,
		manager:     manager,
		slackClient: slackClient,
	}

	return f
}

func TestHandleEvent_MentionRunsAndReplies(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		assert.Equal(t, "deploy the thing", task.Prompt)
		return agent.Result{Text: "done, deployed", ContinuationHandle: "sess-1"}, nil
	})

	f.daemon.handleEvent(context.Background(), slack.Event{
		Type:    "app_mention",
		Channel: "C1",
		Text:    "<@U0BOT> deploy the thing",
		TS:      "100.1",
	})

	calls := f.recorded()
	require.Len(t, calls, 2)

	assert.Equal(t, "reactions.add", calls[0].Method)
	assert.Equal(t, "thumbsup", calls[0].Payload["name"])
	assert.Equal(t, "100.1", calls[0].Payload["timestamp"])

	assert.Equal(t, "chat.postMessage", calls[1].Method)
	assert.Equal(t, "C1", calls[1].Payload["channel"])
	assert.Equal(t, "100.1", calls[1].Payload["thread_ts"])
	assert.Equal(t, "done, deployed", calls[1].Payload["text"])
}

func TestHandleEvent_BusyThreadGetsBusyReply(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		close(started)
		<-release
		return agent.Result{Text: "first"}, nil
	})

	ev := slack.Event{Type: "app_mention", Channel: "C1", Text: "<@U0BOT> long task", TS: "200.1"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.daemon.handleEvent(context.Background(), ev)
	}()

	<-started
	f.daemon.handleEvent(context.Background(), ev)
	close(release)
	wg.Wait()

	var busySeen bool
	for _, call := range f.recorded() {
		if call.Method == "chat.postMessage" && call.Payload["text"] == busyReply {
			busySeen = true
		}
	}
	assert.True(t, busySeen, "second event should get the busy reply")
}

func TestHandleEvent_IgnoresUnrelatedEvents(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		t.Fatal("runner must not be invoked")
		return agent.Result{}, nil
	})

	// Channel message that is neither a mention nor a DM
	f.daemon.handleEvent(context.Background(), slack.Event{
		Type: "message", Channel: "C1", Text: "just chatting", TS: "300.1",
	})

	// Mention with no task text
	f.daemon.handleEvent(context.Background(), slack.Event{
		Type: "app_mention", Channel: "C1", Text: "<@U0BOT>", TS: "300.2",
	})

	assert.Empty(t, f.recorded())
}

func TestHandleEvent_IgnoresOwnMessages(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		t.Fatal("runner must not be invoked for bot messages")
		return agent.Result{}, nil
	})

	// The daemon's own threaded reply arriving back as a DM event
	f.daemon.handleEvent(context.Background(), slack.Event{
		Type: "message", ChannelType: "im", Channel: "D1",
		BotID: "B0999", Text: "done, deployed", TS: "600.1", ThreadTS: "600.0",
	})

	assert.Empty(t, f.recorded())
}

func TestHandleEvent_DirectMessage(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		assert.Equal(t, "rename the module", task.Prompt)
		return agent.Result{Text: "renamed"}, nil
	})

	f.daemon.handleEvent(context.Background(), slack.Event{
		Type: "message", ChannelType: "im", Channel: "D1", User: "U1",
		Text: "rename the module", TS: "400.1",
	})

	calls := f.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "renamed", calls[1].Payload["text"])
}

func TestHandleEvent_RunFailureReply(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, task agent.Task) (agent.Result, error) {
		return agent.Result{}, assert.AnError
	})

	f.daemon.handleEvent(context.Background(), slack.Event{
		Type: "app_mention", Channel: "C1", Text: "<@U0BOT> break", TS: "500.1",
	})

	calls := f.recorded()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "chat.postMessage", last.Method)
	assert.Equal(t, failureReply, last.Payload["text"])
}

func TestLifecycleManager_PIDFile(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	d := &Daemon{config: cfg, logger: log}
	l := NewLifecycleManager(d)

	require.NoError(t, l.Start())

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "tukang.pid"))
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	got, err := l.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	require.NoError(t, l.Stop())
	_, err = os.Stat(filepath.Join(cfg.DataDir, "tukang.pid"))
	assert.True(t, os.IsNotExist(err))
}
