// Package agent implements the Worker Agent main loop (spec §4.6):
// claim, resolve plugin, download inputs, spawn container, heartbeat
// concurrently with container-wait, upload outputs, report.
package agent

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/crowdcompute/crowdcompute/internal/plugin"
	"github.com/crowdcompute/crowdcompute/internal/shared/logging"
	"github.com/crowdcompute/crowdcompute/internal/worker/client"
	"github.com/crowdcompute/crowdcompute/internal/worker/runtime"
)

// Config bounds the agent's polling and concurrency behavior (spec §4.6,
// §5: "single logical task at a time unless configured otherwise").
type Config struct {
	WorkerID          string
	BasePollInterval  time.Duration
	MaxPollInterval   time.Duration
	LeaseTTL          time.Duration
	ScratchRoot       string
	MaxConcurrentRuns int64
}

func (c Config) withDefaults() Config {
	if c.BasePollInterval <= 0 {
		c.BasePollInterval = 500 * time.Millisecond
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = 10 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.ScratchRoot == "" {
		c.ScratchRoot = os.TempDir()
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 1
	}
	return c
}

// Agent drives one worker's claim/execute/report cycle against a
// coordinator and a container runtime.
type Agent struct {
	cfg     Config
	client  client.CoordinatorClient
	runtime runtime.Runtime
	logger  logging.Logger
	sem     *semaphore.Weighted
}

func New(cfg Config, coordinator client.CoordinatorClient, rt runtime.Runtime, logger logging.Logger) *Agent {
	cfg = cfg.withDefaults()
	return &Agent{
		cfg:     cfg,
		client:  coordinator,
		runtime: rt,
		logger:  logger,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentRuns),
	}
}

// Run polls for work until ctx is cancelled. On every successful claim
// it runs the task in its own goroutine, bounded by sem, and returns to
// polling immediately rather than waiting for that task to finish.
func (a *Agent) Run(ctx context.Context) {
	interval := a.cfg.BasePollInterval

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := a.client.ClaimTask(ctx, a.cfg.WorkerID)
		if err != nil {
			a.logger.Warn("claim failed", "error", err)
			if !sleepWithContext(ctx, interval) {
				return
			}
			interval = nextInterval(interval, a.cfg.MaxPollInterval)
			continue
		}
		if task == nil {
			if !sleepWithContext(ctx, interval) {
				return
			}
			interval = nextInterval(interval, a.cfg.MaxPollInterval)
			continue
		}

		interval = a.cfg.BasePollInterval
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer a.sem.Release(1)
			a.runTask(ctx, task)
		}()
	}
}

// nextInterval applies jittered exponential backoff growing toward max:
// the next wait is uniform in [base, 2*base], capped at max.
func nextInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	jitterRange := next / 2
	if jitterRange <= 0 {
		return next
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(jitterRange)+1))
	if err != nil {
		return next
	}
	jittered := next/2 + time.Duration(n.Int64())
	if jittered > max {
		jittered = max
	}
	return jittered
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (a *Agent) runTask(ctx context.Context, task *client.Task) {
	logger := a.logger
	jobID := task.JobID
	scratchDir, cleanup, err := a.prepareScratch(task)
	if err != nil {
		logger.Error("scratch setup failed", "task_id", task.TaskID, "error", err)
		a.report(ctx, task, client.ReportOutcome{ErrKind: "InputUnavailable", Detail: err.Error()})
		return
	}
	defer cleanup()

	desc, ok := plugin.Get(task.PluginKind)
	if !ok {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "PluginUnknown", Detail: "no descriptor for " + task.PluginKind})
		return
	}

	if err := a.downloadInputs(ctx, jobID, task, scratchDir, desc); err != nil {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "InputUnavailable", Detail: err.Error()})
		return
	}

	argv, err := desc.Render(task.Params)
	if err != nil {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "PluginUnknown", Detail: err.Error()})
		return
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	handle, err := a.runtime.Spawn(runCtx, runtime.Spec{
		Image:      desc.Image,
		Argv:       argv,
		ScratchDir: scratchDir,
		MountPath:  "/work",
	})
	if err != nil {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "PluginExit", Detail: err.Error()})
		return
	}

	reassigned := a.heartbeatUntilDone(ctx, task, func() {
		_ = a.runtime.Kill(context.Background(), handle)
		cancelRun()
	})
	defer reassigned.stop()

	result, err := a.runtime.Wait(runCtx, handle)
	reassigned.stop()
	if reassigned.wasReassigned() {
		logger.Info("task reassigned, abandoning scratch dir", "task_id", task.TaskID)
		return
	}
	if err != nil {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "PluginExit", Detail: err.Error()})
		return
	}
	if result.ExitCode != 0 {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "PluginExit", Detail: tail(result.Logs, 2000)})
		return
	}

	outputs, err := a.uploadOutputs(ctx, jobID, task, scratchDir, desc.ExpectedOutputs)
	if err != nil {
		a.report(ctx, task, client.ReportOutcome{ErrKind: "OutputMissing", Detail: err.Error()})
		return
	}

	a.report(ctx, task, client.ReportOutcome{Success: true, Outputs: outputs})
}

func (a *Agent) prepareScratch(task *client.Task) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp(a.cfg.ScratchRoot, "crowdcompute-"+task.TaskID+"-")
	if err != nil {
		return "", func() {}, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// downloadInputs fetches each of the task's artifact-store inputs and
// materializes it under the name the plugin's argv actually references
// (desc.ExpectedInputs), not the artifact-store name the coordinator
// assigned it. A single directory-shaped expected input (e.g. the
// sort_reduce "inputs/" merge directory) collects every artifact
// instead of a positional one-to-one mapping, since a reduce task's
// input count varies with shard count.
func (a *Agent) downloadInputs(ctx context.Context, jobID string, task *client.Task, scratchDir string, desc plugin.Descriptor) error {
	dir, isDir := directoryInput(desc.ExpectedInputs)

	if !isDir && len(desc.ExpectedInputs) != len(task.Inputs) {
		return fmt.Errorf("plugin %s expects %d input(s), task has %d", desc.Kind, len(desc.ExpectedInputs), len(task.Inputs))
	}

	for i, name := range task.Inputs {
		data, err := a.client.Download(ctx, jobID, name)
		if err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}

		var destPath string
		if isDir {
			destPath = filepath.Join(scratchDir, dir, filepath.Base(name))
			if err := os.MkdirAll(filepath.Join(scratchDir, dir), 0o755); err != nil {
				return fmt.Errorf("create input dir %s: %w", dir, err)
			}
		} else {
			destPath = filepath.Join(scratchDir, desc.ExpectedInputs[i])
		}

		if err := os.WriteFile(destPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// directoryInput reports whether a descriptor's inputs are a single
// merge directory (trailing "/") rather than a positional file list.
func directoryInput(expected []string) (string, bool) {
	if len(expected) == 1 && strings.HasSuffix(expected[0], "/") {
		return expected[0], true
	}
	return "", false
}

func (a *Agent) uploadOutputs(ctx context.Context, jobID string, task *client.Task, scratchDir string, expected []string) ([]string, error) {
	uploaded := make([]string, 0, len(expected))
	for _, name := range expected {
		data, err := os.ReadFile(filepath.Join(scratchDir, name))
		if err != nil {
			return nil, fmt.Errorf("output %s missing: %w", name, err)
		}
		if err := a.client.Upload(ctx, a.cfg.WorkerID, jobID, name, data); err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}

func (a *Agent) report(ctx context.Context, task *client.Task, outcome client.ReportOutcome) {
	if err := a.client.ReportTask(ctx, a.cfg.WorkerID, task.TaskID, outcome); err != nil {
		a.logger.Error("report failed", "task_id", task.TaskID, "error", err)
	}
}

// heartbeatState tracks whether the coordinator told us to stop.
type heartbeatState struct {
	done       chan struct{}
	reassigned chan struct{}
}

func (h *heartbeatState) stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *heartbeatState) wasReassigned() bool {
	select {
	case <-h.reassigned:
		return true
	default:
		return false
	}
}

// heartbeatUntilDone runs a ticker at LEASE_TTL/3 alongside the
// container-wait; onReassigned is invoked exactly once if the
// coordinator ever reports the task as reassigned.
func (a *Agent) heartbeatUntilDone(ctx context.Context, task *client.Task, onReassigned func()) *heartbeatState {
	h := &heartbeatState{done: make(chan struct{}), reassigned: make(chan struct{})}
	period := a.cfg.LeaseTTL / 3
	if period <= 0 {
		period = time.Second
	}

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				reassigned, err := a.client.Heartbeat(ctx, a.cfg.WorkerID, task.TaskID)
				if err != nil {
					a.logger.Warn("heartbeat failed", "task_id", task.TaskID, "error", err)
					continue
				}
				if reassigned {
					close(h.reassigned)
					onReassigned()
					return
				}
			}
		}
	}()
	return h
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
