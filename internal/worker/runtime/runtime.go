// Package runtime implements the worker's container-runtime capability
// (spec §9 "Container-runtime interface"): spawning a plugin's image
// against a task's scratch directory, waiting for exit, killing on
// cancellation, and retrieving logs for error reporting. Two
// implementations exist: Docker (sibling containers via the host
// daemon) and an in-process fake used by tests that don't have a
// daemon available.
package runtime

import (
	"context"
	"time"
)

// Spec describes one container invocation: the image to run, its argv,
// and the host directory to bind-mount as the plugin's working
// directory (containing downloaded inputs; outputs are written back
// into it for the agent to upload).
type Spec struct {
	Image      string
	Argv       []string
	ScratchDir string
	// MountPath is the in-container path ScratchDir is bound to; plugin
	// argv tokens reference file names relative to it.
	MountPath string
}

// Result is a finished container's outcome.
type Result struct {
	ExitCode int
	Logs     string
}

// Handle identifies a running container for Wait/Kill/Logs.
type Handle string

// Runtime is the capability surface the agent drives.
type Runtime interface {
	// Spawn pulls the image if needed and starts a container, returning
	// immediately with a handle; it does not wait for completion.
	Spawn(ctx context.Context, spec Spec) (Handle, error)
	// Wait blocks until the container exits or ctx is cancelled.
	Wait(ctx context.Context, h Handle) (Result, error)
	// Kill stops and removes the container; safe to call after exit.
	Kill(ctx context.Context, h Handle) error
	Logs(ctx context.Context, h Handle) (string, error)
	// ReapOrphans kills and removes containers left running by a prior
	// process of this worker (crash before Kill ran), identified by the
	// runtime's own task label. Called once at startup.
	ReapOrphans(ctx context.Context) (int, error)
}

// DefaultPollInterval is an exit-check period for a runtime whose
// underlying driver has no blocking wait. Neither runtime in this
// package polls, so neither reads it.
const DefaultPollInterval = 200 * time.Millisecond
