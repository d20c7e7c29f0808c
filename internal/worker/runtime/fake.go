package runtime

import (
	"context"
	"fmt"
	"sync"
)

// FakeRun is what a fake-runtime test registers for one image: a pure
// function over the argv and scratch directory it would have received,
// returning the outcome the agent should observe.
type FakeRun func(argv []string, scratchDir string) (Result, error)

// Fake is an in-process Runtime that never touches Docker, letting the
// agent's polling/heartbeat/upload logic be exercised without a daemon.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]FakeRun
	results  map[Handle]Result
	errs     map[Handle]error
	killed   map[Handle]bool
	next     int
}

func NewFake() *Fake {
	return &Fake{
		handlers: make(map[string]FakeRun),
		results:  make(map[Handle]Result),
		errs:     make(map[Handle]error),
		killed:   make(map[Handle]bool),
	}
}

// OnImage registers the behavior Spawn/Wait should produce for a given
// plugin image.
func (f *Fake) OnImage(image string, run FakeRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[image] = run
}

func (f *Fake) Spawn(_ context.Context, spec Spec) (Handle, error) {
	f.mu.Lock()
	run, ok := f.handlers[spec.Image]
	f.next++
	h := Handle(fmt.Sprintf("fake-%d", f.next))
	f.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("runtime: no fake handler registered for image %s", spec.Image)
	}

	result, err := run(spec.Argv, spec.ScratchDir)

	f.mu.Lock()
	f.results[h] = result
	f.errs[h] = err
	f.mu.Unlock()
	return h, nil
}

func (f *Fake) Wait(_ context.Context, h Handle) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[h], f.errs[h]
}

func (f *Fake) Kill(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed[h] = true
	return nil
}

func (f *Fake) Logs(_ context.Context, h Handle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[h].Logs, nil
}

func (f *Fake) WasKilled(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed[h]
}

// ReapOrphans is a no-op: a fake run never leaves a real container
// behind for a restart to find.
func (f *Fake) ReapOrphans(ctx context.Context) (int, error) {
	return 0, nil
}
