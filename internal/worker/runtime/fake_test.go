package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_SpawnWaitRoundTrip(t *testing.T) {
	f := NewFake()
	f.OnImage("crowd-sort-map:latest", func(argv []string, scratchDir string) (Result, error) {
		assert.Equal(t, []string{"--input", "shard.txt", "--output", "sorted.txt"}, argv)
		return Result{ExitCode: 0, Logs: "sorted 3 lines"}, nil
	})

	ctx := context.Background()
	h, err := f.Spawn(ctx, Spec{Image: "crowd-sort-map:latest", Argv: []string{"--input", "shard.txt", "--output", "sorted.txt"}, ScratchDir: "/tmp/x"})
	require.NoError(t, err)

	result, err := f.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "sorted 3 lines", result.Logs)
}

func TestFake_SpawnUnregisteredImageErrors(t *testing.T) {
	f := NewFake()
	_, err := f.Spawn(context.Background(), Spec{Image: "unknown:latest"})
	assert.Error(t, err)
}

func TestFake_WaitPropagatesRunError(t *testing.T) {
	f := NewFake()
	f.OnImage("crowd-hashcat-cpu:latest", func(argv []string, scratchDir string) (Result, error) {
		return Result{ExitCode: 1}, errors.New("plugin crashed")
	})

	ctx := context.Background()
	h, err := f.Spawn(ctx, Spec{Image: "crowd-hashcat-cpu:latest"})
	require.NoError(t, err)

	_, err = f.Wait(ctx, h)
	assert.Error(t, err)
}

func TestFake_Kill_RecordsKilled(t *testing.T) {
	f := NewFake()
	f.OnImage("crowd-hashcat-cpu:latest", func(argv []string, scratchDir string) (Result, error) {
		return Result{}, nil
	})

	ctx := context.Background()
	h, err := f.Spawn(ctx, Spec{Image: "crowd-hashcat-cpu:latest"})
	require.NoError(t, err)

	assert.False(t, f.WasKilled(h))
	require.NoError(t, f.Kill(ctx, h))
	assert.True(t, f.WasKilled(h))
}

func TestFake_ImplementsRuntime(t *testing.T) {
	var _ Runtime = NewFake()
}
