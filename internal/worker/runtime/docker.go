package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// TaskLabel marks containers this worker spawned, so a crash-restart can
// discover and reap orphans left running against the host daemon.
const TaskLabel = "crowdcompute.task"

// dockerRuntime runs plugin images as sibling containers on the host
// Docker daemon the worker itself is (optionally) running inside of,
// grounded on the same create/start/mount/pull/remove sequence a
// Docker-outside-of-Docker manager uses.
type dockerRuntime struct {
	cli *client.Client
}

func NewDocker() (Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runtime: docker client: %w", err)
	}
	return &dockerRuntime{cli: cli}, nil
}

func (d *dockerRuntime) Spawn(ctx context.Context, spec Spec) (Handle, error) {
	if err := d.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	mountPath := spec.MountPath
	if mountPath == "" {
		mountPath = "/work"
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Cmd:   spec.Argv,
		Labels: map[string]string{
			TaskLabel: spec.ScratchDir,
		},
		WorkingDir: mountPath,
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.ScratchDir,
				Target: mountPath,
			},
		},
		AutoRemove: false,
	}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("runtime: create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("runtime: start container: %w", err)
	}
	return Handle(resp.ID), nil
}

// ensureImage pulls the image on first use; a plugin image is expected
// to already be present on most hosts, so this only pays the pull cost
// the first time a given kind runs.
func (d *dockerRuntime) ensureImage(ctx context.Context, image string) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("runtime: inspect image %s: %w", image, err)
	}

	rc, err := d.cli.ImagePull(ctx, image, imagePullOptionsFor())
	if err != nil {
		return fmt.Errorf("runtime: pull image %s: %w", image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("runtime: pull image %s: %w", image, err)
	}
	return nil
}

func imagePullOptionsFor() image.PullOptions {
	return image.PullOptions{}
}

func (d *dockerRuntime) Wait(ctx context.Context, h Handle) (Result, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, string(h), container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return Result{}, fmt.Errorf("runtime: wait container: %w", err)
	case status := <-statusCh:
		logs, _ := d.Logs(ctx, h)
		return Result{ExitCode: int(status.StatusCode), Logs: logs}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (d *dockerRuntime) Kill(ctx context.Context, h Handle) error {
	_ = d.cli.ContainerKill(ctx, string(h), "SIGKILL")
	return d.cli.ContainerRemove(ctx, string(h), container.RemoveOptions{Force: true})
}

func (d *dockerRuntime) Logs(ctx context.Context, h Handle) (string, error) {
	rc, err := d.cli.ContainerLogs(ctx, string(h), container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("runtime: logs: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("runtime: read logs: %w", err)
	}
	return string(data), nil
}

// ReapOrphans finds and kills containers left over from a prior worker
// process, identified by the TaskLabel this runtime tags every
// container it spawns with, and returns how many it reaped.
func (d *dockerRuntime) ReapOrphans(ctx context.Context) (int, error) {
	args := filters.NewArgs(filters.Arg("label", TaskLabel))
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return 0, fmt.Errorf("runtime: list orphans: %w", err)
	}

	reaped := 0
	for _, c := range containers {
		if err := d.Kill(ctx, Handle(c.ID)); err != nil {
			continue
		}
		reaped++
	}
	return reaped, nil
}
