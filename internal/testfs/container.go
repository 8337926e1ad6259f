//go:build e2e

package testfs

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrNoFile is returned by ReadFile when the path does not exist in the container.
var ErrNoFile = errors.New("file not found in container")

// -----------------------------------------------------------------------------
// Container - Docker container with exec and file read
// -----------------------------------------------------------------------------

// Container wraps a running Docker container.
type Container struct {
	client *client.Client
	id     string
}

// NewContainer pulls the image if needed, then creates and starts a container.
//
// The caller is responsible for calling Close() when done.
func NewContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	c, err := startContainer(ctx, cli, cfg, hostCfg)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return c, nil
}

func startContainer(ctx context.Context, cli *client.Client, cfg *container.Config, hostCfg *container.HostConfig) (*Container, error) {
	if err := pullImage(ctx, cli, cfg.Image); err != nil {
		return nil, err
	}
	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}
	return &Container{client: cli, id: resp.ID}, nil
}

// Run executes a command inside the container and returns its output and
// exit code. If stdin is non-nil, it is written to the command's stdin.
func (c *Container) Run(ctx context.Context, cmd []string, stdin []byte) (stdout, stderr string, exitCode int, err error) {
	exec, err := c.client.ContainerExecCreate(ctx, c.id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec create: %w", err)
	}

	hijack, err := c.client.ContainerExecAttach(ctx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec attach: %w", err)
	}
	defer hijack.Close()

	if stdin != nil {
		if _, err := hijack.Conn.Write(stdin); err != nil {
			return "", "", 0, fmt.Errorf("write stdin: %w", err)
		}
		if err := hijack.CloseWrite(); err != nil {
			return "", "", 0, fmt.Errorf("close stdin: %w", err)
		}
	}

	var outBuf, errBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&outBuf, &errBuf, hijack.Reader)

	inspect, err := c.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return "", "", 0, fmt.Errorf("exec inspect: %w", err)
	}

	return outBuf.String(), errBuf.String(), inspect.ExitCode, nil
}

// ReadFile copies a single regular file out of the container.
func (c *Container) ReadFile(ctx context.Context, path string) ([]byte, error) {
	rc, _, err := c.client.CopyFromContainer(ctx, c.id, path)
	if client.IsErrNotFound(err) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFile)
	}
	if err != nil {
		return nil, fmt.Errorf("copy %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	hdr, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("read archive for %s: %w", path, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	return io.ReadAll(tr)
}

// Close stops the container and releases resources.
// The container is automatically removed if AutoRemove was set.
func (c *Container) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	defer func() { _ = c.client.Close() }()
	return c.client.ContainerStop(ctx, c.id, container.StopOptions{})
}

// pullImage pulls the Docker image (uses cache if already present).
func pullImage(ctx context.Context, cli *client.Client, imageName string) error {
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer func() { _ = reader.Close() }()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
