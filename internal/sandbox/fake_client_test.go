package sandbox

import (
	"context"
	"errors"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeDockerClient implements dockerClient without a live daemon, mirroring
// the teacher-adjacent fakeDockerClient pattern (per-method func fields,
// "unexpected call" default errors).
type fakeDockerClient struct {
	imageInspectFn    func(ctx context.Context, ref string) (image.InspectResponse, []byte, error)
	imagePullFn       func(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	containerCreateFn func(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error)
	containerStartFn  func(ctx context.Context, id string, opts container.StartOptions) error
	containerStopFn   func(ctx context.Context, id string, opts container.StopOptions) error
	containerRemoveFn func(ctx context.Context, id string, opts container.RemoveOptions) error
	execCreateFn      func(ctx context.Context, containerID string, opts container.ExecOptions) (container.ExecCreateResponse, error)
	execAttachFn      func(ctx context.Context, execID string, opts container.ExecAttachOptions) (dockertypes.HijackedResponse, error)
	execStartFn       func(ctx context.Context, execID string, opts container.ExecStartOptions) error
	execInspectFn     func(ctx context.Context, execID string) (container.ExecInspect, error)
	closeFn           func() error
}

func (f *fakeDockerClient) ImageInspectWithRaw(ctx context.Context, ref string) (image.InspectResponse, []byte, error) {
	if f.imageInspectFn == nil {
		return image.InspectResponse{}, nil, errors.New("unexpected ImageInspectWithRaw call")
	}
	return f.imageInspectFn(ctx, ref)
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	if f.imagePullFn == nil {
		return nil, errors.New("unexpected ImagePull call")
	}
	return f.imagePullFn(ctx, ref, opts)
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error) {
	if f.containerCreateFn == nil {
		return container.CreateResponse{}, errors.New("unexpected ContainerCreate call")
	}
	return f.containerCreateFn(ctx, config, hostConfig, networkingConfig, platform, name)
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	if f.containerStartFn == nil {
		return errors.New("unexpected ContainerStart call")
	}
	return f.containerStartFn(ctx, id, opts)
}

func (f *fakeDockerClient) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	if f.containerStopFn == nil {
		return errors.New("unexpected ContainerStop call")
	}
	return f.containerStopFn(ctx, id, opts)
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error {
	if f.containerRemoveFn == nil {
		return errors.New("unexpected ContainerRemove call")
	}
	return f.containerRemoveFn(ctx, id, opts)
}

func (f *fakeDockerClient) ContainerExecCreate(ctx context.Context, containerID string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	if f.execCreateFn == nil {
		return container.ExecCreateResponse{}, errors.New("unexpected ContainerExecCreate call")
	}
	return f.execCreateFn(ctx, containerID, opts)
}

func (f *fakeDockerClient) ContainerExecAttach(ctx context.Context, execID string, opts container.ExecAttachOptions) (dockertypes.HijackedResponse, error) {
	if f.execAttachFn == nil {
		return dockertypes.HijackedResponse{}, errors.New("unexpected ContainerExecAttach call")
	}
	return f.execAttachFn(ctx, execID, opts)
}

func (f *fakeDockerClient) ContainerExecStart(ctx context.Context, execID string, opts container.ExecStartOptions) error {
	if f.execStartFn == nil {
		return nil
	}
	return f.execStartFn(ctx, execID, opts)
}

func (f *fakeDockerClient) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	if f.execInspectFn == nil {
		return container.ExecInspect{}, errors.New("unexpected ContainerExecInspect call")
	}
	return f.execInspectFn(ctx, execID)
}

func (f *fakeDockerClient) Close() error {
	if f.closeFn == nil {
		return nil
	}
	return f.closeFn()
}
