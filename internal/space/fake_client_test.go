package space

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

// fakeDockerClient satisfies sandbox.DockerClient with just enough
// behavior to exercise the Space Manager's provisioning path without a
// live daemon, mirroring the fake used in internal/sandbox's own tests.
type fakeDockerClient struct {
	stopCalls   int
	removeCalls int
}

func (f *fakeDockerClient) ImageInspectWithRaw(ctx context.Context, ref string) (image.InspectResponse, []byte, error) {
	return image.InspectResponse{}, nil, nil
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	return nil, errors.New("unexpected ImagePull call")
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, nc *network.NetworkingConfig, p *ocispec.Platform, name string) (container.CreateResponse, error) {
	return container.CreateResponse{ID: "container123"}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	return nil
}

func (f *fakeDockerClient) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	f.stopCalls++
	return nil
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error {
	f.removeCalls++
	return nil
}

func (f *fakeDockerClient) ContainerExecCreate(ctx context.Context, containerID string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	return container.ExecCreateResponse{}, errors.New("unexpected ContainerExecCreate call")
}

func (f *fakeDockerClient) ContainerExecAttach(ctx context.Context, execID string, opts container.ExecAttachOptions) (dockertypes.HijackedResponse, error) {
	return dockertypes.HijackedResponse{}, errors.New("unexpected ContainerExecAttach call")
}

func (f *fakeDockerClient) ContainerExecStart(ctx context.Context, execID string, opts container.ExecStartOptions) error {
	return errors.New("unexpected ContainerExecStart call")
}

func (f *fakeDockerClient) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	return container.ExecInspect{}, errors.New("unexpected ContainerExecInspect call")
}

func (f *fakeDockerClient) Close() error { return nil }
