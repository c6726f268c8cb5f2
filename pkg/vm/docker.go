package vm

import (
	"context"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/config"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	docker "github.com/docker/docker/client"
	log "github.com/mgutz/logxi/v1"
	"strings"
	"time"
)

const (
	dockerLabel        = "gridscaler"
	dockerClusterLabel = "gridscaler_cluster"
)

// containerAPI is the subset of the docker client used by DockerAdapter
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, containerName string) (container.ContainerCreateCreatedBody, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

// NewDockerAdapter runs workers as containers on the docker host. Mostly useful for
// development and for grids that run on a single large machine.
func NewDockerAdapter(dockerClient *docker.Client, opts config.DockerOptions) *DockerAdapter {
	return &DockerAdapter{client: dockerClient, opts: opts}
}

type DockerAdapter struct {
	client containerAPI
	opts   config.DockerOptions
}

func (d *DockerAdapter) Name() string {
	return "docker"
}

func (d *DockerAdapter) CreateVMs(ctx context.Context, opts CreateVMsOptions) ([]VM, error) {
	if d.opts.Image == "" {
		return nil, fmt.Errorf("docker: Image cannot be empty")
	}
	vms := make([]VM, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		vm, err := d.startContainer(ctx, vmName(opts.ClusterName), opts.ClusterName)
		if err != nil {
			return vms, err
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func (d *DockerAdapter) startContainer(ctx context.Context, name string, clusterName string) (VM, error) {
	env := append([]string{}, d.opts.Env...)
	env = append(env, fmt.Sprintf("GRIDSCALER_WORKER_NAME=%s", name))

	cfg := &container.Config{
		Image:    d.opts.Image,
		Hostname: name,
		Env:      env,
		Labels: map[string]string{
			dockerLabel:        "true",
			dockerClusterLabel: clusterName,
		},
	}
	if len(d.opts.Cmd) > 0 {
		cfg.Cmd = strslice.StrSlice(d.opts.Cmd)
	}
	hostConfig := &container.HostConfig{}
	if d.opts.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(d.opts.Network)
	}
	if d.opts.MemoryMiB > 0 {
		hostConfig.Memory = d.opts.MemoryMiB * 1024 * 1024
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostConfig, nil, name)
	if err != nil {
		return VM{}, fmt.Errorf("docker: containerCreate error for: %s - %v", name, err)
	}

	log.Info("docker: starting container", "name", name, "containerId", shortId(resp.ID))
	err = d.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{})
	if err != nil {
		return VM{}, fmt.Errorf("docker: containerStart error for: %s - %v", name, err)
	}

	cont, err := d.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return VM{}, fmt.Errorf("docker: containerInspect error for: %s - %v", name, err)
	}
	vm := VM{Id: resp.ID, Name: name, CreatedAt: time.Now()}
	if cont.NetworkSettings != nil {
		vm.PrivateIpAddr = cont.NetworkSettings.IPAddress
		if vm.PrivateIpAddr == "" {
			vm.PrivateIpAddr = firstEndpointIp(cont.NetworkSettings.Networks)
		}
	}
	return vm, nil
}

func (d *DockerAdapter) DestroyVM(ctx context.Context, id string) error {
	log.Info("docker: removing container", "containerId", shortId(id))
	err := d.client.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true})
	if err != nil {
		if docker.IsErrContainerNotFound(err) {
			return NotFound
		}
		return fmt.Errorf("docker: containerRemove error for: %s - %v", id, err)
	}
	return nil
}

func (d *DockerAdapter) ListVMs(ctx context.Context, opts ListVMsOptions) ([]VM, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", dockerClusterLabel, opts.ClusterName))
	containers, err := d.client.ContainerList(ctx, types.ContainerListOptions{
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: containerList error: %v", err)
	}

	vms := make([]VM, 0, len(containers))
	for _, c := range containers {
		vm := VM{
			Id:        c.ID,
			CreatedAt: time.Unix(c.Created, 0),
		}
		if len(c.Names) > 0 {
			vm.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		if c.NetworkSettings != nil {
			vm.PrivateIpAddr = firstEndpointIp(c.NetworkSettings.Networks)
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func firstEndpointIp(networks map[string]*network.EndpointSettings) string {
	for _, ep := range networks {
		if ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}

func shortId(id string) string {
	if len(id) > 8 {
		return id[0:8]
	}
	return id
}
