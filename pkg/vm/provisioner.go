package vm

import (
	"context"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	log "github.com/mgutz/logxi/v1"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"math"
)

type KeyBy string

const (
	// KeyByName keys workers by the name they report to the grid, which must equal the VM name
	KeyByName KeyBy = "name"
	// KeyByAddress keys workers by their remote address, which must equal the VM's private
	// (or, if it has none, public) IP address
	KeyByAddress KeyBy = "address"
)

func ParseKeyBy(s string) (KeyBy, error) {
	switch KeyBy(s) {
	case KeyByName, KeyByAddress:
		return KeyBy(s), nil
	}
	return "", fmt.Errorf("vm: invalid KeyBy: %s", s)
}

type ProvisionerOptions struct {
	ClusterName   string
	KeyBy         KeyBy
	CPUsPerWorker float64
	ConfigUrl     string
}

// NewProvisioner returns an autoscaler.Implementation that launches and terminates
// workers through adapter
func NewProvisioner(adapter Adapter, opts ProvisionerOptions) *Provisioner {
	if opts.KeyBy == "" {
		opts.KeyBy = KeyByName
	}
	if opts.CPUsPerWorker <= 0 {
		opts.CPUsPerWorker = 1
	}
	return &Provisioner{adapter: adapter, opts: opts}
}

type Provisioner struct {
	adapter Adapter
	opts    ProvisionerOptions
}

func (p *Provisioner) TranslateToWorkerKeys(ctx context.Context, workers []autoscaler.Worker) ([]autoscaler.WorkerKey, error) {
	keys := make([]autoscaler.WorkerKey, len(workers))
	for i, w := range workers {
		if p.opts.KeyBy == KeyByAddress {
			keys[i] = autoscaler.WorkerKey(w.RemoteAddress)
		} else {
			keys[i] = autoscaler.WorkerKey(w.Name)
		}
	}
	return keys, nil
}

// EstimateWorkersLaunchRequest requests enough workers to pay off the grid's CPU debt
func (p *Provisioner) EstimateWorkersLaunchRequest(ctx context.Context,
	state *autoscaler.GridState) (autoscaler.LaunchRequest, error) {
	num := int(math.Ceil(state.CPUDebt / p.opts.CPUsPerWorker))
	if num < 0 {
		num = 0
	}
	return autoscaler.LaunchRequest{NumInstances: num, Hint: p.adapter.Name()}, nil
}

func (p *Provisioner) LaunchInstances(ctx context.Context, req autoscaler.LaunchRequest) ([]autoscaler.WorkerInstance, error) {
	vms, err := p.adapter.CreateVMs(ctx, CreateVMsOptions{ClusterName: p.opts.ClusterName, Count: req.NumInstances})
	if err != nil {
		if len(vms) == 0 {
			return nil, errors.Wrap(err, "vm: CreateVMs failed")
		}
		log.Warn("vm: CreateVMs partially failed", "adapter", p.adapter.Name(), "requested", req.NumInstances,
			"created", len(vms), "err", err)
	}

	instances := make([]autoscaler.WorkerInstance, len(vms))
	for i, vm := range vms {
		instances[i] = autoscaler.WorkerInstance{InstanceId: vm.Id, WorkerKey: p.keyForVM(vm)}
	}
	log.Info("vm: launched instances", "adapter", p.adapter.Name(), "count", len(instances))
	return instances, nil
}

// TerminateInstances destroys the cluster VMs matching keys. Keys with no matching VM
// are skipped. An error is returned only if no VM could be destroyed.
func (p *Provisioner) TerminateInstances(ctx context.Context, keys []autoscaler.WorkerKey) ([]autoscaler.WorkerInstance, error) {
	vms, err := p.adapter.ListVMs(ctx, ListVMsOptions{ClusterName: p.opts.ClusterName})
	if err != nil {
		return nil, errors.Wrap(err, "vm: ListVMs failed")
	}
	vmByKey := make(map[autoscaler.WorkerKey]VM, len(vms))
	for _, vm := range vms {
		vmByKey[p.keyForVM(vm)] = vm
	}

	var errs error
	instances := make([]autoscaler.WorkerInstance, 0, len(keys))
	for _, key := range keys {
		vm, ok := vmByKey[key]
		if !ok {
			log.Warn("vm: no VM found for worker key", "adapter", p.adapter.Name(), "key", key)
			continue
		}
		err = p.adapter.DestroyVM(ctx, vm.Id)
		if err != nil && err != NotFound {
			errs = multierr.Append(errs, errors.Wrapf(err, "vm: DestroyVM failed for %s", vm.Id))
			continue
		}
		instances = append(instances, autoscaler.WorkerInstance{InstanceId: vm.Id, WorkerKey: key})
	}

	if errs != nil {
		if len(instances) == 0 {
			return nil, errs
		}
		log.Warn("vm: some VMs could not be destroyed", "adapter", p.adapter.Name(), "err", errs)
	}
	return instances, nil
}

func (p *Provisioner) ConfigUrl(ctx context.Context) (string, error) {
	return p.opts.ConfigUrl, nil
}

func (p *Provisioner) keyForVM(vm VM) autoscaler.WorkerKey {
	if p.opts.KeyBy == KeyByAddress {
		if vm.PrivateIpAddr != "" {
			return autoscaler.WorkerKey(vm.PrivateIpAddr)
		}
		return autoscaler.WorkerKey(vm.PublicIpAddr)
	}
	return autoscaler.WorkerKey(vm.Name)
}
