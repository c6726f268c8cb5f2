package vm

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"time"
)

var NotFound = fmt.Errorf("not found")

// Adapter provisions VMs (or containers) that run grid workers. Every VM an Adapter
// creates is tagged with the cluster name, and ListVMs only returns tagged VMs.
type Adapter interface {
	Name() string
	// CreateVMs may return fewer VMs than requested, along with the error that
	// stopped it
	CreateVMs(ctx context.Context, opts CreateVMsOptions) ([]VM, error)
	// DestroyVM returns NotFound if no VM has the given id
	DestroyVM(ctx context.Context, id string) error
	ListVMs(ctx context.Context, opts ListVMsOptions) ([]VM, error)
}

type VM struct {
	Id            string
	Name          string
	CreatedAt     time.Time
	PublicIpAddr  string
	PrivateIpAddr string
}

type CreateVMsOptions struct {
	ClusterName string
	Count       int
}

type ListVMsOptions struct {
	ClusterName string
}

// vmName returns a unique VM name within clusterName
func vmName(clusterName string) string {
	return fmt.Sprintf("%s-%s", clusterName, uuid.New().String()[0:8])
}

func clusterTag(clusterName string) string {
	return fmt.Sprintf("cluster:%s", clusterName)
}
