package vm

import (
	"context"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/config"
	"github.com/digitalocean/godo"
	log "github.com/mgutz/logxi/v1"
	"golang.org/x/oauth2"
	"net/http"
	"strconv"
	"time"
)

const dropletPageSize = 200

func NewDOAdapter(opts config.DigitalOceanOptions) *DOAdapter {
	tokenSource := &TokenSource{
		AccessToken: opts.AccessToken,
	}
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)
	return NewDOAdapterWithClient(godo.NewClient(oauthClient), opts)
}

func NewDOAdapterWithClient(client *godo.Client, opts config.DigitalOceanOptions) *DOAdapter {
	return &DOAdapter{
		client:       client,
		opts:         opts,
		ipWait:       2 * time.Minute,
		ipPollPeriod: 2 * time.Second,
	}
}

type DOAdapter struct {
	client       *godo.Client
	opts         config.DigitalOceanOptions
	ipWait       time.Duration
	ipPollPeriod time.Duration
}

func (d *DOAdapter) Name() string {
	return "digitalocean"
}

func (d *DOAdapter) CreateVMs(ctx context.Context, opts CreateVMsOptions) ([]VM, error) {
	if opts.Count <= 0 {
		return []VM{}, nil
	}
	if d.opts.Region == "" {
		return nil, fmt.Errorf("digitalocean: Region cannot be empty")
	}

	names := make([]string, opts.Count)
	for i := range names {
		names[i] = vmName(opts.ClusterName)
	}
	var sshKeys []godo.DropletCreateSSHKey
	if d.opts.SSHFingerprint != "" {
		sshKeys = []godo.DropletCreateSSHKey{{Fingerprint: d.opts.SSHFingerprint}}
	}

	log.Info("digitalocean: creating droplets", "count", opts.Count, "cluster", opts.ClusterName)
	droplets, _, err := d.client.Droplets.CreateMultiple(ctx, &godo.DropletMultiCreateRequest{
		Names:             names,
		Region:            d.opts.Region,
		Size:              d.opts.DropletSize,
		Image:             godo.DropletCreateImage{Slug: d.opts.ImageSlug},
		SSHKeys:           sshKeys,
		Backups:           d.opts.Backups,
		IPv6:              d.opts.IPV6,
		PrivateNetworking: true,
		Monitoring:        true,
		UserData:          d.opts.UserData,
		Tags:              []string{clusterTag(opts.ClusterName)},
	})
	if err != nil {
		return nil, fmt.Errorf("digitalocean: error creating droplets: %v", err)
	}

	vms := make([]VM, 0, len(droplets))
	for _, created := range droplets {
		droplet, err := d.waitForDropletIPAddrs(ctx, created.ID)
		if err != nil {
			return vms, err
		}
		vm, err := dropletToVM(droplet)
		if err != nil {
			return vms, err
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func (d *DOAdapter) waitForDropletIPAddrs(ctx context.Context, dropletId int) (*godo.Droplet, error) {
	deadline := time.Now().Add(d.ipWait)
	for time.Now().Before(deadline) {
		droplet, _, err := d.client.Droplets.Get(ctx, dropletId)
		if err != nil {
			return nil, fmt.Errorf("digitalocean: error getting droplet %d: %v", dropletId, err)
		}
		publicIp, privateIp := getDropletIpAddrs(droplet)
		if publicIp != "" || privateIp != "" {
			return droplet, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.ipPollPeriod):
		}
	}
	return nil, fmt.Errorf("digitalocean: timeout waiting for IP addresses for droplet %d", dropletId)
}

func (d *DOAdapter) DestroyVM(ctx context.Context, id string) error {
	dropletId, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("digitalocean: invalid droplet id: %s", id)
	}
	log.Info("digitalocean: deleting droplet", "id", id)
	resp, err := d.client.Droplets.Delete(ctx, dropletId)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return NotFound
		}
		return fmt.Errorf("digitalocean: error deleting droplet %d: %v", dropletId, err)
	}
	return nil
}

func (d *DOAdapter) ListVMs(ctx context.Context, opts ListVMsOptions) ([]VM, error) {
	vms := make([]VM, 0)
	listOpts := &godo.ListOptions{Page: 1, PerPage: dropletPageSize}
	for {
		droplets, resp, err := d.client.Droplets.ListByTag(ctx, clusterTag(opts.ClusterName), listOpts)
		if err != nil {
			return nil, fmt.Errorf("digitalocean: error listing droplets: %v", err)
		}
		for i := range droplets {
			vm, err := dropletToVM(&droplets[i])
			if err != nil {
				log.Error("digitalocean: error getting droplet IP addresses", "err", err)
			}
			vms = append(vms, vm)
		}
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, fmt.Errorf("digitalocean: error reading droplet page: %v", err)
		}
		listOpts.Page = page + 1
	}
	return vms, nil
}

func getDropletIpAddrs(droplet *godo.Droplet) (string, string) {
	// PublicIPv4 and PrivateIPv4 only fail if the droplet has no networks yet
	publicIp, _ := droplet.PublicIPv4()
	privateIp, _ := droplet.PrivateIPv4()
	return publicIp, privateIp
}

func dropletToVM(droplet *godo.Droplet) (VM, error) {
	publicIp, privateIp := getDropletIpAddrs(droplet)
	vm := VM{
		Id:            strconv.Itoa(droplet.ID),
		Name:          droplet.Name,
		PublicIpAddr:  publicIp,
		PrivateIpAddr: privateIp,
	}
	if droplet.Created != "" {
		created, err := time.Parse(time.RFC3339, droplet.Created)
		if err != nil {
			return vm, fmt.Errorf("digitalocean: error parsing droplet created date: %s - %v", droplet.Created, err)
		}
		vm.CreatedAt = created
	}
	return vm, nil
}

type TokenSource struct {
	AccessToken string
}

func (t *TokenSource) Token() (*oauth2.Token, error) {
	token := &oauth2.Token{
		AccessToken: t.AccessToken,
	}
	return token, nil
}
