package vm

import (
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/coopernurse/gridscaler/pkg/config"
	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
)

// NewAwsSession creates a session using the default credential chain
func NewAwsSession(region string) (*session.Session, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config: aws.Config{
			Region: aws.String(region),
		},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vm: unable to create aws session")
	}
	return sess, nil
}

// NewAdapterFromConfig returns the Adapter selected by cfg.Provider
func NewAdapterFromConfig(cfg config.Config) (Adapter, error) {
	switch cfg.Provider {
	case "digitalocean":
		if cfg.DigitalOcean == nil || cfg.DigitalOcean.AccessToken == "" {
			return nil, fmt.Errorf("vm: GSCALE_DO_ACCESS_TOKEN is required for provider digitalocean")
		}
		return NewDOAdapter(*cfg.DigitalOcean), nil
	case "aws":
		if cfg.Aws == nil || cfg.Aws.ImageId == "" {
			return nil, fmt.Errorf("vm: GSCALE_AWS_IMAGE_ID is required for provider aws")
		}
		sess, err := NewAwsSession(cfg.Aws.Region)
		if err != nil {
			return nil, err
		}
		return NewAwsAdapter(sess, *cfg.Aws), nil
	case "docker":
		if cfg.Docker == nil || cfg.Docker.Image == "" {
			return nil, fmt.Errorf("vm: GSCALE_DOCKER_IMAGE is required for provider docker")
		}
		dockerClient, err := docker.NewEnvClient()
		if err != nil {
			return nil, errors.Wrap(err, "vm: unable to create docker client")
		}
		return NewDockerAdapter(dockerClient, *cfg.Docker), nil
	}
	return nil, fmt.Errorf("vm: unknown provider: %s", cfg.Provider)
}

// NewProvisionerFromConfig builds the autoscaler.Implementation described by cfg
func NewProvisionerFromConfig(cfg config.Config) (*Provisioner, error) {
	keyBy, err := ParseKeyBy(cfg.KeyBy)
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapterFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewProvisioner(adapter, ProvisionerOptions{
		ClusterName:   cfg.ClusterName,
		KeyBy:         keyBy,
		CPUsPerWorker: cfg.CpusPerWorker,
		ConfigUrl:     cfg.ConfigUrl,
	}), nil
}
