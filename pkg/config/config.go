package config

import (
	"bufio"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/kelseyhightower/envconfig"
	"io"
	"os"
	"strings"
	"time"
)

const envPrefix = "gscale"

func FileToEnv(fname string) (err error) {
	file, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("config: error opening env file: %s - %v", fname, err)
	}
	defer common.CheckClose(file, &err)
	err = ReaderToEnv(file)
	if err != nil {
		return fmt.Errorf("config: error reading env file: %s - %v", fname, err)
	}
	return nil
}

// ReaderToEnv sets an env var for each KEY=value line in r. Blank lines and lines
// starting with # are ignored.
func ReaderToEnv(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		pos := strings.Index(line, "=")
		if pos > 0 && !strings.HasPrefix(line, "#") {
			key := strings.TrimSpace(line[0:pos])
			val := strings.TrimSpace(line[pos+1:])
			if key != "" {
				err := os.Setenv(key, val)
				if err != nil {
					return fmt.Errorf("config: unable to set env var: %s - %v", key, err)
				}
			}
		}
	}

	err := scanner.Err()
	if err != nil {
		return fmt.Errorf("config: error scanning env - %v", err)
	}
	return nil
}

func FromEnvFile(fname string) (Config, error) {
	err := FileToEnv(fname)
	if err != nil {
		return Config{}, err
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	err := envconfig.Process(envPrefix, &c)
	if err != nil {
		return Config{}, err
	}
	return c, nil
}

type Config struct {
	// Server options

	// Port used for the admin API
	AdminPort int `default:"8390" split_words:"true"`
	// Base URL of the grid's autoscalable endpoints
	GridUrl string `split_words:"true"`
	// Timeout for each HTTP request made to the grid
	GridTimeoutSeconds int `default:"10" split_words:"true"`
	// database/sql driver to use. If empty, events and settings are kept in memory.
	SqlDriver string `split_words:"true"`
	// DSN for sql database - format is specific to each particular database driver
	SqlDsn string `split_words:"true"`
	// Journal events older than this are pruned hourly
	JournalRetentionHours int `default:"168" split_words:"true"`
	// Optional YAML file of cron scheduled option overrides
	ScheduleFile string `split_words:"true"`
	// If set, every autoscaler event is forwarded to this SQS queue
	EventQueueUrl string `split_words:"true"`

	// Autoscaler options

	Enabled bool
	// 0 means no cap
	MaxWorkersCap int `split_words:"true"`
	// 0 means no floor
	MinWorkersCap                   int     `split_words:"true"`
	LaunchingTimeoutMinutes         int     `default:"10" split_words:"true"`
	PollingIntervalMs               int     `default:"1000" split_words:"true"`
	TerminateWorkerAfterMinutesIdle int     `default:"1" split_words:"true"`
	RampUpSpeedRatio                float64 `default:"0.5" split_words:"true"`
	// If > 0, bounds every grid and provisioning call made by the autoscaler
	CallTimeoutSeconds int `default:"60" split_words:"true"`

	// Provisioning options

	// One of: digitalocean, aws, docker
	Provider string `default:"docker"`
	// How grid workers map to provisioned VMs: name or address
	KeyBy string `default:"name" split_words:"true"`
	// CPUs contributed by each worker - used to convert CPU debt to an instance count
	CpusPerWorker float64 `default:"1" split_words:"true"`
	// Returned as the autoscaler's config URL
	ConfigUrl string `split_words:"true"`
	// Tag applied to every VM so that the adapter only manages its own VMs
	ClusterName string `default:"gridscaler" split_words:"true"`

	DigitalOcean *DigitalOceanOptions `envconfig:"DO"`
	Aws          *AwsOptions
	Docker       *DockerOptions
}

type DigitalOceanOptions struct {
	AccessToken    string `split_words:"true"`
	Region         string `default:"nyc3"`
	SSHFingerprint string `envconfig:"SSH_FINGERPRINT"`
	DropletSize    string `default:"s-1vcpu-1gb" split_words:"true"`
	ImageSlug      string `default:"debian-9-x64" split_words:"true"`
	Backups        bool   `default:"true"`
	IPV6           bool   `envconfig:"IPV6"`
	UserData       string `split_words:"true"`
}

type AwsOptions struct {
	Region             string   `default:"us-east-1"`
	ImageId            string   `split_words:"true"`
	InstanceType       string   `default:"t3.micro" split_words:"true"`
	KeyName            string   `split_words:"true"`
	SubnetId           string   `split_words:"true"`
	SecurityGroupIds   []string `split_words:"true"`
	IamInstanceProfile string   `split_words:"true"`
	UserData           string   `split_words:"true"`
}

type DockerOptions struct {
	Image     string
	Network   string
	Cmd       []string
	Env       []string
	MemoryMiB int64 `envconfig:"MEMORY_MIB"`
}

// AutoscalerOptions converts the autoscaler settings to autoscaler.Options.
// Caps of 0 are treated as unset.
func (c Config) AutoscalerOptions() autoscaler.Options {
	opts := autoscaler.Options{
		EnabledAtStart:                  c.Enabled,
		LaunchingTimeoutMinutes:         c.LaunchingTimeoutMinutes,
		PollingIntervalMS:               c.PollingIntervalMs,
		TerminateWorkerAfterMinutesIdle: c.TerminateWorkerAfterMinutesIdle,
		RampUpSpeedRatio:                c.RampUpSpeedRatio,
		CallTimeout:                     time.Duration(c.CallTimeoutSeconds) * time.Second,
	}
	if c.MaxWorkersCap > 0 {
		opts.MaxWorkersCap = common.IntPtr(c.MaxWorkersCap)
	}
	if c.MinWorkersCap > 0 {
		opts.MinWorkersCap = common.IntPtr(c.MinWorkersCap)
	}
	return opts.Bounded()
}

func (c Config) GridTimeout() time.Duration {
	return time.Duration(c.GridTimeoutSeconds) * time.Second
}

func (c Config) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionHours) * time.Hour
}
