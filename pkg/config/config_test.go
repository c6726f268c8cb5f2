package config

import (
	"bytes"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/stretchr/testify/assert"
	"io/ioutil"
	"os"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	env := `
# comment here
GSCALE_ADMIN_PORT=1
GSCALE_GRID_URL=http://grid:8080/
GSCALE_GRID_TIMEOUT_SECONDS=3

# ignore blank lines
GSCALE_SQL_DRIVER=driver
GSCALE_SQL_DSN=dsn Here
GSCALE_JOURNAL_RETENTION_HOURS=24
GSCALE_SCHEDULE_FILE=/etc/gridscaler/schedule.yml
GSCALE_EVENT_QUEUE_URL=q1

GSCALE_ENABLED=true
GSCALE_MAX_WORKERS_CAP=40
GSCALE_MIN_WORKERS_CAP=2
GSCALE_LAUNCHING_TIMEOUT_MINUTES=15
GSCALE_POLLING_INTERVAL_MS=2500
GSCALE_TERMINATE_WORKER_AFTER_MINUTES_IDLE=7
GSCALE_RAMP_UP_SPEED_RATIO=0.25
GSCALE_CALL_TIMEOUT_SECONDS=20

GSCALE_PROVIDER=aws
GSCALE_KEY_BY=address
GSCALE_CPUS_PER_WORKER=4
GSCALE_CONFIG_URL=http://config/
GSCALE_AWS_IMAGE_ID=ami-123
GSCALE_AWS_SECURITY_GROUP_IDS=sg-1,sg-2
GSCALE_DOCKER_IMAGE=acme/worker:latest
GSCALE_DOCKER_MEMORY_MIB=512
`

	expected := Config{
		AdminPort:                       1,
		GridUrl:                         "http://grid:8080/",
		GridTimeoutSeconds:              3,
		SqlDriver:                       "driver",
		SqlDsn:                          "dsn Here",
		JournalRetentionHours:           24,
		ScheduleFile:                    "/etc/gridscaler/schedule.yml",
		EventQueueUrl:                   "q1",
		Enabled:                         true,
		MaxWorkersCap:                   40,
		MinWorkersCap:                   2,
		LaunchingTimeoutMinutes:         15,
		PollingIntervalMs:               2500,
		TerminateWorkerAfterMinutesIdle: 7,
		RampUpSpeedRatio:                0.25,
		CallTimeoutSeconds:              20,
		Provider:                        "aws",
		KeyBy:                           "address",
		CpusPerWorker:                   4,
		ConfigUrl:                       "http://config/",
		ClusterName:                     "gridscaler",
		DigitalOcean: &DigitalOceanOptions{
			AccessToken:    "",
			Region:         "nyc3",
			SSHFingerprint: "",
			DropletSize:    "s-1vcpu-1gb",
			ImageSlug:      "debian-9-x64",
			Backups:        true,
			IPV6:           false,
		},
		Aws: &AwsOptions{
			Region:           "us-east-1",
			ImageId:          "ami-123",
			InstanceType:     "t3.micro",
			SecurityGroupIds: []string{"sg-1", "sg-2"},
		},
		Docker: &DockerOptions{
			Image:     "acme/worker:latest",
			MemoryMiB: 512,
		},
	}

	os.Clearenv()
	assert.Nil(t, ReaderToEnv(bytes.NewBufferString(env)))
	conf, err := FromEnv()
	assert.Nil(t, err)
	assert.Equal(t, expected, conf)

	opts := conf.AutoscalerOptions()
	assert.Equal(t, autoscaler.Options{
		EnabledAtStart:                  true,
		MaxWorkersCap:                   common.IntPtr(40),
		MinWorkersCap:                   common.IntPtr(2),
		LaunchingTimeoutMinutes:         15,
		PollingIntervalMS:               2500,
		TerminateWorkerAfterMinutesIdle: 7,
		RampUpSpeedRatio:                0.25,
		CallTimeout:                     20 * time.Second,
	}, opts)
	assert.Equal(t, 3*time.Second, conf.GridTimeout())
	assert.Equal(t, 24*time.Hour, conf.JournalRetention())
}

func TestDefaultsMatchAutoscalerDefaults(t *testing.T) {
	os.Clearenv()
	conf, err := FromEnv()
	assert.Nil(t, err)

	opts := conf.AutoscalerOptions()
	expected := autoscaler.DefaultOptions()
	expected.CallTimeout = time.Minute
	assert.Equal(t, expected, opts)
}

func TestFromEnvFile(t *testing.T) {
	os.Clearenv()
	f, err := ioutil.TempFile("", "gridscaler-env")
	assert.Nil(t, err)
	defer os.Remove(f.Name())
	_, err = f.WriteString("GSCALE_MAX_WORKERS_CAP=0\nGSCALE_RAMP_UP_SPEED_RATIO=40\n")
	assert.Nil(t, err)
	assert.Nil(t, f.Close())

	conf, err := FromEnvFile(f.Name())
	assert.Nil(t, err)
	opts := conf.AutoscalerOptions()
	assert.Nil(t, opts.MaxWorkersCap)
	assert.Equal(t, 10.0, opts.RampUpSpeedRatio)

	_, err = FromEnvFile("/does/not/exist.env")
	assert.NotNil(t, err)
}
