package vm

import (
	"context"
	"encoding/base64"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/coopernurse/gridscaler/pkg/config"
	log "github.com/mgutz/logxi/v1"
	"time"
)

const (
	awsClusterTagKey = "gridscaler:cluster"
	awsNameTagKey    = "Name"
)

func NewAwsAdapter(awsSession *session.Session, opts config.AwsOptions) *AwsAdapter {
	return NewAwsAdapterWithClient(ec2.New(awsSession), opts)
}

func NewAwsAdapterWithClient(ec2Client ec2iface.EC2API, opts config.AwsOptions) *AwsAdapter {
	return &AwsAdapter{ec2: ec2Client, opts: opts}
}

type AwsAdapter struct {
	ec2  ec2iface.EC2API
	opts config.AwsOptions
}

func (a *AwsAdapter) Name() string {
	return "aws"
}

// CreateVMs runs one instance per call so that each instance gets a unique Name tag
func (a *AwsAdapter) CreateVMs(ctx context.Context, opts CreateVMsOptions) ([]VM, error) {
	if a.opts.ImageId == "" {
		return nil, fmt.Errorf("aws: ImageId cannot be empty")
	}
	vms := make([]VM, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		name := vmName(opts.ClusterName)
		log.Info("aws: running instance", "name", name, "cluster", opts.ClusterName)
		reservation, err := a.ec2.RunInstancesWithContext(ctx, a.runInstancesInput(name, opts.ClusterName))
		if err != nil {
			return vms, fmt.Errorf("aws: RunInstances failed for %s: %v", name, err)
		}
		for _, inst := range reservation.Instances {
			vms = append(vms, instanceToVM(inst))
		}
	}
	return vms, nil
}

func (a *AwsAdapter) runInstancesInput(name string, clusterName string) *ec2.RunInstancesInput {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(a.opts.ImageId),
		InstanceType: aws.String(a.opts.InstanceType),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeInstance),
				Tags: []*ec2.Tag{
					{Key: aws.String(awsClusterTagKey), Value: aws.String(clusterName)},
					{Key: aws.String(awsNameTagKey), Value: aws.String(name)},
				},
			},
		},
	}
	if a.opts.KeyName != "" {
		input.KeyName = aws.String(a.opts.KeyName)
	}
	if a.opts.SubnetId != "" {
		input.SubnetId = aws.String(a.opts.SubnetId)
	}
	if len(a.opts.SecurityGroupIds) > 0 {
		input.SecurityGroupIds = aws.StringSlice(a.opts.SecurityGroupIds)
	}
	if a.opts.IamInstanceProfile != "" {
		input.IamInstanceProfile = &ec2.IamInstanceProfileSpecification{Name: aws.String(a.opts.IamInstanceProfile)}
	}
	if a.opts.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(a.opts.UserData)))
	}
	return input
}

func (a *AwsAdapter) DestroyVM(ctx context.Context, id string) error {
	log.Info("aws: terminating instance", "instanceId", id)
	_, err := a.ec2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []*string{aws.String(id)},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == "InvalidInstanceID.NotFound" {
			return NotFound
		}
		return fmt.Errorf("aws: TerminateInstances failed for %s: %v", id, err)
	}
	return nil
}

func (a *AwsAdapter) ListVMs(ctx context.Context, opts ListVMsOptions) ([]VM, error) {
	vms := make([]VM, 0)
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + awsClusterTagKey), Values: []*string{aws.String(opts.ClusterName)}},
			{Name: aws.String("instance-state-name"), Values: aws.StringSlice([]string{
				ec2.InstanceStateNamePending, ec2.InstanceStateNameRunning})},
		},
	}
	err := a.ec2.DescribeInstancesPagesWithContext(ctx, input, func(out *ec2.DescribeInstancesOutput, lastPage bool) bool {
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				vms = append(vms, instanceToVM(inst))
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("aws: DescribeInstances failed: %v", err)
	}
	return vms, nil
}

func instanceToVM(inst *ec2.Instance) VM {
	vm := VM{
		Id:            aws.StringValue(inst.InstanceId),
		PublicIpAddr:  aws.StringValue(inst.PublicIpAddress),
		PrivateIpAddr: aws.StringValue(inst.PrivateIpAddress),
		CreatedAt:     aws.TimeValue(inst.LaunchTime),
	}
	if vm.CreatedAt.IsZero() {
		vm.CreatedAt = time.Now()
	}
	for _, tag := range inst.Tags {
		if aws.StringValue(tag.Key) == awsNameTagKey {
			vm.Name = aws.StringValue(tag.Value)
		}
	}
	return vm
}
