package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"llama-lora/core/models"
	"llama-lora/core/spec"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
)

// gpuFamilies maps GPU models to the instance families that carry them
var gpuFamilies = map[string][]string{
	"A10G": {"g5.*"},
	"T4":   {"g4dn.*"},
	"A100": {"p4d.*", "p4de.*"},
	"V100": {"p3.*", "p3dn.*"},
	"L4":   {"g6.*"},
	"H100": {"p5.*"},
}

type instanceType struct {
	name         string
	gpuName      string
	gpus         int
	gpuMemoryMiB int
	vcpus        int
	memoryMiB    int64
}

func (c *Client) findInstanceType(ctx context.Context, rt models.RuntimeSpec) (*instanceType, error) {
	gpu := strings.ToUpper(rt.GPU)
	families, ok := gpuFamilies[gpu]
	if !ok {
		return nil, fmt.Errorf("unsupported GPU type %q", rt.GPU)
	}

	memBytes, err := spec.MemoryBytes(rt.Memory)
	if err != nil {
		return nil, err
	}
	memMiB := (memBytes + (1<<20 - 1)) >> 20

	input := &ec2.DescribeInstanceTypesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("instance-type"),
				Values: families,
			},
		},
	}

	var candidates []*instanceType
	paginator := ec2.NewDescribeInstanceTypesPaginator(c.ec2Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instance types: %w", err)
		}
		for _, info := range page.InstanceTypes {
			if it := toInstanceType(info); it != nil {
				candidates = append(candidates, it)
			}
		}
	}

	matching := lo.Filter(candidates, func(it *instanceType, _ int) bool {
		return strings.EqualFold(it.gpuName, gpu) && it.vcpus >= rt.CPU && it.memoryMiB >= memMiB
	})
	if len(matching) == 0 {
		return nil, fmt.Errorf("no %s instance type in %s with %d vCPUs and %s memory", rt.GPU, c.region, rt.CPU, rt.Memory)
	}

	sort.Slice(matching, func(i, j int) bool {
		a, b := matching[i], matching[j]
		if a.gpus != b.gpus {
			return a.gpus < b.gpus
		}
		if a.vcpus != b.vcpus {
			return a.vcpus < b.vcpus
		}
		if a.memoryMiB != b.memoryMiB {
			return a.memoryMiB < b.memoryMiB
		}
		return a.name < b.name
	})

	return matching[0], nil
}

func toInstanceType(info types.InstanceTypeInfo) *instanceType {
	if info.GpuInfo == nil || len(info.GpuInfo.Gpus) == 0 || info.VCpuInfo == nil || info.MemoryInfo == nil {
		return nil
	}

	gpu := info.GpuInfo.Gpus[0]
	it := &instanceType{
		name:         string(info.InstanceType),
		gpuName:      aws.ToString(gpu.Name),
		gpus:         int(aws.ToInt32(gpu.Count)),
		gpuMemoryMiB: int(aws.ToInt32(info.GpuInfo.TotalGpuMemoryInMiB)),
		vcpus:        int(aws.ToInt32(info.VCpuInfo.DefaultVCpus)),
		memoryMiB:    aws.ToInt64(info.MemoryInfo.SizeInMiB),
	}
	return it
}
