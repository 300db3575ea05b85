package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"llama-lora/core/models"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
)

// The Pricing API is only served from a few regions
const pricingRegion = "us-east-1"

type ec2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

type pricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Client resolves runtime declarations against the EC2 catalogue of one region
type Client struct {
	ec2Client     ec2API
	pricingClient pricingAPI
	region        string
}

// NewClient creates a new AWS client using the default credential chain
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	pricingCfg := cfg.Copy()
	pricingCfg.Region = pricingRegion

	return &Client{
		ec2Client:     ec2.NewFromConfig(cfg),
		pricingClient: pricing.NewFromConfig(pricingCfg),
		region:        region,
	}, nil
}

// PlanRuntime picks the smallest instance type that satisfies the runtime
// declaration, with the newest GPU deep learning AMI and the on-demand price.
// A missing AMI or price leaves those fields empty.
func (c *Client) PlanRuntime(ctx context.Context, rt models.RuntimeSpec) (*models.InstancePlan, error) {
	it, err := c.findInstanceType(ctx, rt)
	if err != nil {
		return nil, err
	}

	plan := &models.InstancePlan{
		Region:       c.region,
		InstanceType: it.name,
		GPUType:      it.gpuName,
		GPUs:         it.gpus,
		GPUMemoryMiB: it.gpuMemoryMiB,
		VCPUs:        it.vcpus,
		MemoryMiB:    it.memoryMiB,
		ResolvedAt:   time.Now(),
	}

	if image, err := c.findDeepLearningAMI(ctx); err != nil {
		slog.Warn("no deep learning AMI found", "region", c.region, "error", err)
	} else {
		plan.ImageID = image.id
		plan.ImageName = image.name
	}

	if price, err := c.onDemandPrice(ctx, it.name); err != nil {
		slog.Warn("no on-demand price found", "region", c.region, "instance_type", it.name, "error", err)
	} else {
		plan.PricePerHour = &price
	}

	slog.Info("resolved runtime plan", "region", plan.Region, "instance_type", plan.InstanceType, "image_id", plan.ImageID)
	return plan, nil
}
