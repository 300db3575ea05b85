package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// AWS Deep Learning OSS AMIs ship the NVIDIA driver and PyTorch
const deepLearningAMIPattern = "Deep Learning OSS Nvidia Driver AMI GPU PyTorch * (Ubuntu 22.04) *"

type machineImage struct {
	id      string
	name    string
	created string
}

// findDeepLearningAMI returns the newest available GPU deep learning AMI
func (c *Client) findDeepLearningAMI(ctx context.Context) (*machineImage, error) {
	input := &ec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []types.Filter{
			{
				Name:   aws.String("name"),
				Values: []string{deepLearningAMIPattern},
			},
			{
				Name:   aws.String("state"),
				Values: []string{"available"},
			},
			{
				Name:   aws.String("architecture"),
				Values: []string{"x86_64"},
			},
		},
	}

	result, err := c.ec2Client.DescribeImages(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("no image matches %q", deepLearningAMIPattern)
	}

	images := make([]machineImage, 0, len(result.Images))
	for _, img := range result.Images {
		images = append(images, machineImage{
			id:      aws.ToString(img.ImageId),
			name:    aws.ToString(img.Name),
			created: aws.ToString(img.CreationDate),
		})
	}

	// CreationDate is ISO 8601, so lexical order is chronological
	sort.Slice(images, func(i, j int) bool {
		return images[i].created > images[j].created
	})

	return &images[0], nil
}
