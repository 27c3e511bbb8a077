package clients

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	defaultRegion      = "us-east-2"
	localStackEndpoint = "http://docker.for.mac.host.internal:4566"
)

// loadAWSConfig loads the default credential chain. Local runs point every
// service at LocalStack.
func loadAWSConfig(isLocal bool) aws.Config {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		panic("failed to load AWS configuration: " + err.Error())
	}

	if isLocal {
		cfg.BaseEndpoint = aws.String(localStackEndpoint)
	}
	return cfg
}
