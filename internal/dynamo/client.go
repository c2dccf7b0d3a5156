// Package dynamo builds the DynamoDB client for the dynamodb token backend.
// It is the only package that imports the AWS SDK; the token store works with
// the aliases and helpers below.
package dynamo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Config locates the DynamoDB endpoint.
type Config struct {
	// Endpoint is set for LocalStack (e.g. "http://localhost:4566") and empty
	// against AWS.
	Endpoint string
	Region   string
	// Timeout bounds each HTTP request the SDK makes. Zero keeps the SDK
	// default client.
	Timeout time.Duration
}

// Client holds the SDK client. DB satisfies the narrow item interface the
// token store declares.
type Client struct {
	DB *dynamodb.Client
}

// NewClient loads the default AWS configuration for cfg.Region. A LocalStack
// endpoint gets static test credentials.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Client{DB: db}, nil
}

// Item operations used by the token store.
type (
	GetItemInput     = dynamodb.GetItemInput
	GetItemOutput    = dynamodb.GetItemOutput
	PutItemInput     = dynamodb.PutItemInput
	PutItemOutput    = dynamodb.PutItemOutput
	DeleteItemInput  = dynamodb.DeleteItemInput
	DeleteItemOutput = dynamodb.DeleteItemOutput
	Options          = dynamodb.Options
)

type (
	AttributeValue        = types.AttributeValue
	AttributeValueMemberS = types.AttributeValueMemberS
)

// StringKey builds a single-attribute string primary key.
func StringKey(attr, value string) map[string]AttributeValue {
	return map[string]AttributeValue{attr: &AttributeValueMemberS{Value: value}}
}

var (
	Bool         = aws.Bool
	MarshalMap   = attributevalue.MarshalMap
	UnmarshalMap = attributevalue.UnmarshalMap
)
