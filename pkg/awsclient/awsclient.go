package awsclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
	_defaultRegion       = "us-east-1"
)

// Client holds one aws.Config shared by the SES, SNS and S3 service clients.
type Client struct {
	connAttempts int
	connTimeout  time.Duration

	region    string
	accessKey string
	secretKey string

	Endpoint     string
	UsePathStyle bool

	Config aws.Config
}

func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
		region:       _defaultRegion,
	}

	for _, opt := range opts {
		opt(c)
	}

	var err error
	for c.connAttempts > 0 {
		err = c.load(ctx)
		if err == nil {
			break
		}

		log.Printf("AWS config is trying to load, attempts left: %d", c.connAttempts)

		time.Sleep(c.connTimeout)

		c.connAttempts--
	}

	if err != nil {
		return nil, fmt.Errorf("AWSClient - New - connAttempts == 0: %w", err)
	}

	return c, nil
}

func (c *Client) load(ctx context.Context) error {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(c.region),
	}
	if c.accessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.accessKey, c.secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("AWSClient - config.LoadDefaultConfig: %w", err)
	}

	// check credentials resolve
	_, err = cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("AWSClient - cfg.Credentials.Retrieve: %w", err)
	}

	c.Config = cfg

	return nil
}
