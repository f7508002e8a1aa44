package awsclient

import "time"

type Option func(c *Client)

func ConnAttempts(attempts int) Option {
	return func(c *Client) {
		c.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.connTimeout = timeout
	}
}

func Region(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// Endpoint overrides the service endpoint, e.g. for localstack.
func Endpoint(endpoint string) Option {
	return func(c *Client) {
		c.Endpoint = endpoint
	}
}

// StaticCredentials replaces the default credential chain.
func StaticCredentials(accessKey, secretKey string) Option {
	return func(c *Client) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

func UsePathStyle(use bool) Option {
	return func(c *Client) {
		c.UsePathStyle = use
	}
}
