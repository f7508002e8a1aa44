package persistent

import (
	"bytes"
	"context"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/pkg/awsclient"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveRepo keeps copies of sent aggregated emails in an S3 bucket.
type ArchiveRepo struct {
	client *s3.Client
	bucket string
}

func NewArchiveRepo(c *awsclient.Client, bucket string) *ArchiveRepo {
	return &ArchiveRepo{
		client: s3.NewFromConfig(c.Config, func(o *s3.Options) {
			o.UsePathStyle = c.UsePathStyle
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
			}
		}),
		bucket: bucket,
	}
}

func (r *ArchiveRepo) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("ArchiveRepo - Put - r.client.PutObject: %w", err)
	}

	return nil
}
