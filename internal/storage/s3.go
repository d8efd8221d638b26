package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps"
)

// s3API is the subset of the S3 client the broker uses, split out so tests
// can substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Broker stores objects in an S3 bucket under an optional key prefix.
//
// Credential resolution is left entirely to the SDK's default chain
// (environment, shared config, instance role); the broker carries no
// authentication logic of its own.
type S3Broker struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Broker constructs a broker from the default AWS configuration.
func NewS3Broker(ctx context.Context, bucket, prefix, region string) (*S3Broker, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(3),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, steps.Wrap(steps.ErrConfiguration, "storage", "load aws config", err)
	}
	return &S3Broker{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// NewS3BrokerWithClient constructs a broker around an existing client.
func NewS3BrokerWithClient(client s3API, bucket, prefix string) *S3Broker {
	return &S3Broker{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Broker) key(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

// Put uploads the content under the prefixed key.
func (b *S3Broker) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.bucket, b.key(key), err)
	}
	return nil
}

// Delete removes the object under the prefixed key.
func (b *S3Broker) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", b.bucket, b.key(key), err)
	}
	return nil
}

// Query lists all objects under the prefixed search prefix, following
// continuation tokens so the full result set is returned. Keys are reported
// relative to the broker prefix.
func (b *S3Broker) Query(ctx context.Context, prefix string) (*pipefile.RemoteCollection, error) {
	var matches []pipefile.RemoteFile
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.key(prefix)),
	}
	for {
		out, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", b.bucket, b.key(prefix), err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if b.prefix != "" {
				rel, err := relativeKey(b.prefix, key)
				if err != nil {
					continue
				}
				key = rel
			}
			matches = append(matches, pipefile.RemoteFile{
				DestPath:     key,
				LastModified: aws.ToTime(obj.LastModified).UTC(),
				Size:         aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return pipefile.NewRemoteCollection(matches...), nil
}

func relativeKey(prefix, key string) (string, error) {
	cleaned := path.Clean(prefix) + "/"
	if len(key) < len(cleaned) || key[:len(cleaned)] != cleaned {
		return "", fmt.Errorf("key %q outside prefix %q", key, prefix)
	}
	return key[len(cleaned):], nil
}
