package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kdani7777/Soothsayer/internal/text"
)

// MetadataSource is the document metadata key holding the object URI.
const MetadataSource = "source"

// ObjectAPI is the subset of the S3 client the loader uses.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Loader reads every object under a prefix as one raw document.
type Loader struct {
	client ObjectAPI
	bucket string
}

// New builds a loader from the default AWS credential chain. Static keys and
// a custom endpoint are used when set.
func New(ctx context.Context, opts Options) (*Loader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts.Bucket), nil
}

func NewWithClient(client ObjectAPI, bucket string) *Loader {
	return &Loader{client: client, bucket: bucket}
}

// Load lists the objects under prefix in key order and reads each one.
// Directory markers and empty objects are skipped.
func (l *Loader) Load(ctx context.Context, prefix string) ([]text.Document, error) {
	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	})

	var docs []text.Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s/%s: %w", l.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || aws.ToInt64(obj.Size) == 0 {
				continue
			}

			content, err := l.read(ctx, key)
			if err != nil {
				return nil, err
			}
			docs = append(docs, text.Document{
				Content:  content,
				Metadata: map[string]string{MetadataSource: fmt.Sprintf("s3://%s/%s", l.bucket, key)},
			})
		}
	}
	return docs, nil
}

func (l *Loader) read(ctx context.Context, key string) (string, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3: get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("s3: read %s: %w", key, err)
	}
	return string(body), nil
}
