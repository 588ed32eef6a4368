package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// HTTPFetcher fetches http and https resources.
// No timeout is applied unless the client carries one.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch issues a GET request. Servers that do not declare a length are read
// into memory so the fingerprint can still be framed.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s returned status %d", ErrTransport, location, resp.StatusCode)
	}
	if resp.ContentLength >= 0 {
		return resp.Body, resp.ContentLength, nil
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading %s: %v", ErrTransport, location, err)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// S3API is the subset of the S3 client used for fetching objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key resources.
type S3Fetcher struct {
	client S3API
}

// S3Config holds explicit construction parameters for the S3 fetcher.
type S3Config struct {
	Region    string
	Endpoint  string // optional; enables S3-compatible servers such as MinIO
	PathStyle bool

	// Static credentials; when empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Fetcher creates an S3Fetcher for cfg.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Fetcher{client: client}, nil
}

// NewS3FetcherWithClient wraps an existing client.
func NewS3FetcherWithClient(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch opens the object named by location.
func (f *S3Fetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return nil, 0, fmt.Errorf("%w: invalid s3 location %q", ErrTransport, location)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	if size >= 0 {
		return out.Body, size, nil
	}

	defer func() {
		_ = out.Body.Close()
	}()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading %s: %v", ErrTransport, location, err)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}
