package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config is the S3-compatible bucket configuration. It doubles as the JSON
// shape of a tenant's encrypted storage credentials.
type Config struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	PublicBaseURL   string `json:"publicBaseUrl"`
}

// Client stores and serves pipeline artifacts: frame images and assembled
// videos. URLs it hands out map back to keys, so intermediates can be
// deleted after publishing; URLs from other hosts are fetchable but never
// deletable.
type Client struct {
	s3Client   *s3.Client
	httpClient *http.Client
	bucket     string
	publicBase string
	endpoint   string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("storage configuration incomplete")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &Client{
		s3Client:   s3Client,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// Put uploads an object and returns its public URL.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return c.PublicURL(key), nil
}

// Fetch streams the object behind rawURL into dst. Own-bucket URLs go
// through the S3 API; anything else is fetched over plain HTTP.
func (c *Client) Fetch(ctx context.Context, rawURL string, dst io.Writer) error {
	if key, ok := c.KeyFor(rawURL); ok {
		out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", key, err)
		}
		defer out.Body.Close()

		if _, err := io.Copy(dst, out.Body); err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", rawURL, resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to save %s: %w", rawURL, err)
	}
	return nil
}

// Delete removes the object behind rawURL if this client owns it. Foreign
// URLs report deleted=false with no error.
func (c *Client) Delete(ctx context.Context, rawURL string) (bool, error) {
	key, ok := c.KeyFor(rawURL)
	if !ok {
		return false, nil
	}

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return true, nil
}

// KeyFor maps a URL this client produced back to its object key.
func (c *Client) KeyFor(rawURL string) (string, bool) {
	prefixes := make([]string, 0, 2)
	if c.publicBase != "" {
		prefixes = append(prefixes, c.publicBase+"/")
	}
	if c.endpoint != "" {
		prefixes = append(prefixes, c.endpoint+"/"+c.bucket+"/")
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(rawURL, prefix) {
			key := strings.TrimPrefix(rawURL, prefix)
			if key != "" {
				return key, true
			}
		}
	}
	return "", false
}

// PublicURL returns the URL the object is served from.
func (c *Client) PublicURL(key string) string {
	if c.publicBase != "" {
		return fmt.Sprintf("%s/%s", c.publicBase, key)
	}
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
}

// FrameKey and VideoKey name the bucket layout in one place.
func FrameKey(tenantID, jobID string, index int) string {
	return fmt.Sprintf("frames/%s/%s/%d.png", tenantID, jobID, index)
}

func VideoKey(tenantID, jobID string) string {
	return fmt.Sprintf("videos/%s/%s.mp4", tenantID, jobID)
}
