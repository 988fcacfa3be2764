// Package archive uploads a completed analysis run's report artifacts
// (summary, DOT graph, flame-graph data) to Tencent Cloud COS so they can
// be retrieved without re-running the analysis.
package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// Config holds the COS bucket and credentials an Archiver uploads to.
type Config struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g., "myqcloud.com"
	Scheme    string // e.g., "https" or "http"
}

// Archiver uploads local report artifacts to a COS bucket.
type Archiver struct {
	client *cos.Client
	bucket string
	region string
	domain string
	scheme string
}

// NewArchiver builds an Archiver from cfg, filling in the standard COS
// domain and scheme when they are left blank.
func NewArchiver(cfg *Config) (*Archiver, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for archive upload")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for archive upload")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &Archiver{client: client, bucket: cfg.Bucket, region: cfg.Region, domain: domain, scheme: scheme}, nil
}

// UploadFile uploads the local file at path under the given key.
func (a *Archiver) UploadFile(ctx context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("archive source file unavailable: %w", err)
	}
	if _, err := a.client.Object.PutFromFile(ctx, key, path, nil); err != nil {
		return fmt.Errorf("failed to upload %s to COS: %w", path, err)
	}
	return nil
}

// URL returns the public URL for the given key.
func (a *Archiver) URL(key string) string {
	return fmt.Sprintf("%s://%s.cos.%s.%s/%s", a.scheme, a.bucket, a.region, a.domain, key)
}
