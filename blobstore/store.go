// Package blobstore implements the Blob Store (BS): the S3-compatible
// object store holding source PDFs, rasterized page images produced by the
// OCR adapter, and any other large binary artifacts the pipeline touches
// (§3 "blob_location", §4.2 page rasterization). It generalizes the
// teacher's storage package's client-construction idiom (config.
// LoadDefaultConfig + a path-style s3.Client + manager uploader/downloader)
// down to the one concern this system needs: get/put by bucket/key,
// dropping the LakeFS/MinIO/Hetzner multi-backend sync surface the teacher
// built for a different product.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// sharedHTTPClient pools connections across every blob operation, matching
// the teacher's storage package approach of one shared *http.Client rather
// than one per call.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Config configures the Blob Store's S3 (or S3-compatible) endpoint.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // non-empty for S3-compatible endpoints (MinIO, etc.); empty uses AWS's default resolver
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Store wraps an S3 client scoped to one bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New constructs a Store from static credentials, the pattern the teacher
// uses for every non-AWS-role deployment target.
func New(ctx context.Context, cfg Config) (*Store, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		optFns = append(optFns, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			})))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.HTTPClient = sharedHTTPClient
	})

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// NewWithClient wraps an already-constructed *s3.Client, used by tests
// pointing the Store at a local S3-compatible test double.
func NewWithClient(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Put uploads data to key, using the multipart-aware manager.Uploader so
// large converted-page images don't need to fit in a single PutObject call.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get downloads the full contents of key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key is present, via HeadObject (no body transfer).
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *smithyhttp.ResponseError
		if errors.As(err, &notFound) && notFound.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return true, nil
}

// PageImageKey builds the "converted-images/{doc}/page-{n}.png" key for
// rasterized page images (§4.2). Nothing in this module writes page images.
func PageImageKey(documentID string, pageNumber int) string {
	return fmt.Sprintf("converted-images/%s/page-%d.png", documentID, pageNumber)
}
