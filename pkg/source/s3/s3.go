package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/scribeworks/mediascribe/pkg/source"
)

// Source discovers media objects in an S3 bucket and fetches them into a
// local cache for description. Work-item identity is the s3:// URI, so
// identity stays stable while Path points at the cached copy.
type Source struct {
	client   *s3.Client
	bucket   string
	prefix   string
	cacheDir string
	maxKeys  int
}

var (
	_ source.Source    = (*Source)(nil)
	_ source.Localizer = (*Source)(nil)
)

// New creates an S3 source with the given configuration.
//
// The source uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &source.InputError{
			Root: "s3://" + cfg.Bucket,
			Err:  err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Source{
		client:   s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		cacheDir: cfg.CacheDir,
		maxKeys:  maxKeys,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Apply region defaulting only for AWS proper; custom endpoints
	// typically ignore region.
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

// Discover lists all recognized media objects under the prefix, in key
// order. Paths are left empty; payloads are fetched lazily by Localize.
func (s *Source) Discover(ctx context.Context) ([]source.WorkItem, error) {
	var items []source.WorkItem
	var continuation *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			MaxKeys:           aws.Int32(int32(s.maxKeys)),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, &source.InputError{
				Root: s.root(),
				Err:  classifyAWS("ListObjectsV2", err),
			}
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			kind := source.KindForPath(key)
			if kind == "" {
				continue
			}
			items = append(items, source.WorkItem{
				Identity: fmt.Sprintf("s3://%s/%s", s.bucket, key),
				Kind:     kind,
				Size:     aws.ToInt64(obj.Size),
			})
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		continuation = out.NextContinuationToken
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Identity < items[j].Identity
	})
	return items, nil
}

// Localize fetches the object into the cache directory and points the
// item's Path at the local copy. Already-cached payloads are reused.
func (s *Source) Localize(ctx context.Context, item *source.WorkItem) error {
	if item.Path != "" {
		return nil
	}

	key := strings.TrimPrefix(item.Identity, fmt.Sprintf("s3://%s/", s.bucket))
	local := filepath.Join(s.cacheDir, filepath.FromSlash(key))

	if fi, err := os.Stat(local); err == nil && (item.Size == 0 || fi.Size() == item.Size) {
		item.Path = local
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyAWS("GetObject", err)
	}
	defer func() { _ = out.Body.Close() }()

	// Fetch to a temp name then rename, so an interrupted download never
	// passes the cache-hit check on a later run.
	tmp, err := os.CreateTemp(filepath.Dir(local), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fetch s3://%s/%s: %w", s.bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpPath, local); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize cache file: %w", err)
	}

	item.Path = local
	return nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	return nil
}

func (s *Source) root() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

// classifyAWS wraps SDK errors with the failing operation and surfaces
// the API error code when one is present.
func classifyAWS(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %s", op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s: %w", op, err)
}
