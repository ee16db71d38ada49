package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/meltflow/meltflow/pkg/config"
	"github.com/meltflow/meltflow/pkg/errors"
)

// S3Config configures the S3 checkpoint backend.
type S3Config struct {
	// Bucket is the S3 bucket for storing snapshots
	Bucket string

	// Prefix is prepended to all snapshot keys (e.g., "checkpoints/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses the default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration
}

// DefaultS3Config maps deck settings onto sensible defaults.
func DefaultS3Config(cfg config.S3Backend) S3Config {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "checkpoints/"
	}
	return S3Config{
		Bucket:          cfg.Bucket,
		Prefix:          prefix,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UsePathStyle:    cfg.Endpoint != "",
		Timeout:         30 * time.Second,
	}
}

// S3Backend stores snapshots in S3. Long multi-day builds checkpoint
// here so an interrupted run can resume on a different machine.
type S3Backend struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Backend creates an S3 checkpoint backend using the default AWS
// credential chain.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeBackendConnect, "cannot load AWS config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

func (b *S3Backend) key(id string) string {
	return b.cfg.Prefix + id + ".json"
}

// Save persists a snapshot to S3.
func (b *S3Backend) Save(ctx context.Context, snap *Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot marshal snapshot")
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.key(snap.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot save snapshot to S3").
			WithContext("bucket", b.cfg.Bucket).
			WithContext("key", b.key(snap.ID))
	}
	return nil
}

// Load retrieves a snapshot from S3.
func (b *S3Backend) Load(ctx context.Context, id string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot load snapshot from S3").
			WithContext("bucket", b.cfg.Bucket).
			WithContext("key", b.key(id))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot read snapshot body")
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot unmarshal snapshot").
			WithContext("key", b.key(id))
	}
	return &snap, nil
}

// Delete removes a snapshot from S3.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointSave, "cannot delete snapshot from S3").
			WithContext("key", b.key(id))
	}
	return nil
}

// List returns the snapshot IDs under the configured prefix.
func (b *S3Backend) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(b.cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeCheckpointLoad, "cannot list snapshots in S3").
				WithContext("bucket", b.cfg.Bucket)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, b.cfg.Prefix), ".json")
			ids = append(ids, id)
		}
	}
	return ids, nil
}
