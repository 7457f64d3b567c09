package artifact

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"

	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

// Blobs above this size go through the multipart uploader.
const largeObjectMinSize = 10 * 1024 * 1024

// S3Store keeps artifacts in an S3 (or MinIO) bucket under
// <prefix><name>/model.json.gz and <prefix><name>/meta.yaml.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Connect creates an S3 client for cfg. Without keys the client signs
// requests anonymously.
func Connect(cfg config.S3Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		} else {
			o.Credentials = aws.AnonymousCredentials{}
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}

// NewS3Store creates a store over client.
func NewS3Store(client *s3.Client, bucket, prefix string) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client can't be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) key(name, file string) string {
	return s.prefix + path.Join(name, file)
}

// Location returns the s3:// URL of the artifact.
func (s *S3Store) Location(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(name, ""))
}

// Exists checks the metadata object, which Save writes last.
func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name, MetaFile)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errors.Wrap(errors.CodeUnavailable, fmt.Sprintf("checking artifact %s", name), err)
}

// Save uploads the blob, then the metadata.
func (s *S3Store) Save(ctx context.Context, name string, blob []byte, meta Meta) error {
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.InternalError("marshaling artifact metadata", err)
	}
	if err := s.put(ctx, s.key(name, ModelFile), blob); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "uploading model blob", err).WithDetail("location", s.Location(name))
	}
	if err := s.put(ctx, s.key(name, MetaFile), data); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "uploading artifact metadata", err).WithDetail("location", s.Location(name))
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	if len(data) > largeObjectMinSize {
		uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
			u.PartSize = largeObjectMinSize
		})
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Load downloads the metadata and the blob of name.
func (s *S3Store) Load(ctx context.Context, name string) ([]byte, *Meta, error) {
	data, err := s.get(ctx, s.key(name, MetaFile))
	if err != nil {
		return nil, nil, s.loadError(name, err)
	}

	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, nil, errors.ValidationError(fmt.Sprintf("parsing metadata of artifact %s: %v", name, err))
	}

	blob, err := s.get(ctx, s.key(name, ModelFile))
	if err != nil {
		return nil, nil, s.loadError(name, err)
	}
	return blob, &meta, nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (s *S3Store) loadError(name string, err error) error {
	if isNotFound(err) {
		return errors.ArtifactNotFoundError(name).WithDetail("location", s.Location(name))
	}
	return errors.Wrap(errors.CodeUnavailable, fmt.Sprintf("downloading artifact %s", name), err)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return stderrors.As(err, &noKey) || stderrors.As(err, &notFound)
}
