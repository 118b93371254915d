package modelstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps artifacts under bucket/prefix/versions in S3.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates an S3-backed store using the ambient AWS
// credential chain.
func NewS3Store(ctx context.Context, cfg domain.ModelStoreConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3StoreWithClient creates a store around a pre-built client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// Save uploads the artifact and its metadata sidecar.
func (s *S3Store) Save(ctx context.Context, version *domain.ModelVersion, artifact []byte) (string, error) {
	key := s.key(versionsDir, artifactName(version))
	if err := s.put(ctx, key, artifact); err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}

	meta := *version
	meta.ArtifactPath = key
	data, err := json.Marshal(&meta)
	if err != nil {
		return "", fmt.Errorf("marshal version metadata: %w", err)
	}
	if err := s.put(ctx, key+metaSuffix, data); err != nil {
		return "", fmt.Errorf("upload version metadata: %w", err)
	}
	return key, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Load downloads an artifact by its storage key.
func (s *S3Store) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	return data, nil
}

// List returns known versions for a target, oldest first.
func (s *S3Store) List(ctx context.Context, target string) ([]*domain.ModelVersion, error) {
	var out []*domain.ModelVersion
	var token *string

	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.key(versionsDir) + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, metaSuffix) {
				continue
			}
			data, err := s.Load(ctx, key)
			if err != nil {
				return nil, err
			}
			var mv domain.ModelVersion
			if err := json.Unmarshal(data, &mv); err != nil {
				return nil, fmt.Errorf("parse version metadata %s: %w", key, err)
			}
			if mv.Target == target {
				out = append(out, &mv)
			}
		}

		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Latest returns the most recent version for a target.
func (s *S3Store) Latest(ctx context.Context, target string) (*domain.ModelVersion, error) {
	versions, err := s.List(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no versions for target %s", domain.ErrNotFound, target)
	}
	return versions[len(versions)-1], nil
}
