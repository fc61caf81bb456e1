package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotModified is returned by Source.Fetch when the source still has the
// version the caller already imported.
var ErrNotModified = errors.New("source not modified")

// Source is an archive that hot events can be rehydrated from.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Fetch returns the current payload and its version. If the version
	// equals since, Fetch returns ErrNotModified without downloading.
	Fetch(ctx context.Context, since string) (data []byte, version string, err error)
}

// FileSource reads a local JSONL file. Its version is the file's size and
// modification time.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Fetch(_ context.Context, since string) ([]byte, string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", f.path, err)
	}
	version := strconv.FormatInt(info.Size(), 10) + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if version == since {
		return nil, version, ErrNotModified
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, version, nil
}

// s3API is the subset of the S3 client used by S3Source.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads an object from an S3-compatible bucket. Its version is the
// object's ETag.
type S3Source struct {
	client s3API
	bucket string
	key    string
}

// NewS3Source creates an S3 source. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Source(ctx context.Context, bucket, key, region, endpoint string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Source{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

func (s *S3Source) Name() string { return "s3://" + s.bucket + "/" + s.key }

func (s *S3Source) Fetch(ctx context.Context, since string) ([]byte, string, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("s3 head object: %w", err)
	}
	version := aws.ToString(head.ETag)
	if version != "" && version == since {
		return nil, version, ErrNotModified
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if version != "" {
		// Guard against the object changing between the two calls.
		in.IfMatch = aws.String(version)
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 read body: %w", err)
	}
	return data, version, nil
}
