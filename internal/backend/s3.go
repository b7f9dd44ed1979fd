package backend

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"remotefs/internal/core/types"
	"remotefs/internal/transport"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Backend serves s3://bucket/prefix locations. Paths are of the form
// "/bucket/key/parts".
type S3Backend struct {
	cfg      types.BackendConfig
	session  *session.Session
	s3Client *s3.S3
	limiter  *types.RateLimiter
}

// NewS3Backend creates an S3 backend using the configured profile and
// region, falling back to the default credential chain.
func NewS3Backend(cfg types.BackendConfig) (Backend, error) {
	sessionConfig := aws.Config{}
	if cfg.Region != "" {
		sessionConfig.Region = aws.String(cfg.Region)
	}

	sessOpts := session.Options{Config: sessionConfig}
	if cfg.Profile != "" {
		sessOpts.Profile = cfg.Profile
	}

	sess, err := session.NewSessionWithOptions(sessOpts)
	if err != nil {
		return nil, err
	}

	var limiter *types.RateLimiter
	if cfg.Transfer != nil && cfg.Transfer.RateLimit > 0 {
		limiter = types.NewRateLimiter(cfg.Transfer.RateLimit, cfg.Transfer.RateBurst)
	}

	return &S3Backend{
		cfg:      cfg,
		session:  sess,
		s3Client: s3.New(sess),
		limiter:  limiter,
	}, nil
}

// splitBucketKey splits "/bucket/key/parts" into bucket and key.
func splitBucketKey(p string) (string, string, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	bucket, key, _ := strings.Cut(p, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 path missing bucket: %q", p)
	}
	return bucket, key, nil
}

func (b *S3Backend) Exists(ctx context.Context, p string) (bool, error) {
	bucket, key, err := splitBucketKey(p)
	if err != nil {
		return false, err
	}

	if key != "" {
		_, err = b.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return true, nil
		}
		if !isNotFound(err) {
			return false, err
		}
	}

	// No object at the key: the path exists if anything lives under it
	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	out, err := b.s3Client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return aws.Int64Value(out.KeyCount) > 0, nil
}

func (b *S3Backend) Find(ctx context.Context, root string, opts FindOptions) ([]types.FileInfo, error) {
	bucket, key, err := splitBucketKey(root)
	if err != nil {
		return nil, err
	}
	prefix := key
	if prefix != "" {
		prefix += "/"
	}

	var files []types.FileInfo
	dirs := make(map[string]bool)

	err = b.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			abs := "/" + bucket + "/" + aws.StringValue(obj.Key)
			if opts.MaxDepth > 0 && Depth(root, abs) > opts.MaxDepth {
				continue
			}
			files = append(files, types.FileInfo{
				Name:    abs,
				Size:    types.Bytes(aws.Int64Value(obj.Size)),
				Mode:    types.DefaultFileMode,
				ModTime: aws.TimeValue(obj.LastModified),
				Type:    types.TypeFile,
			})
			if opts.WithDirs {
				// Record every implied parent prefix below root
				for dir := path.Dir(abs); UnderPath(root, dir) && dir != root; dir = path.Dir(dir) {
					dirs[dir] = true
				}
			}
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}

	for dir := range dirs {
		if opts.MaxDepth > 0 && Depth(root, dir) > opts.MaxDepth {
			continue
		}
		files = append(files, types.FileInfo{
			Name: dir,
			Mode: 0o755,
			Type: types.TypeDirectory,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

func (b *S3Backend) Info(ctx context.Context, p string) (types.FileInfo, error) {
	bucket, key, err := splitBucketKey(p)
	if err != nil {
		return types.FileInfo{}, err
	}

	out, err := b.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			// A prefix with objects under it is a directory
			exists, lerr := b.Exists(ctx, p)
			if lerr == nil && exists {
				return types.FileInfo{Name: p, Mode: 0o755, Type: types.TypeDirectory}, nil
			}
		}
		return types.FileInfo{}, err
	}

	return types.FileInfo{
		Name:    p,
		Size:    types.Bytes(aws.Int64Value(out.ContentLength)),
		Mode:    types.DefaultFileMode,
		ModTime: aws.TimeValue(out.LastModified),
		Type:    types.TypeFile,
	}, nil
}

func (b *S3Backend) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	bucket, key, err := splitBucketKey(p)
	if err != nil {
		return nil, err
	}
	prefix := key
	if prefix != "" {
		prefix += "/"
	}

	var results []types.FileInfo

	err = b.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			results = append(results, types.FileInfo{
				Name: "/" + bucket + "/" + strings.TrimSuffix(aws.StringValue(cp.Prefix), "/"),
				Mode: 0o755,
				Type: types.TypeDirectory,
			})
		}
		for _, obj := range page.Contents {
			if aws.StringValue(obj.Key) == prefix {
				continue
			}
			results = append(results, types.FileInfo{
				Name:    "/" + bucket + "/" + aws.StringValue(obj.Key),
				Size:    types.Bytes(aws.Int64Value(obj.Size)),
				Mode:    types.DefaultFileMode,
				ModTime: aws.TimeValue(obj.LastModified),
				Type:    types.TypeFile,
			})
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return results, nil
}

func (b *S3Backend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	bucket, key, err := splitBucketKey(p)
	if err != nil {
		return nil, err
	}

	out, err := b.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}

	if b.limiter != nil {
		return transport.NewLimitedReader(ctx, out.Body, b.limiter), nil
	}
	return out.Body, nil
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

func init() {
	RegisterFactory("s3", NewS3Backend)
}
