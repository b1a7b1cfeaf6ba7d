// Package remote localizes object store inputs. References of the form
// s3://bucket/key are downloaded once into a cache directory and replaced
// by the local path; everything else is treated as a local file.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"golang.org/x/sync/errgroup"
)

const scheme = "s3://"

// IsRemote reports whether ref names an object store location.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, scheme)
}

// ParseURL splits s3://bucket/key.
func ParseURL(ref string) (bucket, key string, err error) {
	if !IsRemote(ref) {
		return "", "", fmt.Errorf("%q is not an s3:// reference", ref)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(ref, scheme), "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%q does not name an object", ref)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", "", fmt.Errorf("%q: key escapes the cache directory", ref)
		}
	}
	return bucket, key, nil
}

// NewS3 returns an S3 client for the region in AWS_DEFAULT_REGION.
// Credentials come from the usual SDK chain.
func NewS3() (s3iface.S3API, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(os.Getenv("AWS_DEFAULT_REGION"))})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return s3.New(sess), nil
}

// Store moves objects between S3 and a local cache directory. Downloads
// land in dir/bucket/key and are reused by later runs; outputs are staged
// under dir/.staging before upload.
type Store struct {
	api         s3iface.S3API
	dir         string
	log         *slog.Logger
	concurrency int
}

// NewStore returns a store caching under dir. A nil logger discards.
func NewStore(api s3iface.S3API, dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{api: api, dir: dir, log: logger, concurrency: 4}
}

// Fetch returns a local path for ref.
func (s *Store) Fetch(ctx context.Context, ref string) (string, error) {
	if !IsRemote(ref) {
		return ref, nil
	}
	bucket, key, err := ParseURL(ref)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, bucket, filepath.FromSlash(key))
	if fi, err := os.Stat(dst); err == nil && fi.Mode().IsRegular() {
		s.log.Debug("using cached object", "ref", ref, "path", dst)
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating cache for %s: %w", ref, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", fmt.Errorf("creating cache for %s: %w", ref, err)
	}
	defer os.Remove(tmp.Name())

	dl := s3manager.NewDownloaderWithClient(s.api)
	n, err := dl.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", ref, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("downloading %s: %w", ref, err)
	}
	s.log.Info("downloaded", "ref", ref, "path", dst, "bytes", n)
	return dst, nil
}

// FetchAll localizes every reference in place, downloading concurrently.
func (s *Store) FetchAll(ctx context.Context, refs []*string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ref := range refs {
		if !IsRemote(*ref) {
			continue
		}
		g.Go(func() error {
			p, err := s.Fetch(gctx, *ref)
			if err != nil {
				return err
			}
			*ref = p
			return nil
		})
	}
	return g.Wait()
}

// AnyRemote reports whether any reference needs fetching.
func AnyRemote(refs []*string) bool {
	for _, r := range refs {
		if IsRemote(*r) {
			return true
		}
	}
	return false
}

// StagePath returns the local file an output destined for ref is written
// to before Upload. Local references are returned unchanged.
func (s *Store) StagePath(ref string) (string, error) {
	if !IsRemote(ref) {
		return ref, nil
	}
	bucket, key, err := ParseURL(ref)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, ".staging", bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("staging %s: %w", ref, err)
	}
	return dst, nil
}

// Upload puts the local file at path to ref and removes the staged copy.
func (s *Store) Upload(ctx context.Context, path, ref string) error {
	bucket, key, err := ParseURL(ref)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", ref, err)
	}
	defer src.Close()

	start := time.Now()
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", ref, err)
	}
	s.log.Info("uploaded", "ref", ref, "elapsed", time.Since(start).Round(time.Millisecond))
	src.Close()
	return os.Remove(path)
}

func contentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
