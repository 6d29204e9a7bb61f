// Package publish uploads a generated output tree to S3-compatible object
// storage.
package publish

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/site"
)

// Uploader is the subset of *minio.Client used for publishing.
type Uploader interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Result summarizes one publish run.
type Result struct {
	Objects  int
	Bytes    int64
	Duration time.Duration
}

// Publisher copies every file below an output directory into a bucket,
// keyed by its slash-separated path under an optional prefix.
type Publisher struct {
	client      Uploader
	bucket      string
	prefix      string
	concurrency int
}

// NewClient builds a minio client for cfg. An endpoint with a scheme picks
// TLS from it; a bare host:port uses TLS unless cfg.Insecure is set.
func NewClient(cfg config.PublishConfig) (*minio.Client, error) {
	host, secure := cfg.Endpoint, !cfg.Insecure
	if strings.Contains(cfg.Endpoint, "://") {
		parsed, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, perrors.ValidationFailed("publish.endpoint", err.Error())
		}
		host, secure = parsed.Host, parsed.Scheme == "https"
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to initialize object storage client").
			WithContext("endpoint", cfg.Endpoint)
	}
	return client, nil
}

// New returns a publisher writing to bucket under prefix.
func New(client Uploader, bucket, prefix string, concurrency int) *Publisher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Publisher{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: concurrency,
	}
}

// ObjectKey maps a slash-relative output path to its object name.
func (p *Publisher) ObjectKey(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// Publish uploads dir. Output carrying the incomplete marker is refused so
// a partial site never replaces a published one.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	start := time.Now()
	target := "s3://" + path.Join(p.bucket, p.prefix)

	if _, err := os.Stat(site.IncompleteMarkerPath(dir)); err == nil {
		return Result{}, perrors.New(perrors.CategoryPublish, perrors.SeverityFatal,
			"output is incomplete; rebuild before publishing").WithContext("path", dir)
	}

	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return Result{}, perrors.PublishFailed(target, err)
	}
	if !exists {
		return Result{}, perrors.New(perrors.CategoryPublish, perrors.SeverityFatal, "bucket does not exist").
			WithContext("bucket", p.bucket)
	}

	files, err := listFiles(dir)
	if err != nil {
		return Result{}, err
	}

	var (
		objects atomic.Int64
		bytes   atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, rel := range files {
		g.Go(func() error {
			key := p.ObjectKey(rel)
			info, err := p.client.FPutObject(gctx, p.bucket, key, filepath.Join(dir, filepath.FromSlash(rel)), minio.PutObjectOptions{})
			if err != nil {
				return perrors.PublishFailed(target, err).WithContext("object", key)
			}
			objects.Add(1)
			bytes.Add(info.Size)
			slog.Debug("Uploaded object", slog.String("object", key), slog.Int64("size", info.Size))
			return nil
		})
	}
	err = g.Wait()

	res := Result{Objects: int(objects.Load()), Bytes: bytes.Load(), Duration: time.Since(start)}
	if err != nil {
		return res, err
	}
	slog.Info("Output published", logfields.URL(target), logfields.Count(res.Objects), logfields.Since(start))
	return res, nil
}

// listFiles returns every regular file below dir as a sorted slash path.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, perrors.FileSystem("walk", dir, err)
	}
	return files, nil
}
