// Package storage uploads generated artifacts under a deterministic, date-partitioned key
// and removes them asynchronously when their asset is deleted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sketchgen/internal/background"
	"sketchgen/internal/imaging"
	"sketchgen/internal/infra"
)

// ImmutableCacheControl is set on every artifact; a key is never rewritten with new bytes.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

// ObjectAttrs carries the metadata stored with an object.
type ObjectAttrs struct {
	ContentType  string
	CacheControl string
}

// Backend is an object store.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, attrs ObjectAttrs) error
	Delete(ctx context.Context, key string) error
}

// Uploader maps asset artifacts onto backend keys and public URLs.
type Uploader struct {
	backend Backend
	baseURL string
	runner  *background.Runner
	timeout time.Duration
	logger  infra.Logger
	now     func() time.Time
}

// Options configures an Uploader. Runner carries async deletions; without one
// DeleteAsync only logs.
type Options struct {
	BaseURL string
	Runner  *background.Runner
	Timeout time.Duration
	Logger  infra.Logger
	Now     func() time.Time
}

func NewUploader(backend Backend, opts Options) *Uploader {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploader{
		backend: backend,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		runner:  opts.Runner,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Key is assets/{YYYY-MM-DD}/{assetID}.{ext}, dated in UTC.
func Key(assetID, mime string, at time.Time) string {
	return fmt.Sprintf("assets/%s/%s.%s", at.UTC().Format(time.DateOnly), assetID, imaging.Extension(mime))
}

// Upload stores data for assetID and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, assetID string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("storage: empty artifact")
	}
	mime, err := imaging.Sniff(data)
	if err != nil {
		mime = imaging.MIMEPNG
	}
	key := Key(assetID, mime, u.now())
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.backend.Put(ctx, key, data, ObjectAttrs{ContentType: mime, CacheControl: ImmutableCacheControl}); err != nil {
		return "", err
	}
	u.logger.Debug().Str("asset_id", assetID).Str("key", key).Int("bytes", len(data)).Msg("storage: uploaded")
	return u.baseURL + "/" + key, nil
}

// KeyFromURL strips the public prefix from url.
func (u *Uploader) KeyFromURL(url string) (string, bool) {
	prefix := u.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}

// DeleteAsync schedules removal of the object behind url. Failures are only logged; it
// reports whether the deletion was queued.
func (u *Uploader) DeleteAsync(url string) bool {
	key, ok := u.KeyFromURL(url)
	if !ok {
		u.logger.Warn().Str("url", url).Msg("storage: url outside bucket, not deleting")
		return false
	}
	if u.runner == nil {
		u.logger.Warn().Str("key", key).Msg("storage: no background runner, deletion skipped")
		return false
	}
	return u.runner.Submit("delete "+key, func(ctx context.Context) error {
		return u.backend.Delete(ctx, key)
	})
}
