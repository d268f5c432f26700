package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/automuter/cmd/automuter/internal/config"
	"github.com/haivivi/automuter/pkg/acquire"
	"github.com/haivivi/automuter/pkg/audio/normalize"
	"github.com/haivivi/automuter/pkg/gallery"
	"github.com/haivivi/automuter/pkg/kv"
	"github.com/haivivi/automuter/pkg/speakerstore"
	"github.com/haivivi/automuter/pkg/storage"
	"github.com/haivivi/automuter/pkg/voiceprint"
)

// Test hooks.
var (
	testKVOverride      kv.Store
	testFactoryOverride voiceprint.Factory
)

// app holds the services shared by the commands. Fields are built on
// demand; close releases whatever was opened.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	kv        kv.Store
	closeKV   func() error
	galleries *gallery.Cache
	embedder  *voiceprint.Embedder
}

func newApp() *app {
	return &app{cfg: GetConfig(), logger: slog.Default()}
}

// store opens the speaker store under cfg.DataDir.
func (a *app) store() (*gallery.Cache, error) {
	if a.galleries != nil {
		return a.galleries, nil
	}
	if testKVOverride != nil {
		a.kv = testKVOverride
	} else {
		db, err := kv.NewBadger(kv.BadgerOptions{Dir: a.cfg.DataDir})
		if err != nil {
			return nil, fmt.Errorf("open speaker store %s: %w", a.cfg.DataDir, err)
		}
		a.kv, a.closeKV = db, db.Close
	}
	a.galleries = gallery.New(speakerstore.New(a.kv, speakerstore.WithLogger(a.logger)), a.logger)
	return a.galleries, nil
}

// factory returns the model factory for the configured gateway.
func (a *app) factory(ctx context.Context) voiceprint.Factory {
	if testFactoryOverride != nil {
		return testFactoryOverride
	}
	e := a.cfg.Embedding
	return voiceprint.RemoteFactory(ctx, voiceprint.RemoteConfig{
		BaseURL:    e.BaseURL,
		Token:      e.Token,
		Model:      e.Model,
		Dimension:  e.Dimension,
		Timeout:    e.Timeout,
		MaxRetries: 2,
	})
}

// normalizer builds the audio normalizer, dumping undecodable input to
// dirs.dumps when set.
func (a *app) normalizer() (*normalize.Normalizer, error) {
	opts := []normalize.Option{normalize.WithLogger(a.logger)}
	if dir := a.cfg.Dirs.Dumps; dir != "" {
		fs, err := storage.NewLocal(dir)
		if err != nil {
			return nil, fmt.Errorf("dump dir: %w", err)
		}
		opts = append(opts, normalize.WithDump(normalize.StoreDump(fs, a.logger)))
	}
	return normalize.New(opts...), nil
}

// embedderPool builds an Embedder over a pool of size models. A model
// that cannot be reached is fatal.
func (a *app) embedderPool(ctx context.Context, size int) (*voiceprint.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	norm, err := a.normalizer()
	if err != nil {
		return nil, err
	}
	pool, err := voiceprint.NewPool(size, a.factory(ctx))
	if err != nil {
		return nil, err
	}
	a.embedder = voiceprint.NewEmbedder(pool, norm,
		voiceprint.WithMinDuration(a.cfg.Embedding.MinDuration),
		voiceprint.WithEmbedderLogger(a.logger))
	a.logger.Info("embedding model ready", "models", pool.Size(), "dimension", pool.Dimension())
	return a.embedder, nil
}

// downloader fetches http(s) sources with yt-dlp.
func (a *app) downloader() *acquire.Downloader {
	return &acquire.Downloader{
		Binary: a.cfg.Acquire.Binary,
		FFmpeg: a.cfg.Acquire.FFmpeg,
		Logger: a.logger,
	}
}

// acquirer routes URLs to yt-dlp and paths to the local filesystem. Only
// the CLI uses it; the server never reads local paths.
func (a *app) acquirer() acquire.Acquirer {
	return acquire.Router{Remote: a.downloader(), Local: acquire.Local{}}
}

// clipStore returns the mining output: S3 when a bucket is configured,
// dirs.speakers otherwise.
func (a *app) clipStore() (storage.FileStore, string, error) {
	if a.cfg.S3.Bucket != "" {
		s, err := storage.NewS3FromConfig(a.cfg.S3)
		if err != nil {
			return nil, "", err
		}
		return s, "s3://" + a.cfg.S3.Bucket + "/" + a.cfg.S3.Prefix, nil
	}
	s, err := storage.NewLocal(a.cfg.Dirs.Speakers)
	if err != nil {
		return nil, "", err
	}
	return s, s.Root(), nil
}

func (a *app) close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Model().Close())
	}
	if a.closeKV != nil {
		errs = append(errs, a.closeKV())
	}
	return errors.Join(errs...)
}
