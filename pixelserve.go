// Package pixelserve provides on-the-fly image transformation: parse a
// transform descriptor, fetch the source, decode, resize, re-encode, and
// cache the result so identical requests are served without recomputing.
package pixelserve

import (
	"context"
	"os"

	"github.com/pixelserve/pixelserve/adapters/decoder"
	"github.com/pixelserve/pixelserve/adapters/encoder"
	"github.com/pixelserve/pixelserve/adapters/resolver"
	"github.com/pixelserve/pixelserve/adapters/storage"
	"github.com/pixelserve/pixelserve/adapters/vips"
	"github.com/pixelserve/pixelserve/cache"
	"github.com/pixelserve/pixelserve/config"
	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/pipeline"
	"github.com/pixelserve/pixelserve/watcher"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	AVIF = core.FormatAVIF
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// LoadConfig builds a configuration from defaults, an optional YAML file,
// and environment variables.
func LoadConfig(ctx context.Context, path string) (config.Config, error) {
	return config.Load(ctx, path)
}

// Service is the primary entry point.
type Service struct {
	cfg      config.Config
	inner    *core.Service
	reg      *core.DefaultRegistry
	executor *pipeline.Executor
	cache    *cache.Cache
	pool     *core.Pool
	storage  core.StorageBackend
	watch    *watcher.Watcher
	vips     *vips.Backend
	logger   core.Logger
}

// New creates a fully wired Service with the pure-Go JPEG, PNG, and WebP
// codecs registered.  ctx is used only during construction (storage client
// setup); it does not bound the service's lifetime.
func New(ctx context.Context, cfg config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limits := core.Limits{
		MaxDimension:   cfg.Limits.MaxDimension,
		MaxSourceBytes: cfg.Limits.MaxSourceBytes,
		MaxPixels:      cfg.Limits.MaxPixels,
		DefaultQuality: cfg.DefaultQuality,
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())

	executor := pipeline.NewExecutor(reg, limits)

	c := cache.New(cache.Config{
		MaxBytes:       cfg.Cache.MaxBytes,
		MaxEntries:     cfg.Cache.MaxEntries,
		Shards:         cfg.Cache.Shards,
		EntryTTL:       cfg.Cache.EntryTTL(),
		NegativeTTL:    cfg.Cache.NegativeTTL(),
		ComputeTimeout: cfg.JobTimeout(),
	})

	pool := core.NewPool(cfg.WorkerCount, cfg.QueueDepth)

	backend, err := newStorageBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	storageFormat := core.FormatJPEG
	if cfg.Watch.StorageFormat != "" {
		storageFormat, err = core.ParseFormat(cfg.Watch.StorageFormat)
		if err != nil {
			return nil, err
		}
	}

	// Without a storage backend there is no default source; callers must
	// provide one with SetResolver.
	var src core.SourceResolver
	if backend != nil {
		src = resolver.NewStorage(backend, storageFormat)
	}

	inner := core.NewService(executor, src, c, pool, limits)
	if backend != nil {
		inner.SetStorage(backend)
	}

	s := &Service{
		cfg:      cfg,
		inner:    inner,
		reg:      reg,
		executor: executor,
		cache:    c,
		pool:     pool,
		storage:  backend,
	}

	if cfg.Watch.Enabled {
		w, err := watcher.New(watcher.Config{
			InputDir:       cfg.Watch.InputDir,
			StorageFormat:  storageFormat,
			Quality:        cfg.Watch.Quality,
			DeleteOriginal: cfg.Watch.DeleteOriginal,
		}, executor, backend, limits)
		if err != nil {
			return nil, err
		}
		s.watch = w
	}
	return s, nil
}

func newStorageBackend(ctx context.Context, cfg config.StorageConfig) (core.StorageBackend, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	case "s3":
		client, err := storage.NewAWSClient(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, cfg.S3.Bucket)
	default:
		return nil, nil
	}
}

// SetLogger attaches a structured logger.
func (s *Service) SetLogger(l core.Logger) {
	s.logger = l
	s.inner.SetLogger(l)
	s.pool.SetLogger(l)
	if s.watch != nil {
		s.watch.SetLogger(l)
	}
}

// SetMetrics attaches a metrics collector; cache evictions are reported
// through it as well.
func (s *Service) SetMetrics(m core.MetricsCollector) {
	s.inner.SetMetrics(m)
	s.cache.OnEvict(m.RecordEviction)
}

// SetResolver replaces the source resolver.  Call before Start.
func (s *Service) SetResolver(r core.SourceResolver) { s.inner.SetResolver(r) }

// AddHook registers an observer for pipeline stage events.
func (s *Service) AddHook(h core.Hook) { s.executor.AddHook(h) }

// RegisterDecoder registers a custom decoder for the given format.
func (s *Service) RegisterDecoder(f core.Format, d core.Decoder) { s.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (s *Service) RegisterEncoder(f core.Format, e core.Encoder) { s.reg.RegisterEncoder(f, e) }

// UseVips switches every supported format to the libvips codec backend,
// enabling WebP and AVIF output.  Call before Start; the backend is shut
// down by Stop.
func (s *Service) UseVips(cfg vips.BackendConfig) {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = s.cfg.DefaultQuality
	}
	b := vips.NewBackend(cfg)
	vips.Register(s.reg, b)
	s.vips = b
}

// Cache exposes the result cache for inspection.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Storage exposes the configured storage backend; nil when none.
func (s *Service) Storage() core.StorageBackend { return s.storage }

// Start launches the worker pool and, when configured, the directory
// watcher.
func (s *Service) Start(ctx context.Context) error {
	s.pool.Start()
	if s.watch != nil {
		if err := s.watch.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop drains the worker pool, stops the watcher, and releases the cache
// and codec backends.
func (s *Service) Stop() {
	if s.watch != nil {
		s.watch.Stop()
	}
	s.cache.Close()
	s.pool.Stop()
	if s.vips != nil {
		s.vips.Shutdown()
	}
}

// Transform applies the requested transform to the identified source and
// returns the encoded result.  Identical concurrent requests share one
// computation; identical repeated requests are served from cache.
func (s *Service) Transform(ctx context.Context, sourceID string, params core.RawParams) (*core.TransformResult, error) {
	return s.inner.Transform(ctx, sourceID, params)
}

// Ingest converts one file through the watcher's pipeline immediately,
// without waiting for a filesystem event.
func (s *Service) Ingest(ctx context.Context, path string) error {
	if s.watch == nil {
		return apperrors.Newf(apperrors.KindInvalidParameter, "service.ingest", "watching is not configured")
	}
	return s.watch.Ingest(ctx, path)
}
