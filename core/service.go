package core

import (
	"context"

	"github.com/opencontainers/go-digest"

	"github.com/pixelserve/pixelserve/cache"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/utils"
)

// PipelineExecutor is a minimal interface over pipeline.Executor so that core
// does not import the pipeline package (avoiding a circular dependency).
type PipelineExecutor interface {
	Execute(ctx context.Context, src []byte, d Descriptor) (*TransformResult, error)
}

// Service is the request-facing transform orchestrator: it turns raw
// parameters into a normalized descriptor, serves the result cache, and
// schedules cache misses onto the worker pool.  Safe for concurrent use.
type Service struct {
	executor PipelineExecutor
	resolver SourceResolver
	storage  StorageBackend // optional write-through persistence
	cache    *cache.Cache
	pool     *Pool
	limits   Limits
	logger   Logger
	metrics  MetricsCollector
}

// NewService wires the orchestrator.  Configure optional collaborators with
// the Set methods before serving requests.
func NewService(executor PipelineExecutor, resolver SourceResolver, c *cache.Cache, pool *Pool, limits Limits) *Service {
	return &Service{
		executor: executor,
		resolver: resolver,
		cache:    c,
		pool:     pool,
		limits:   limits,
	}
}

// SetLogger attaches a structured logger.
func (s *Service) SetLogger(l Logger) { s.logger = l }

// SetMetrics attaches a metrics collector.
func (s *Service) SetMetrics(m MetricsCollector) { s.metrics = m }

// SetStorage enables write-through persistence of transform results, so
// cached output survives process restarts.
func (s *Service) SetStorage(b StorageBackend) { s.storage = b }

// SetResolver replaces the source resolver.  Call before serving requests.
func (s *Service) SetResolver(r SourceResolver) { s.resolver = r }

// Cache exposes the result cache for inspection.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Transform resolves the source, applies the requested transform, and
// returns the encoded bytes with their content type.  Identical concurrent
// requests share one computation; identical repeated requests are served
// from cache.
func (s *Service) Transform(ctx context.Context, sourceID string, params RawParams) (*TransformResult, error) {
	d, err := ParseDescriptor(params, s.limits)
	if err != nil {
		s.recordError("descriptor", err)
		return nil, err
	}
	d = d.Normalize(s.limits)

	key := cache.Key{Source: sourceID, Fingerprint: d.Fingerprint()}
	ent, outcome, err := s.cache.GetOrCompute(ctx, key, func(cctx context.Context) (*cache.Entry, error) {
		return s.compute(cctx, sourceID, key, d)
	})

	if s.metrics != nil {
		switch outcome {
		case cache.OutcomeHit:
			s.metrics.RecordCacheHit(false)
		case cache.OutcomeCoalesced:
			s.metrics.RecordCacheHit(true)
		default:
			s.metrics.RecordCacheMiss()
		}
	}
	if err != nil {
		s.recordError("transform", err)
		return nil, err
	}

	return &TransformResult{
		Bytes:       ent.Bytes,
		ContentType: ent.ContentType,
		Format:      d.Format,
		Width:       ent.Width,
		Height:      ent.Height,
	}, nil
}

// compute runs on a cache miss, under the cache's detached context.
func (s *Service) compute(ctx context.Context, sourceID string, key cache.Key, d Descriptor) (*cache.Entry, error) {
	resultKey := s.resultKey(key, d)

	if s.storage != nil {
		if b, err := s.storage.Get(ctx, resultKey); err == nil {
			w, h := utils.SniffDimensions(b)
			return &cache.Entry{Bytes: b, ContentType: d.Format.ContentType(), Width: w, Height: h}, nil
		} else if !apperrors.IsKind(err, apperrors.KindNotFound) {
			s.warn("storage.read_through.failed", "key", resultKey, "error", err.Error())
		}
	}

	src, err := s.resolver.Resolve(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	var (
		res     *TransformResult
		execErr error
	)
	if err := s.pool.Do(func() {
		res, execErr = s.executor.Execute(ctx, src, d)
	}); err != nil {
		return nil, err
	}
	if execErr != nil {
		return nil, execErr
	}

	if s.storage != nil {
		// Best effort: a storage hiccup must not fail a computed result.
		if err := s.storage.Put(ctx, resultKey, res.Bytes); err != nil {
			s.warn("storage.write_through.failed", "key", resultKey, "error", err.Error())
		}
	}

	return &cache.Entry{
		Bytes:       res.Bytes,
		ContentType: res.ContentType,
		Width:       res.Width,
		Height:      res.Height,
	}, nil
}

// resultKey derives the persistent storage key for one cache key.  Hashing
// the full cache key keeps arbitrary source identities filesystem- and
// object-store-safe.
func (s *Service) resultKey(key cache.Key, d Descriptor) string {
	return "transforms/" + digest.FromString(key.String()).Encoded() + d.Format.Extension()
}

func (s *Service) warn(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

func (s *Service) recordError(stage string, err error) {
	if s.metrics != nil {
		s.metrics.RecordError(stage, string(apperrors.KindOf(err)))
	}
}
