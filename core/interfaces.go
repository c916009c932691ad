package core

import (
	"context"
	"io"
	"time"
)

// Decoder converts raw bytes into an in-memory RasterImage.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader) (*RasterImage, error)
	// CanDecode reports whether this decoder handles the given format.
	CanDecode(format Format) bool
}

// Encoder serialises a RasterImage to bytes in a target format.
type Encoder interface {
	Encode(ctx context.Context, img *RasterImage, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality  int  // 1-100; 0 = encoder default
	Lossless bool // WebP lossless mode
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// SourceResolver fetches the raw bytes behind an opaque source identity.
// Implementations live in adapters/resolver/.
type SourceResolver interface {
	Resolve(ctx context.Context, id string) ([]byte, error)
}

// StorageBackend persists byte buffers by key.  Used for optional
// write-through persistence of transform results and for ingested sources.
// Implementations live in adapters/storage/.
type StorageBackend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives observations from the service and cache.
type MetricsCollector interface {
	RecordStageDuration(stage string, d time.Duration)
	RecordCacheHit(coalesced bool)
	RecordCacheMiss()
	RecordEviction(bytes int64)
	RecordError(stage string, kind string)
}

// Hook is an optional observer invoked around pipeline stages.
type Hook interface {
	BeforeStage(ctx context.Context, stage string)
	AfterStage(ctx context.Context, stage string, d time.Duration, err error)
}
