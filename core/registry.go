package core

import "sync"

// codec holds the registered halves for one format.  Either half may be
// nil; WebP in the pure-Go wiring has a decoder but no encoder.
type codec struct {
	dec Decoder
	enc Encoder
}

// DefaultRegistry maps formats to their codecs.  Registration normally
// happens once during wiring but is safe at any point; lookups on the hot
// path take only a read lock.
type DefaultRegistry struct {
	mu     sync.RWMutex
	codecs map[Format]codec
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{codecs: make(map[Format]codec)}
}

// RegisterDecoder sets the decoder for f, replacing any previous one.
func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	c := r.codecs[f]
	c.dec = d
	r.codecs[f] = c
	r.mu.Unlock()
}

// RegisterEncoder sets the encoder for f, replacing any previous one.
func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	c := r.codecs[f]
	c.enc = e
	r.codecs[f] = c
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	c := r.codecs[f]
	r.mu.RUnlock()
	return c.dec, c.dec != nil
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	c := r.codecs[f]
	r.mu.RUnlock()
	return c.enc, c.enc != nil
}
