package core_test

import (
	"context"
	"io"
	"testing"

	"github.com/pixelserve/pixelserve/core"
)

type stubDecoder struct{ format core.Format }

func (d *stubDecoder) Decode(context.Context, io.Reader) (*core.RasterImage, error) {
	return nil, nil
}
func (d *stubDecoder) CanDecode(f core.Format) bool { return f == d.format }

type stubEncoder struct{ format core.Format }

func (e *stubEncoder) Encode(context.Context, *core.RasterImage, core.EncodeOptions) ([]byte, error) {
	return nil, nil
}
func (e *stubEncoder) CanEncode(f core.Format) bool { return f == e.format }

func TestRegistry(t *testing.T) {
	reg := core.NewRegistry()

	if _, ok := reg.DecoderFor(core.FormatJPEG); ok {
		t.Error("empty registry should have no decoders")
	}

	dec := &stubDecoder{format: core.FormatJPEG}
	enc := &stubEncoder{format: core.FormatPNG}
	reg.RegisterDecoder(core.FormatJPEG, dec)
	reg.RegisterEncoder(core.FormatPNG, enc)

	if got, ok := reg.DecoderFor(core.FormatJPEG); !ok || got != core.Decoder(dec) {
		t.Error("DecoderFor should return the registered decoder")
	}
	if got, ok := reg.EncoderFor(core.FormatPNG); !ok || got != core.Encoder(enc) {
		t.Error("EncoderFor should return the registered encoder")
	}
	if _, ok := reg.EncoderFor(core.FormatAVIF); ok {
		t.Error("unregistered format should miss")
	}
	if _, ok := reg.EncoderFor(core.FormatJPEG); ok {
		t.Error("registering a decoder must not imply an encoder")
	}
}

func TestRegistry_Replace(t *testing.T) {
	reg := core.NewRegistry()
	first := &stubDecoder{format: core.FormatWebP}
	second := &stubDecoder{format: core.FormatWebP}
	reg.RegisterDecoder(core.FormatWebP, first)
	reg.RegisterDecoder(core.FormatWebP, second)

	got, _ := reg.DecoderFor(core.FormatWebP)
	if got != core.Decoder(second) {
		t.Error("re-registration should replace the decoder")
	}
}
