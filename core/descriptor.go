package core

import (
	"fmt"
	"strconv"

	"github.com/opencontainers/go-digest"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

// RawParams carries the untrusted transform parameters extracted by the
// request layer.  All fields except Format are optional.
type RawParams struct {
	Format  string // target format name or extension
	Width   string // decimal pixels
	Height  string // decimal pixels
	Fit     string // cover | contain | stretch
	Quality string // 1..100
}

// Descriptor is the canonical representation of one requested transform.
// Zero Width and Height together mean no resize.
type Descriptor struct {
	Format  Format
	Width   int
	Height  int
	Fit     Fit
	Quality int // 0 = encoder default until normalized
}

// ParseDescriptor validates raw request parameters into a Descriptor.
// Dimensions above lim.MaxDimension are rejected as resource exhaustion so
// clients can distinguish "too large" from "malformed".
func ParseDescriptor(p RawParams, lim Limits) (Descriptor, error) {
	const op = "descriptor.parse"

	format, err := ParseFormat(p.Format)
	if err != nil {
		return Descriptor{}, err
	}

	w, err := parseDimension(op, "width", p.Width, lim.MaxDimension)
	if err != nil {
		return Descriptor{}, err
	}
	h, err := parseDimension(op, "height", p.Height, lim.MaxDimension)
	if err != nil {
		return Descriptor{}, err
	}

	fit, err := ParseFit(p.Fit)
	if err != nil {
		return Descriptor{}, err
	}

	quality := 0
	if p.Quality != "" {
		quality, err = strconv.Atoi(p.Quality)
		if err != nil || quality < 1 || quality > 100 {
			return Descriptor{}, apperrors.Newf(apperrors.KindInvalidParameter,
				op, "quality must be 1..100, got %q", p.Quality)
		}
	}

	return Descriptor{Format: format, Width: w, Height: h, Fit: fit, Quality: quality}, nil
}

func parseDimension(op, name, raw string, maximum int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, apperrors.Newf(apperrors.KindInvalidParameter,
			op, "%w: %s=%q", apperrors.ErrInvalidDimensions, name, raw)
	}
	if maximum > 0 && v > maximum {
		return 0, apperrors.Newf(apperrors.KindResourceExhausted,
			op, "%s %d exceeds maximum %d", name, v, maximum)
	}
	return v, nil
}

// Normalize strips fields irrelevant to the target format and fills
// canonical defaults, so that two requests producing identical output
// fingerprint identically.
func (d Descriptor) Normalize(lim Limits) Descriptor {
	out := d

	if lim.MaxDimension > 0 {
		if out.Width > lim.MaxDimension {
			out.Width = lim.MaxDimension
		}
		if out.Height > lim.MaxDimension {
			out.Height = lim.MaxDimension
		}
	}

	if out.Width == 0 && out.Height == 0 {
		// No resize: fit is meaningless, drop it.
		out.Fit = ""
	} else if out.Fit == "" {
		out.Fit = FitContain
	}

	if out.Format.Lossy() {
		if out.Quality == 0 {
			out.Quality = lim.DefaultQuality
		}
	} else {
		// Quality is ignored by lossless encoders.
		out.Quality = 0
	}

	return out
}

// canonical returns the stable serialization hashed by Fingerprint.
// Unset fields are omitted so normalization-equivalent descriptors
// serialize identically.
func (d Descriptor) canonical() string {
	s := "f=" + string(d.Format)
	if d.Fit != "" {
		s += ";fit=" + string(d.Fit)
	}
	if d.Height > 0 {
		s += fmt.Sprintf(";h=%d", d.Height)
	}
	if d.Quality > 0 {
		s += fmt.Sprintf(";q=%d", d.Quality)
	}
	if d.Width > 0 {
		s += fmt.Sprintf(";w=%d", d.Width)
	}
	return s
}

// Fingerprint returns a deterministic digest of the normalized descriptor,
// stable across processes.  Call Normalize first; fingerprinting a raw
// descriptor defeats cache coalescing.
func (d Descriptor) Fingerprint() digest.Digest {
	return digest.SHA256.FromString(d.canonical())
}
