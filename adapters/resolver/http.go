package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/utils"
)

// HTTP resolves source identities by fetching them from an upstream origin.
// The identity is joined onto the base URL as a path reference.
type HTTP struct {
	base     *url.URL
	client   *http.Client
	maxBytes int64
}

// NewHTTP creates an upstream-fetching resolver.  maxBytes bounds the
// response body; 0 disables the bound.  A nil client uses
// http.DefaultClient.
func NewHTTP(base string, client *http.Client, maxBytes int64) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, "resolver.http",
			"invalid base url %q: %v", base, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{base: u, client: client, maxBytes: maxBytes}, nil
}

func (h *HTTP) Resolve(ctx context.Context, id string) ([]byte, error) {
	ref, err := url.Parse(id)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindInvalidParameter, "resolver.http",
			"invalid source identity %q: %v", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "resolver.http", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, apperrors.Transient("resolver.http", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Newf(apperrors.KindNotFound, "resolver.http",
			"%w: %s", apperrors.ErrNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.Transient("resolver.http",
			apperrors.Newf(apperrors.KindStorage, "resolver.http", "upstream status %d", resp.StatusCode))
	}

	body := &utils.LimitedReader{R: resp.Body, Max: h.maxBytes}
	buf, err := utils.DrainReader(ctx, body, 32*1024)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apperrors.Newf(apperrors.KindResourceExhausted, "resolver.http",
				"%w: %s", apperrors.ErrSourceTooLarge, id)
		}
		return nil, apperrors.Transient("resolver.http", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}
