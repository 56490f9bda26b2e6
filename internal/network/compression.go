// File: internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on requests that don't set their own.
const AcceptEncoding = "br, gzip, deflate"

// DecompressionTransport is an http.RoundTripper that advertises compression
// support and decodes the response body according to its Content-Encoding.
type DecompressionTransport struct {
	// Base is the wrapped transport. http.DefaultTransport when nil.
	Base http.RoundTripper
}

// NewDecompressionTransport wraps base.
func NewDecompressionTransport(base http.RoundTripper) *DecompressionTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecompressionTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *DecompressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// layeredBody closes the decoder and the body it reads from.
type layeredBody struct {
	io.Reader
	decoder io.Closer
	inner   io.Closer
}

func (b *layeredBody) Close() error {
	var err1 error
	if b.decoder != nil {
		err1 = b.decoder.Close()
	}
	return errors.Join(err1, b.inner.Close())
}

// DecompressResponse replaces resp.Body with a decoding reader. Encodings are
// undone in reverse order of application. On error the body may be partially
// consumed and the response should be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	var layers []string
	for _, header := range encodings {
		for _, part := range strings.Split(header, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		var (
			reader  io.Reader
			decoder io.Closer
		)
		switch layers[i] {
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader, decoder = zr, zr
		case "deflate":
			rc := newDeflateReader(resp.Body)
			reader, decoder = rc, rc
		case "br":
			reader = brotli.NewReader(resp.Body)
		case "identity", "":
			continue
		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", layers[i])
		}
		resp.Body = &layeredBody{Reader: reader, decoder: decoder, inner: resp.Body}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader accepts both zlib wrapped (RFC 1950) and raw (RFC 1951)
// deflate streams, since servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) io.ReadCloser {
	var head bytes.Buffer
	zr, err := zlib.NewReader(io.TeeReader(r, &head))
	if err == nil {
		return zr
	}
	return flate.NewReader(io.MultiReader(&head, r))
}
