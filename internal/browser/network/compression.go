// internal/browser/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecompressionMiddleware is an http.RoundTripper that advertises compression
// support on outgoing requests and transparently decodes br/gzip/deflate
// response bodies, including layered encodings.
type DecompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewDecompressionMiddleware wraps a transport; nil falls back to the default.
func NewDecompressionMiddleware(transport http.RoundTripper) *DecompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &DecompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (m *DecompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := m.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decompressing response from %s: %w", req.URL, err)
	}
	return resp, nil
}

// decompressResponse rewraps resp.Body according to Content-Encoding.
// Encodings are listed in application order, so decoders apply in reverse.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := splitEncodings(resp.Header.Values("Content-Encoding"))
	if len(encodings) == 0 {
		return nil
	}

	body := resp.Body
	for i := len(encodings) - 1; i >= 0; i-- {
		wrapped, err := wrapDecoder(body, encodings[i])
		if err != nil {
			return err
		}
		body = wrapped
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

func wrapDecoder(body io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "identity", "":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &layeredBody{Reader: zr, closers: []io.Closer{zr, body}}, nil
	case "br":
		return &layeredBody{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	case "deflate":
		return wrapDeflate(body)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// wrapDeflate handles both zlib-wrapped (RFC-conformant) and raw deflate
// streams, which misbehaving servers send interchangeably.
func wrapDeflate(body io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(body)
	header, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if isZlibHeader(header) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("deflate(zlib): %w", err)
		}
		return &layeredBody{Reader: zr, closers: []io.Closer{zr, body}}, nil
	}
	fr := flate.NewReader(br)
	return &layeredBody{Reader: fr, closers: []io.Closer{fr, body}}, nil
}

// isZlibHeader checks the CMF/FLG bytes per RFC 1950.
func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0]&0x0f != 8 {
		return false
	}
	return (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

func splitEncodings(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if enc := strings.ToLower(strings.TrimSpace(part)); enc != "" {
				out = append(out, enc)
			}
		}
	}
	return out
}

// layeredBody closes the decoder chain and the underlying connection body.
type layeredBody struct {
	io.Reader
	closers []io.Closer
}

func (l *layeredBody) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
