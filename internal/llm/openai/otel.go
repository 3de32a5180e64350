package openai

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// spanMiddleware records the HTTP status on the active span and, when
// captureBodies is set, the request and response payloads up to limit bytes
// (negative for no limit).
func spanMiddleware(captureBodies bool, limit int) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		span := trace.SpanFromContext(req.Context())
		capture := captureBodies && span.IsRecording()
		if capture && req.Body != nil {
			req.Body = teeBody(req.Body, limit, recordBody(span, "openai.request.body"))
		}

		res, err := next(req)
		if err != nil || res == nil || !span.IsRecording() {
			return res, err
		}
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
		if capture && res.Body != nil {
			res.Body = teeBody(res.Body, limit, recordBody(span, "openai.response.body"))
		}
		return res, nil
	}
}

func recordBody(span trace.Span, key string) func([]byte, bool) {
	return func(body []byte, truncated bool) {
		span.SetAttributes(
			attribute.String(key, strings.ToValidUTF8(string(body), "�")),
			attribute.Bool(key+".truncated", truncated),
		)
	}
}

// cappedBuffer keeps the first limit bytes written to it and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	keep := len(p)
	if c.limit >= 0 {
		keep = max(0, min(keep, c.limit-c.buf.Len()))
	}
	if keep < len(p) {
		c.truncated = true
	}
	c.buf.Write(p[:keep])
	return len(p), nil
}

type teeReadCloser struct {
	io.Reader
	closer io.Closer
	capped *cappedBuffer
	once   sync.Once
	done   func([]byte, bool)
}

// teeBody passes rc through unchanged and reports what it saw once on Close.
func teeBody(rc io.ReadCloser, limit int, done func(body []byte, truncated bool)) io.ReadCloser {
	capped := &cappedBuffer{limit: limit}
	return &teeReadCloser{Reader: io.TeeReader(rc, capped), closer: rc, capped: capped, done: done}
}

func (t *teeReadCloser) Close() error {
	t.once.Do(func() { t.done(t.capped.buf.Bytes(), t.capped.truncated) })
	return t.closer.Close()
}
