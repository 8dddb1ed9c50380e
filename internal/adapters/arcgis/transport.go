package arcgis

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// loggingTransport logs each outgoing request with its status and duration.
// Tokens and passwords never appear in the logged URL.
type loggingTransport struct {
	next   http.RoundTripper
	logger *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(req)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", redact(req.URL)),
		zap.Int64("dur_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		t.logger.Debug("arcgis request failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	t.logger.Debug("arcgis request",
		append(fields, zap.Int("status", resp.StatusCode), zap.Int64("bytes", resp.ContentLength))...)
	return resp, nil
}

func redact(u *url.URL) string {
	c := *u
	q := c.Query()
	for _, k := range []string{"token", "password"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	c.RawQuery = q.Encode()
	return c.String()
}
