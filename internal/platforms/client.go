package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/telemetry"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// doJSON sends req and decodes a 2xx JSON body into v. Any other status is
// an *APIError carrying the first KiB of the body.
func doJSON(c HTTPClient, p models.Platform, req *http.Request, v any) error {
	if req.URL == nil || req.URL.Host == "" {
		return errors.New("empty url")
	}
	ctx, span := telemetry.Tracer.Start(req.Context(), "platform.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("platform", string(p)),
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		))
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.Do(req)
	telemetry.AdapterRequestDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.AdapterRequestsTotal.WithLabelValues(string(p), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return err
	}
	defer resp.Body.Close()
	telemetry.AdapterRequestsTotal.WithLabelValues(string(p), strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		span.SetStatus(codes.Error, resp.Status)
		return &APIError{Platform: p, Status: resp.StatusCode, Body: string(b)}
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", p, err)
	}
	return nil
}

func getJSON(ctx context.Context, c HTTPClient, p models.Platform, url string, header http.Header, v any) error {
	if url == "" {
		return errors.New("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	return doJSON(c, p, req, v)
}
