package executor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
	"github.com/cos-systems/cos/telemetry"
	"github.com/cos-systems/cos/value"
)

// HTTP routes a capability call to an HTTP endpoint, with positional
// arguments [url?, method?, headers?, body?] falling back to the provider's
// configured base_url (spec §4.3).
type HTTP struct {
	client *http.Client
	logger telemetry.Logger
	tracer telemetry.Tracer
}

// HTTPOption configures an HTTP executor.
type HTTPOption func(*HTTP)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption { return func(h *HTTP) { h.client = c } }

// WithHTTPLogger configures the executor's logger. Nil uses a noop logger.
func WithHTTPLogger(l telemetry.Logger) HTTPOption { return func(h *HTTP) { h.logger = l } }

// WithHTTPTracer configures the executor's tracer. Nil uses a noop tracer.
func WithHTTPTracer(t telemetry.Tracer) HTTPOption { return func(h *HTTP) { h.tracer = t } }

// NewHTTP constructs an HTTP executor.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: telemetry.NewNoopLogger(),
		tracer: telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// Execute issues the HTTP request described by provider and args, returning
// a Map{status,headers,body} Value (spec §4.3).
func (h *HTTP) Execute(ctx context.Context, provider manifest.ProviderType, args []value.Value) (value.Value, error) {
	ctx, span := h.tracer.Start(ctx, "executor.http.execute")
	defer span.End()

	url := provider.BaseURL
	method := http.MethodGet
	var headers map[string]string
	var body io.Reader

	if len(args) > 0 && args[0].Tag() == value.TagString && args[0].AsString() != "" {
		url = args[0].AsString()
	}
	if len(args) > 1 && args[1].Tag() == value.TagString && args[1].AsString() != "" {
		method = args[1].AsString()
	}
	if len(args) > 2 && args[2].Tag() == value.TagMap {
		headers = make(map[string]string)
		for _, k := range args[2].MapKeys() {
			v, _ := args[2].MapGet(k)
			headers[k.S] = v.AsString()
		}
	}
	if len(args) > 3 {
		switch args[3].Tag() {
		case value.TagString:
			body = bytes.NewReader([]byte(args[3].AsString()))
		case value.TagNil:
			// no body
		default:
			raw, err := value.MarshalJSON(args[3])
			if err != nil {
				return value.Value{}, errors.Wrap(errors.RuntimeError, "marshal http body", err)
			}
			body = bytes.NewReader(raw)
		}
	}
	if url == "" {
		span.SetStatus(codes.Error, "missing url")
		return value.Value{}, errors.New(errors.RuntimeError, "http capability call requires a url (positional arg or provider base_url)")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return value.Value{}, errors.Wrap(errors.NetworkError, "build http request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if provider.AuthBearer != "" {
		req.Header.Set("Authorization", "Bearer "+provider.AuthBearer)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return value.Value{}, errors.Wrap(errors.NetworkError, "http request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return value.Value{}, errors.Wrap(errors.NetworkError, "read http response body", err)
	}

	if resp.StatusCode >= 400 {
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		span.SetStatus(codes.Error, "non-2xx response")
		return value.Value{}, errors.Newf(errors.NetworkError, "http %s %s returned status %d: %s", method, url, resp.StatusCode, snippet)
	}

	respHeaders := value.EmptyMap()
	for k := range resp.Header {
		respHeaders = respHeaders.Set(value.StringKey(k), value.Str(resp.Header.Get(k)))
	}
	result := value.EmptyMap()
	result = result.Set(value.StringKey("status"), value.Int(int64(resp.StatusCode)))
	result = result.Set(value.StringKey("headers"), respHeaders)
	result = result.Set(value.StringKey("body"), value.Str(string(raw)))
	return result, nil
}
