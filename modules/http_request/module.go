// Package http_request provides the built-in node that performs one HTTP
// call per run.
package http_request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// Output pin names.
const (
	PinResponse   = "response"
	PinStatusCode = "status_code"
	PinSuccess    = "success"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client is used for every request. Defaults to http.DefaultClient.
	Client Doer
}

// Config is the per-node configuration.
type Config struct {
	URL     string            `json:"url"`
	Method  string            `json:"method" validate:"required,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	Headers map[string]string `json:"headers"`
	Payload value.Value       `json:"payload"`
	// Timeout is in seconds; zero disables it.
	Timeout float64 `json:"timeout" validate:"gte=0"`
}

func defaults() value.Map {
	return value.Map{
		"url":     value.Text(""),
		"method":  value.Text(http.MethodGet),
		"headers": value.FromMap(value.Map{}),
		"payload": value.Null(),
		"timeout": value.Number(30),
	}
}

// Behavior is the http_request node variant.
type Behavior struct {
	client Doer
	raw    value.Map
	cfg    Config
}

// New builds a behavior configured with cfg.
func New(client Doer, cfg value.Map) (*Behavior, error) {
	if client == nil {
		client = http.DefaultClient
	}
	b := &Behavior{client: client}
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Behavior) Kind() node.Kind { return node.KindHTTPRequest }

func (b *Behavior) OutputPinNames() []string {
	return []string{PinResponse, PinStatusCode, PinSuccess}
}

func (b *Behavior) Config() value.Map { return b.raw.Clone() }

func (b *Behavior) Configure(cfg value.Map) error {
	if m, ok := cfg.Get("method"); ok {
		if s, isText := m.AsText(); isText {
			cfg = cfg.Clone()
			cfg["method"] = value.Text(strings.ToUpper(s))
		}
	}
	var parsed Config
	raw, err := registry.DecodeConfig(defaults(), cfg, &parsed)
	if err != nil {
		return err
	}
	b.raw, b.cfg = raw, parsed
	return nil
}

// Process sends the request. The url and payload inputs take precedence
// over the configured ones. Transport faults produce an error output next
// to a zero status code.
func (b *Behavior) Process(ctx context.Context, inputs value.Map) (value.Map, error) {
	url := b.cfg.URL
	if v, ok := inputs.Get("url"); ok {
		if s, isText := v.AsText(); isText && s != "" {
			url = s
		}
	}
	payload := b.cfg.Payload
	if inputs.Has("payload") {
		payload = inputs["payload"]
	}

	if url == "" {
		return fault("no url configured"), nil
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(b.cfg.Timeout*float64(time.Second)))
		defer cancel()
	}

	body, contentType, err := encodePayload(payload)
	if err != nil {
		return fault(err.Error()), nil
	}

	req, err := http.NewRequestWithContext(ctx, b.cfg.Method, url, body)
	if err != nil {
		return fault(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request.", "method", b.cfg.Method, "url", url)

	resp, err := b.client.Do(req)
	if err != nil {
		return fault(fmt.Sprintf("failed to execute request: %v", err)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault(fmt.Sprintf("failed to read response body: %v", err)), nil
	}
	logger.Info("Received HTTP response.", "status", resp.Status, "bytes", len(data))

	return value.Map{
		PinResponse:   value.Text(string(data)),
		PinStatusCode: value.Number(float64(resp.StatusCode)),
		PinSuccess:    value.Bool(resp.StatusCode >= 200 && resp.StatusCode < 300),
	}, nil
}

func fault(msg string) value.Map {
	return value.Map{
		PinResponse:   value.Text(""),
		PinStatusCode: value.Number(0),
		PinSuccess:    value.Bool(false),
		node.ErrorKey: value.Text(msg),
	}
}

// encodePayload sends text as-is and everything else as JSON.
func encodePayload(v value.Value) (io.Reader, string, error) {
	if v.IsNull() {
		return nil, "", nil
	}
	if s, ok := v.AsText(); ok {
		return strings.NewReader(s), "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// Register registers the http_request kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(&registry.RegisteredKind{
		Kind:        node.KindHTTPRequest,
		Description: "Performs an HTTP request and exposes the response.",
		New: func(cfg value.Map) (node.Behavior, error) {
			return New(m.Client, cfg)
		},
	})
}
