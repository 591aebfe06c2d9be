// Package events streams execution events to a socket.io server, so an
// external canvas can follow a run live.
//
// Two events are emitted:
//
//   - "node_executed" with a NodeEvent payload after every node run.
//   - "run_finished" with a RunEvent payload after every ExecuteAll.
package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/graph"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names.
const (
	EventNodeExecuted = "node_executed"
	EventRunFinished  = "run_finished"
)

// NodeEvent describes one node run.
type NodeEvent struct {
	NodeID     string         `json:"node_id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Failed     bool           `json:"failed"`
	Error      string         `json:"error,omitempty"`
	Outputs    map[string]any `json:"outputs"`
	DurationMS float64        `json:"duration_ms"`
}

// RunEvent summarises one whole-graph run.
type RunEvent struct {
	Starting   []string `json:"starting"`
	Executed   []string `json:"executed"`
	Failed     []string `json:"failed"`
	Pending    []string `json:"pending"`
	Passes     int      `json:"passes"`
	Converged  bool     `json:"converged"`
	DurationMS float64  `json:"duration_ms"`
}

// EmitFunc sends one event.
type EmitFunc func(event string, payload any)

// Publisher is a graph.Observer that forwards executions to an EmitFunc.
type Publisher struct {
	emit  EmitFunc
	close func()
}

// New creates a publisher around emit.
func New(emit EmitFunc) *Publisher {
	return &Publisher{emit: emit, close: func() {}}
}

// DialConfig configures a socket.io connection.
type DialConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds the initial connection. Defaults to 15s.
	Timeout time.Duration
}

// Dial connects to a socket.io server and returns a publisher emitting on
// that connection. Close disconnects it.
func Dial(ctx context.Context, cfg DialConfig) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("component", "events", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid events URL %q: scheme and host are required", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to event sink.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("%v", errs[0])
		}
		connected <- err
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(cfg.Timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.Timeout)
	}

	return &Publisher{
		emit: func(event string, payload any) { io.Emit(event, payload) },
		close: func() {
			logger.Info("Disconnecting from event sink.", "sid", io.Id())
			io.Disconnect()
		},
	}, nil
}

// NodeExecuted implements graph.Observer.
func (p *Publisher) NodeExecuted(ctx context.Context, e graph.Execution) {
	ev := NodeEvent{
		NodeID:     e.Node.ID(),
		Kind:       string(e.Node.Kind()),
		Name:       e.Node.Name(),
		Failed:     e.Failed(),
		Outputs:    e.Outputs.Interface(),
		DurationMS: float64(e.Duration.Microseconds()) / 1000,
	}
	if msg, ok := e.Outputs.Get(node.ErrorKey); ok {
		ev.Error = msg.String()
	}
	ctxlog.FromContext(ctx).Debug("Publishing node event.", "nodeID", ev.NodeID)
	p.emit(EventNodeExecuted, ev)
}

// RunFinished implements graph.Observer.
func (p *Publisher) RunFinished(ctx context.Context, r *graph.Report) {
	p.emit(EventRunFinished, RunEvent{
		Starting:   r.Starting,
		Executed:   r.Executed,
		Failed:     r.Failed,
		Pending:    r.Pending,
		Passes:     r.Passes,
		Converged:  r.Converged,
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
	})
}

// Close disconnects the underlying connection, if any.
func (p *Publisher) Close() error {
	p.close()
	return nil
}
