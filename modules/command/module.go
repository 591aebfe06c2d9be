// Package command provides the built-in node that runs an external process.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// Output pin names.
const (
	PinStdout   = "stdout"
	PinStderr   = "stderr"
	PinExitCode = "exit_code"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Config is the per-node configuration.
type Config struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Dir     string            `json:"dir"`
	// Timeout is in seconds; zero disables it.
	Timeout float64 `json:"timeout" validate:"gte=0"`
}

func defaults() value.Map {
	return value.Map{
		"command": value.Text(""),
		"args":    value.List(),
		"env":     value.FromMap(value.Map{}),
		"dir":     value.Text(""),
		"timeout": value.Number(30),
	}
}

// Behavior is the command node variant.
type Behavior struct {
	raw value.Map
	cfg Config
}

// New builds a behavior configured with cfg.
func New(cfg value.Map) (*Behavior, error) {
	b := &Behavior{}
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Behavior) Kind() node.Kind { return node.KindCommand }

func (b *Behavior) OutputPinNames() []string {
	return []string{PinStdout, PinStderr, PinExitCode}
}

func (b *Behavior) Config() value.Map { return b.raw.Clone() }

func (b *Behavior) Configure(cfg value.Map) error {
	var parsed Config
	raw, err := registry.DecodeConfig(defaults(), cfg, &parsed)
	if err != nil {
		return err
	}
	b.raw, b.cfg = raw, parsed
	return nil
}

// Process runs the configured command to completion. A non-zero exit code
// is reported as-is; launch failures and timeouts report -1 with an error.
func (b *Behavior) Process(ctx context.Context, inputs value.Map) (value.Map, error) {
	if strings.TrimSpace(b.cfg.Command) == "" {
		return fault("", "", "no command configured"), nil
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(b.cfg.Timeout*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.cfg.Command, b.cfg.Args...)
	cmd.Dir = b.cfg.Dir
	cmd.Env = environ(b.cfg.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if v, ok := inputs.Get("stdin"); ok && !v.IsNull() {
		text, isText := v.AsText()
		if !isText {
			text = v.String()
		}
		cmd.Stdin = strings.NewReader(text)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Running command.", "command", b.cfg.Command, "args", b.cfg.Args)

	start := time.Now()
	err := cmd.Run()

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return fault(stdout.String(), stderr.String(), fmt.Sprintf("command timed out after %gs", b.cfg.Timeout)), nil
	} else if ctxErr != nil {
		return fault(stdout.String(), stderr.String(), fmt.Sprintf("command interrupted: %v", ctxErr)), nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
	default:
		return fault(stdout.String(), stderr.String(), fmt.Sprintf("failed to start command: %v", err)), nil
	}

	code := cmd.ProcessState.ExitCode()
	logger.Info("Command finished.", "exitCode", code, "duration", time.Since(start))

	return value.Map{
		PinStdout:   value.Text(stdout.String()),
		PinStderr:   value.Text(stderr.String()),
		PinExitCode: value.Number(float64(code)),
	}, nil
}

func fault(stdout, stderr, msg string) value.Map {
	return value.Map{
		PinStdout:     value.Text(stdout),
		PinStderr:     value.Text(stderr),
		PinExitCode:   value.Number(-1),
		node.ErrorKey: value.Text(msg),
	}
}

// environ layers extra on top of the current process environment.
func environ(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// Register registers the command kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(&registry.RegisteredKind{
		Kind:        node.KindCommand,
		Description: "Runs an external command and captures its output.",
		New: func(cfg value.Map) (node.Behavior, error) {
			return New(cfg)
		},
	})
}
