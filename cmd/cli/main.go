package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/specialistvlad/nodegrid/internal/app"
	"github.com/specialistvlad/nodegrid/internal/cli"
	"github.com/specialistvlad/nodegrid/internal/registry"
)

// main is the entrypoint for the nodegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	if err := cli.LoadEnv(); err != nil {
		return err
	}
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	return start(context.Background(), outW, appConfig)
}

// start builds the app, runs it and releases it. An empty module list
// selects the core built-ins.
func start(ctx context.Context, outW io.Writer, cfg *app.Config, modules ...registry.Module) (err error) {
	// The app panics on an invalid registry; turn that into an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	a, err := app.NewApp(ctx, outW, cfg, modules...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return a.Run(ctx)
}
