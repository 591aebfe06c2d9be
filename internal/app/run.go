package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/graphfile"
	"github.com/specialistvlad/nodegrid/internal/node"
	"golang.org/x/sync/errgroup"
)

// Run executes the main application logic based on the configuration:
// optionally list plugins, then load the graph, run one node or all of
// them, print the outputs and optionally save the graph back.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.ListPlugins {
		a.printPlugins()
	}
	if a.config.GraphPath == "" {
		return nil
	}

	loader := &graphfile.Loader{
		Plugins:   a.plugins,
		Builtins:  a.registry,
		GraphOpts: a.observers(),
	}
	g, err := loader.Load(ctx, a.config.GraphPath)
	if err != nil {
		return fmt.Errorf("failed to load graph: %w", err)
	}
	a.logger.Info("Graph loaded.", "path", a.config.GraphPath, "nodes", g.Len(), "connections", len(g.Connections()))

	if err := g.DetectCycles(); err != nil {
		a.logger.Warn("Graph contains a cycle, some nodes will not run.", "error", err)
	}

	if a.config.NodeID != "" {
		outputs, err := g.ExecuteNode(ctx, a.config.NodeID)
		if err != nil {
			return fmt.Errorf("execution failed: %w", err)
		}
		n, _ := g.Node(a.config.NodeID)
		a.printOutputs(n, outputs.Interface())
	} else if g.Len() > 0 {
		report := g.ExecuteAll(ctx)
		for _, id := range report.Executed {
			n, _ := g.Node(id)
			a.printOutputs(n, n.Outputs().Interface())
		}
		if len(report.Pending) > 0 {
			fmt.Fprintf(a.outW, "Not executed: %s\n", strings.Join(report.Pending, ", "))
		}
	} else {
		a.logger.Warn("No nodes found in graph, execution not required.")
	}

	if a.config.SavePath != "" {
		if err := graphfile.Save(g, a.config.SavePath); err != nil {
			return fmt.Errorf("failed to save graph: %w", err)
		}
		a.logger.Info("Graph saved.", "path", a.config.SavePath)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) printOutputs(n *node.Node, outputs map[string]any) {
	data, err := json.Marshal(outputs)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}
	fmt.Fprintf(a.outW, "%s [%s] %s: %s\n", n.Name(), n.Kind(), n.ID(), data)
}

func (a *App) printPlugins() {
	w := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tINPUTS\tOUTPUTS")
	for _, def := range a.plugins.List() {
		inputs := make([]string, 0, len(def.Inputs))
		for _, in := range def.Inputs {
			name := in.Name
			if in.Required {
				name += "*"
			}
			inputs = append(inputs, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.ID, def.Name, def.Version,
			strings.Join(inputs, ","), strings.Join(def.OutputPinNames(), ","))
	}
	for _, kind := range a.registry.Kinds() {
		rk, _ := a.registry.Lookup(kind)
		fmt.Fprintf(w, "-\t%s\tbuilt-in\t\t%s\n", kind, rk.Description)
	}
	_ = w.Flush()
}

// Close releases everything NewApp acquired. Resources are released
// concurrently; the first error is returned.
func (a *App) Close() error {
	var g errgroup.Group

	g.Go(a.closeHealthCheckServer)
	if a.publisher != nil {
		g.Go(a.publisher.Close)
	}
	for _, c := range a.closers {
		g.Go(func() error {
			err := c.Close()
			a.logger.Debug("Plugin store closed.", "error", err)
			return err
		})
	}
	return g.Wait()
}
