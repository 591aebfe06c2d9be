package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/nodegrid/internal/app"
)

// EnvPrefix prefixes every environment variable that provides a default.
const EnvPrefix = "NODEGRID_"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnv loads .env style files into the process environment. Variables
// already set win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ExitError{Code: 2, Message: fmt.Sprintf("failed to load %s: %v", f, err)}
		}
	}
	return nil
}

// Parse processes command-line arguments with defaults taken from the
// process environment. It returns a populated Config, a boolean indicating
// if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	return ParseWithEnv(args, output, os.LookupEnv)
}

// ParseWithEnv is Parse with an explicit environment.
func ParseWithEnv(args []string, output io.Writer, lookup LookupFunc) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("nodegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
nodegrid - Runs dataflow graphs of plugin and built-in nodes.

Usage:
  nodegrid [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to a JSON graph document.

Every option can also be set through an environment variable named
NODEGRID_<OPTION>, e.g. NODEGRID_LOG_LEVEL=debug. A .env file in the working
directory is read at startup.

Options:
`)
		flagSet.PrintDefaults()
	}

	env := envDefaults{lookup: lookup}
	graphFlag := flagSet.String("graph", env.stringVar("graph", ""), "Path to the graph document.")
	gFlag := flagSet.String("g", "", "Path to the graph document (shorthand).")
	pluginsFlag := flagSet.String("plugins", env.stringVar("plugins", "plugins"), "Directory of HCL plugin manifests.")
	storeFlag := flagSet.String("plugin-store", env.stringVar("plugin_store", app.StoreDir), "Plugin store backend. Options: 'dir', 'sqlite' or 'postgres'.")
	dbFlag := flagSet.String("database-url", env.stringVar("database_url", ""), "Database DSN for the sqlite or postgres plugin store.")
	nodeFlag := flagSet.String("node", env.stringVar("node", ""), "Execute only the node with this id.")
	saveFlag := flagSet.String("save", env.stringVar("save", ""), "Write the graph to this path after the run.")
	listFlag := flagSet.Bool("list-plugins", env.boolVar("list_plugins"), "Print the available plugins and built-in node kinds.")
	eventsURLFlag := flagSet.String("events-url", env.stringVar("events_url", ""), "socket.io server receiving execution events. Empty disables it.")
	eventsNSFlag := flagSet.String("events-namespace", env.stringVar("events_namespace", "/"), "socket.io namespace for execution events.")
	eventsInsecureFlag := flagSet.Bool("events-insecure", env.boolVar("events_insecure"), "Skip TLS certificate verification for the events server.")
	scriptTimeoutFlag := flagSet.Duration("script-timeout", env.durationVar("script_timeout", 10*time.Second), "Maximum run time of one script. 0 disables it.")
	healthPortFlag := flagSet.Int("healthcheck-port", env.intVar("healthcheck_port", 0), "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", env.stringVar("log_format", "text"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", env.stringVar("log_level", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if env.err != nil {
		return nil, false, &ExitError{Code: 2, Message: env.err.Error()}
	}

	path := *graphFlag
	if *gFlag != "" {
		path = *gFlag
	} else if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" && !*listFlag {
		flagSet.Usage()
		return nil, true, nil
	}

	cfg, err := app.NewConfig(app.Config{
		GraphPath:       path,
		PluginsPath:     *pluginsFlag,
		PluginStore:     strings.ToLower(*storeFlag),
		DatabaseURL:     *dbFlag,
		NodeID:          *nodeFlag,
		SavePath:        *saveFlag,
		ListPlugins:     *listFlag,
		EventsURL:       *eventsURLFlag,
		EventsNamespace: *eventsNSFlag,
		EventsInsecure:  *eventsInsecureFlag,
		ScriptTimeout:   *scriptTimeoutFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       strings.ToLower(*logFormatFlag),
		LogLevel:        strings.ToLower(*logLevelFlag),
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}

// envDefaults reads NODEGRID_* variables. The first malformed value is kept
// in err.
type envDefaults struct {
	lookup LookupFunc
	err    error
}

func (e *envDefaults) get(name string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + strings.ToUpper(name))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envDefaults) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s%s=%q: %v", EnvPrefix, strings.ToUpper(name), v, err)
	}
}

func (e *envDefaults) stringVar(name, def string) string {
	if v, ok := e.get(name); ok {
		return v
	}
	return def
}

func (e *envDefaults) boolVar(name string) bool {
	v, ok := e.get(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
	}
	return b
}

func (e *envDefaults) intVar(name string, def int) int {
	v, ok := e.get(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return n
}

func (e *envDefaults) durationVar(name string, def time.Duration) time.Duration {
	v, ok := e.get(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return d
}
