// Tellstick gateway - RF-to-IP bridge for Telldus Tellstick Net/ZNet
//
// This is the main entry point for the gateway. It discovers the appliance
// on the local network, registers for received RF traffic and decodes it,
// and sends RF commands. The run command wires the session to Home
// Assistant over MQTT, InfluxDB, NATS, the capture journal, the HTTP API
// and the command scheduler.
//
// Usage:
//
//	tellstick [-config path] <command> [flags]
//
// Commands: run (default), discover, listen, raw, parse, measurements,
// mock, send, token, version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// dotEnvFile is loaded before the configuration when present.
const dotEnvFile = ".env"

// errUsage reports a bad command line; the usage text has been printed.
var errUsage = errors.New("invalid usage")

// command is one CLI subcommand.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *cliEnv, args []string) error
}

// cliEnv carries what every subcommand needs.
type cliEnv struct {
	configPath string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

var commands = []command{
	{"run", "run the gateway service (default)", cmdRun},
	{"discover", "list appliances on the local network", cmdDiscover},
	{"listen", "print decoded events as JSON lines", cmdListen},
	{"raw", "print received packets as replayable lines", cmdRaw},
	{"parse", "decode packets from a file or stdin", cmdParse},
	{"measurements", "print sensor readings as JSON lines", cmdMeasurements},
	{"mock", "answer discovery probes like an appliance", cmdMock},
	{"send", "send a command and wait for its repeats", cmdSend},
	{"token", "issue an API bearer token", cmdToken},
	{"version", "print version information", cmdVersion},
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses the global flags and dispatches to a subcommand.
// Separated from main for testability.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tellstick", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", getConfigPath(), "configuration file")
	fs.Usage = func() { printUsage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	env := &cliEnv{
		configPath: *configPath,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}

	name := "run"
	rest := fs.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, env, rest)
		}
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", name)
	printUsage(fs)
	return errUsage
}

func printUsage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: tellstick [-config path] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n")
	fs.PrintDefaults()
}

// getConfigPath returns the configuration file path.
// Uses TELLSTICK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TELLSTICK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads .env and the configuration file. A missing file at the
// default path falls back to defaults so the tools work without one.
func (e *cliEnv) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	path := e.configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// toolLogger logs to stderr so tool output on stdout stays machine-readable.
func toolLogger(cfg *config.Config) *logging.Logger {
	lc := cfg.Logging
	if lc.Output != "file" {
		lc.Output = "stderr"
	}
	lc.Format = "text"
	return logging.New(lc, version)
}

// newFlagSet creates a subcommand flag set writing to stderr.
func (e *cliEnv) newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tellstick %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses subcommand flags. Failures and -h map to errUsage; the
// flag package has already printed the usage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func cmdVersion(_ context.Context, env *cliEnv, _ []string) error {
	fmt.Fprintf(env.stdout, "tellstick %s (commit %s, built %s)\n", version, commit, date)
	return nil
}
