// Command tradeledger runs the trade ledger service and its offline
// maintenance tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tradeledger/internal/config"
	"github.com/MrWong99/tradeledger/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr, environMap(os.Environ()))
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "tradeledger: %v\n", err)
		}
		return 1
	}
	return 0
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string

	environ map[string]string
	stderr  io.Writer

	// Set by the root PersistentPreRunE.
	cfg      *config.Config
	levelVar *slog.LevelVar
}

// newRootCmd builds the command tree. stdout and stderr receive command
// output and logs; environ supplies the TRADELEDGER_* overrides.
func newRootCmd(stdout, stderr io.Writer, environ map[string]string) *cobra.Command {
	opts := &globalOptions{environ: environ, stderr: stderr}

	root := &cobra.Command{
		Use:   "tradeledger",
		Short: "Per-namespace ledger of merchant trade offers",
		Long: `Tradeledger records the offers seen on merchant entities, one ledger per
world or server, and serves them to game clients over a websocket bridge.

Configuration is resolved from built-in defaults, then the YAML file given by
--config, then TRADELEDGER_* environment variables, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to the YAML configuration file")
	pf.StringVar(&opts.dataDir, "data-dir", "", "directory holding ledger files (overrides storage.data_dir)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides server.log_level)")

	root.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	for _, c := range newLedgerCmds(opts) {
		root.AddCommand(c)
	}
	return root
}

// resolve loads the effective config, applies flag overrides and installs
// the default logger.
func (o *globalOptions) resolve(cmd *cobra.Command) error {
	if skipsConfig(cmd) {
		return nil
	}
	cfg, err := config.Resolve(o.configPath, o.environ)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = o.dataDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Server.LogLevel = config.LogLevel(strings.ToLower(o.logLevel))
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	o.cfg = cfg

	o.levelVar = new(slog.LevelVar)
	o.levelVar.Set(observe.ParseLevel(string(cfg.Server.LogLevel)))
	slog.SetDefault(observe.NewLogger(o.stderr, o.levelVar))
	return nil
}

// skipsConfig reports whether cmd works without a resolved config.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["config"] == "skip" {
			return true
		}
	}
	return false
}

// environMap converts KEY=VALUE pairs into a map.
func environMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version number",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradeledger version %s\n", version)
		},
	}
}
