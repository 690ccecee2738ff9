package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tradeledger/internal/commands"
	"github.com/MrWong99/tradeledger/internal/session"
	"github.com/MrWong99/tradeledger/internal/storage"
)

// errCommandFailed is returned when a maintenance command reports failure.
// Its message has already been printed.
var errCommandFailed = errors.New("command failed")

// namespaceFlags selects the ledger an offline command works on.
type namespaceFlags struct {
	namespace string
	local     string
	remote    string
}

func (f *namespaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.namespace, "namespace", "n", "", "namespace identifier, e.g. world_Survival")
	cmd.Flags().StringVar(&f.local, "local", "", "local world name (namespace world_<name>)")
	cmd.Flags().StringVar(&f.remote, "remote", "", "server address (namespace server_<address>)")
	cmd.MarkFlagsMutuallyExclusive("namespace", "local", "remote")
	cmd.MarkFlagsOneRequired("namespace", "local", "remote")
}

func (f *namespaceFlags) resolve() string {
	switch {
	case f.local != "":
		return storage.LocalNamespace(f.local)
	case f.remote != "":
		return storage.RemoteNamespace(f.remote)
	}
	return f.namespace
}

// ledgerCommand describes one offline maintenance command backed by a
// [commands.Handler] entry.
type ledgerCommand struct {
	use   string
	short string
	name  string
	args  cobra.PositionalArgs
}

var ledgerCommands = []ledgerCommand{
	{use: "reset", short: "Clear every record of a namespace", name: "reset", args: cobra.NoArgs},
	{use: "backup", short: "Create a backup of a namespace", name: "backup", args: cobra.NoArgs},
	{use: "restore", short: "Replace a namespace with its newest usable backup", name: "restore", args: cobra.NoArgs},
	{use: "validate", short: "Check the records of a namespace", name: "validate", args: cobra.NoArgs},
	{use: "status", short: "Summarise a namespace", name: "status", args: cobra.NoArgs},
	{use: "find <attribute>", short: "Find entities offering an attribute", name: "find", args: cobra.MinimumNArgs(1)},
}

// newLedgerCmds returns the offline maintenance commands. They must not run
// while a server is serving the same data directory.
func newLedgerCmds(opts *globalOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(ledgerCommands)+1)
	for _, lc := range ledgerCommands {
		var ns namespaceFlags
		cmd := &cobra.Command{
			Use:   lc.use,
			Short: lc.short,
			Args:  lc.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withLedger(cmd.Context(), opts, ns.resolve(), func(ctx context.Context, mgr *session.Manager) error {
					res, err := commands.NewHandler(mgr).Dispatch(ctx, lc.name, args)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), res.Message)
					if !res.OK {
						return errCommandFailed
					}
					return nil
				})
			},
		}
		ns.register(cmd)
		cmds = append(cmds, cmd)
	}
	return append(cmds, newShowCmd(opts), newBackupsCmd(opts))
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var ns namespaceFlags
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the records of a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd.Context(), opts, ns.resolve(), func(_ context.Context, mgr *session.Manager) error {
				return printLedger(cmd.OutOrStdout(), mgr)
			})
		},
	}
	ns.register(cmd)
	return cmd
}

func newBackupsCmd(opts *globalOptions) *cobra.Command {
	var ns namespaceFlags
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List the backups of a namespace, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := ns.resolve()
			backups, err := newStore(opts).Backups(cmd.Context(), name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				_, err := fmt.Fprintf(out, "Namespace %s has no backups.\n", name)
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMODIFIED\tSIZE")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Name, b.ModTime.Format(time.DateTime), b.Size)
			}
			return tw.Flush()
		},
	}
	ns.register(cmd)
	return cmd
}

func newStore(opts *globalOptions) *storage.FileStore {
	cfg := opts.cfg
	return storage.NewFileStore(cfg.Storage.DataDir,
		storage.WithMaxBackups(cfg.Storage.MaxBackups),
		storage.WithDisplayMode(cfg.Ledger.DisplayMode),
	)
}

// withLedger joins ns on a fresh manager, runs fn, and flushes. The
// namespace is not left, so no leave backup is taken.
func withLedger(ctx context.Context, opts *globalOptions, ns string, fn func(context.Context, *session.Manager) error) error {
	cfg := opts.cfg
	mgr := session.NewManager(session.Config{
		Store:      newStore(opts),
		Mode:       cfg.Ledger.DisplayMode,
		HideLabels: !cfg.Ledger.LabelsEnabled(),
	})
	if err := mgr.Join(ctx, ns); err != nil {
		return err
	}
	if err := fn(ctx, mgr); err != nil {
		return err
	}
	return mgr.Flush(ctx)
}

func printLedger(w io.Writer, mgr *session.Manager) error {
	ledger := mgr.GetAll()
	if len(ledger) == 0 {
		_, err := fmt.Fprintf(w, "Namespace %s has no records.\n", mgr.CurrentNamespace())
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tLABEL\tENTRIES")
	for _, id := range ledger.IDs() {
		rec := ledger[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\n", id, rec.DisplayName, len(rec.Entries))
	}
	return tw.Flush()
}
