// Package commands implements the user-facing maintenance commands of the
// ledger: reset, backup, restore, validate, toggle, find and status.
//
// Each command runs against a [Ledger] (normally a *session.Manager) and
// reports a [Result] for the caller to show. The same handlers back the
// websocket bridge and the offline CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/session"
	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// MaxFindResults caps the number of lines in a find result.
const MaxFindResults = 10

// ErrUnknownCommand is returned by [Handler.Dispatch] for unregistered names.
var ErrUnknownCommand = errors.New("commands: unknown command")

// Ledger is the subset of *session.Manager the handlers use.
type Ledger interface {
	ClearAll(ctx context.Context) error
	CreateBackup(ctx context.Context) (string, error)
	RestoreFromBackup(ctx context.Context) (int, error)
	Validate(ctx context.Context) trade.ValidationResult
	ToggleDisplay() bool
	Find(query string) []session.Match
	Snapshot() session.Snapshot
}

// Result is the outcome of one command.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func ok(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Func is the signature of a registered command.
type Func func(ctx context.Context, args []string) Result

// Handler runs commands against a [Ledger].
type Handler struct {
	ledger Ledger
	funcs  map[string]Func
}

// NewHandler returns a Handler with every built-in command registered.
func NewHandler(l Ledger) *Handler {
	h := &Handler{ledger: l}
	h.funcs = map[string]Func{
		"reset":    func(ctx context.Context, _ []string) Result { return h.Reset(ctx) },
		"backup":   func(ctx context.Context, _ []string) Result { return h.Backup(ctx) },
		"restore":  func(ctx context.Context, _ []string) Result { return h.Restore(ctx) },
		"validate": func(ctx context.Context, _ []string) Result { return h.Validate(ctx) },
		"toggle":   func(ctx context.Context, _ []string) Result { return h.Toggle(ctx) },
		"find":     func(ctx context.Context, args []string) Result { return h.Find(ctx, strings.Join(args, " ")) },
		"status":   func(ctx context.Context, _ []string) Result { return h.Status(ctx) },
	}
	return h
}

// Names returns the registered command names in sorted order.
func (h *Handler) Names() []string {
	names := make([]string, 0, len(h.funcs))
	for n := range h.funcs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs the command registered under name. Names are matched
// case-insensitively.
func (h *Handler) Dispatch(ctx context.Context, name string, args []string) (Result, error) {
	fn, found := h.funcs[strings.ToLower(strings.TrimSpace(name))]
	if !found {
		return Result{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownCommand, name, strings.Join(h.Names(), ", "))
	}
	ctx, span := observe.StartSpan(ctx, "commands."+name)
	defer span.End()
	res := fn(ctx, args)
	observe.Logger(ctx).Info("command executed", "command", name, "ok", res.OK)
	return res, nil
}

// Reset clears every record of the active namespace.
func (h *Handler) Reset(ctx context.Context) Result {
	if err := h.ledger.ClearAll(ctx); err != nil {
		return failure("reset", err)
	}
	return ok("Current namespace data has been reset/cleared.")
}

// Backup creates a manual backup of the active namespace.
func (h *Handler) Backup(ctx context.Context) Result {
	path, err := h.ledger.CreateBackup(ctx)
	if errors.Is(err, storage.ErrNoDataFile) {
		return fail("Nothing to back up: no data has been saved yet.")
	}
	if err != nil {
		return failure("backup", err)
	}
	return ok("Backup created successfully: %s", path)
}

// Restore replaces the ledger with the newest usable backup.
func (h *Handler) Restore(ctx context.Context) Result {
	n, err := h.ledger.RestoreFromBackup(ctx)
	if errors.Is(err, session.ErrNoBackup) {
		return fail("Failed to restore: no backup found.")
	}
	if err != nil {
		return failure("restore", err)
	}
	return ok("Data restored from backup successfully (%d records).", n)
}

// Validate reports the validation summary of the ledger.
func (h *Handler) Validate(ctx context.Context) Result {
	res := h.ledger.Validate(ctx)
	return Result{OK: res.OK(), Message: res.Message()}
}

// Toggle flips label display.
func (h *Handler) Toggle(_ context.Context) Result {
	if h.ledger.ToggleDisplay() {
		return ok("Label display enabled.")
	}
	return ok("Label display disabled.")
}

// Find lists the entities offering an attribute that matches query.
func (h *Handler) Find(_ context.Context, query string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return fail("Usage: find <attribute>")
	}
	matches := h.ledger.Find(query)
	if len(matches) == 0 {
		return fail("No entries match %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d entries match %q:", len(matches), query)
	for i, m := range matches {
		if i == MaxFindResults {
			fmt.Fprintf(&b, "\n  ... and %d more", len(matches)-MaxFindResults)
			break
		}
		fmt.Fprintf(&b, "\n  %s %s", m.EntityID, m.Entry.DisplayText())
	}
	return ok("%s", b.String())
}

// Status describes the manager state.
func (h *Handler) Status(_ context.Context) Result {
	s := h.ledger.Snapshot()
	if s.State == session.StateIdle {
		return ok("No active namespace.")
	}
	display := "on"
	if !s.DisplayEnabled {
		display = "off"
	}
	return ok("Namespace %s: %d records, mode %s, display %s, dirty %t.",
		s.Namespace, s.Records, s.Mode, display, s.Dirty)
}

// failure maps errors shared by every command to a Result.
func failure(cmd string, err error) Result {
	if errors.Is(err, session.ErrNoNamespace) {
		return fail("No active namespace.")
	}
	return fail("Failed to %s: %v", cmd, err)
}
