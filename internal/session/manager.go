// Package session implements the ledger manager: the write-through cache
// holding the trade ledger of the one namespace that is currently joined.
//
// A [Manager] moves between three states. It starts Idle, becomes Active on
// [Manager.Join], passes through Switching while one namespace is flushed and
// the next is loaded, and returns to Idle on [Manager.Leave]. Every mutation
// of an Active ledger is written to storage before the call returns.
//
// A Manager is not safe for concurrent use. The daemon confines it to a single
// goroutine (see package bridge); the CLI drives it from main.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/phonetic"
	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// ErrNoNamespace is returned by operations that need an active namespace
// when the manager is Idle, and by Join when given an empty identifier.
var ErrNoNamespace = errors.New("session: no active namespace")

// ErrNoBackup is returned by RestoreFromBackup when no backup with data exists.
var ErrNoBackup = errors.New("session: no backup with data available")

// State is the lifecycle state of a [Manager].
type State int

const (
	StateIdle State = iota
	StateSwitching
	StateActive
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSwitching:
		return "switching"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the dependencies and initial settings of a [Manager].
type Config struct {
	// Store persists ledgers. Required.
	Store storage.Store

	// Mode selects how display names are derived. Defaults to
	// [trade.DisplayFirst].
	Mode trade.DisplayMode

	// HideLabels starts the manager with label display turned off.
	HideLabels bool

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Matcher is used by Find. Defaults to [phonetic.New].
	Matcher *phonetic.Matcher
}

// Manager is the namespace-scoped write-through ledger cache.
type Manager struct {
	store   storage.Store
	metrics *observe.Metrics
	matcher *phonetic.Matcher

	mode    trade.DisplayMode
	display bool

	state  State
	ns     string
	ledger trade.Ledger
	dirty  bool
}

// NewManager returns an Idle manager.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		store:   cfg.Store,
		metrics: cfg.Metrics,
		matcher: cfg.Matcher,
		mode:    cfg.Mode.OrDefault(),
		display: !cfg.HideLabels,
		ledger:  trade.Ledger{},
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.matcher == nil {
		m.matcher = phonetic.New()
	}
	return m
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Join makes ns the active namespace. An active namespace with unsaved
// changes is flushed first; a failure there is logged and the switch
// proceeds. If loading ns fails the manager keeps its previous state and
// the error is returned.
//
// A ledger that had to be recovered from a backup is written back
// immediately so the next start does not go through recovery again.
func (m *Manager) Join(ctx context.Context, ns string) (err error) {
	ctx, span := observe.StartSpan(ctx, "session.Join",
		trace.WithAttributes(attribute.String("namespace", ns)))
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	if ns == "" {
		log.Warn("join without a namespace identifier; ignoring")
		return ErrNoNamespace
	}

	prev := m.state
	if prev == StateActive {
		m.state = StateSwitching
		if m.dirty {
			if ferr := m.Flush(ctx); ferr != nil {
				log.Warn("flush before namespace switch failed; unsaved changes are lost",
					"namespace", m.ns, "err", ferr)
			}
		}
	}

	res, err := m.store.Load(ctx, ns)
	if err != nil {
		m.state = prev
		return fmt.Errorf("session: join %q: %w", ns, err)
	}

	if prev != StateActive {
		m.metrics.ActiveNamespaces.Add(ctx, 1)
	}
	m.ns = ns
	m.ledger = res.Ledger
	m.dirty = false
	m.state = StateActive

	log.Info("namespace joined",
		"namespace", ns,
		"records", len(m.ledger),
		"sanitized", res.Sanitized,
		"dropped", res.Dropped,
		"recovered", res.Recovered,
	)

	if res.Recovered && len(m.ledger) > 0 {
		m.dirty = true
		if ferr := m.Flush(ctx); ferr != nil {
			log.Warn("could not persist recovered ledger", "namespace", ns, "err", ferr)
		}
	}
	return nil
}

// Leave closes the active namespace. A ledger with data is backed up first,
// then unsaved changes are flushed. The manager always ends Idle; errors
// from the backup or flush are joined and returned for logging. Leaving
// while Idle is a no-op.
func (m *Manager) Leave(ctx context.Context) error {
	if m.state == StateIdle {
		return nil
	}
	ctx, span := observe.StartSpan(ctx, "session.Leave",
		trace.WithAttributes(attribute.String("namespace", m.ns)))
	defer span.End()
	log := observe.Logger(ctx).With("namespace", m.ns)

	var errs []error
	if len(m.ledger) > 0 {
		path, err := m.store.CreateBackup(ctx, m.ns)
		switch {
		case err == nil:
			m.metrics.RecordBackup(ctx, "leave", "ok")
			log.Info("backup created on leave", "path", path)
		case errors.Is(err, storage.ErrNoDataFile):
			m.metrics.RecordBackup(ctx, "leave", "skipped")
		default:
			m.metrics.RecordBackup(ctx, "leave", "error")
			errs = append(errs, err)
		}
	}
	if m.dirty {
		if err := m.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("namespace left", "records", len(m.ledger))
	m.ledger = trade.Ledger{}
	m.ns = ""
	m.dirty = false
	m.state = StateIdle
	m.metrics.ActiveNamespaces.Add(ctx, -1)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ─── Mutations ───────────────────────────────────────────────────────────────

// Upsert inserts or replaces the record for id and flushes. On a save error
// the in-memory change is kept and the manager stays dirty.
func (m *Manager) Upsert(ctx context.Context, id uuid.UUID, rec *trade.Record) error {
	if m.state != StateActive {
		observe.Logger(ctx).Warn("upsert without an active namespace; ignoring", "entity_id", id)
		return ErrNoNamespace
	}
	if rec == nil {
		return fmt.Errorf("session: upsert %s: nil record", id)
	}
	rec.EntityID = id
	m.ledger[id] = rec
	m.dirty = true
	return m.Flush(ctx)
}

// Remove deletes the record for id and flushes when something was removed.
func (m *Manager) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.state != StateActive {
		observe.Logger(ctx).Warn("remove without an active namespace; ignoring", "entity_id", id)
		return false, ErrNoNamespace
	}
	if _, ok := m.ledger[id]; !ok {
		return false, nil
	}
	delete(m.ledger, id)
	m.dirty = true
	return true, m.Flush(ctx)
}

// ClearAll empties the ledger and writes the empty ledger to storage, even
// when it was already empty.
func (m *Manager) ClearAll(ctx context.Context) error {
	if m.state != StateActive {
		observe.Logger(ctx).Warn("clear without an active namespace; ignoring")
		return ErrNoNamespace
	}
	n := len(m.ledger)
	m.ledger = trade.Ledger{}
	m.dirty = false
	if err := m.store.Save(ctx, m.ns, m.ledger); err != nil {
		return fmt.Errorf("session: clear %q: %w", m.ns, err)
	}
	observe.Logger(ctx).Info("ledger cleared", "namespace", m.ns, "removed", n)
	return nil
}

// Flush saves the ledger when it is dirty and non-empty. A dirty empty
// ledger is left unsaved; use ClearAll to persist an empty ledger.
func (m *Manager) Flush(ctx context.Context) error {
	if m.state == StateIdle || !m.dirty || len(m.ledger) == 0 {
		return nil
	}
	if err := m.store.Save(ctx, m.ns, m.ledger); err != nil {
		observe.Logger(ctx).Error("flush failed", "namespace", m.ns, "err", err)
		return err
	}
	m.dirty = false
	return nil
}

// RestoreFromBackup replaces the ledger with the newest backup and flushes.
// When no backup holds data, [ErrNoBackup] is returned and nothing changes.
func (m *Manager) RestoreFromBackup(ctx context.Context) (int, error) {
	if m.state != StateActive {
		observe.Logger(ctx).Warn("restore without an active namespace; ignoring")
		return 0, ErrNoNamespace
	}
	restored, path := m.store.RestoreFromBackup(ctx, m.ns)
	if len(restored) == 0 {
		return 0, ErrNoBackup
	}
	m.ledger = restored
	m.dirty = true
	observe.Logger(ctx).Info("ledger restored from backup",
		"namespace", m.ns, "path", path, "records", len(restored))
	return len(restored), m.Flush(ctx)
}

// CreateBackup flushes pending changes and copies the namespace file into
// the backup directory.
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	if m.state != StateActive {
		observe.Logger(ctx).Warn("backup without an active namespace; ignoring")
		return "", ErrNoNamespace
	}
	if err := m.Flush(ctx); err != nil {
		m.metrics.RecordBackup(ctx, "manual", "error")
		return "", err
	}
	path, err := m.store.CreateBackup(ctx, m.ns)
	m.metrics.RecordBackup(ctx, "manual", observe.Status(err))
	return path, err
}

// SetDisplayMode switches the display mode and recomputes every display
// name. Switching to [trade.DisplayFirst] drops all but the first entry of
// each record. Changed records are flushed.
func (m *Manager) SetDisplayMode(ctx context.Context, mode trade.DisplayMode) error {
	mode = mode.OrDefault()
	if mode == m.mode {
		return nil
	}
	m.mode = mode
	changed := false
	for _, rec := range m.ledger {
		before := rec.DisplayName
		trimmed := mode == trade.DisplayFirst && rec.TrimToFirst()
		rec.UpdateDisplayName(mode)
		if trimmed || rec.DisplayName != before {
			changed = true
		}
	}
	observe.Logger(ctx).Info("display mode changed", "mode", mode, "names_changed", changed)
	if changed {
		m.dirty = true
		return m.Flush(ctx)
	}
	return nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Validate classifies the current ledger without modifying it.
func (m *Manager) Validate(ctx context.Context) trade.ValidationResult {
	res := m.ledger.Validate()
	if res.Kind == trade.ValidationPartial {
		observe.Logger(ctx).Warn("ledger has invalid records", "namespace", m.ns, "ids", m.ledger.InvalidIDs())
	}
	return res
}

// Get returns the record for id.
func (m *Manager) Get(id uuid.UUID) (*trade.Record, bool) {
	rec, ok := m.ledger[id]
	return rec, ok
}

// GetAll returns the live ledger. Callers must not modify it.
func (m *Manager) GetAll() trade.Ledger {
	return m.ledger
}

// Count returns the number of records.
func (m *Manager) Count() int { return len(m.ledger) }

// CurrentNamespace returns the active namespace, or "" when Idle.
func (m *Manager) CurrentNamespace() string { return m.ns }

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state }

// Dirty reports whether the ledger has changes not yet saved.
func (m *Manager) Dirty() bool { return m.dirty }

// Mode returns the active display mode.
func (m *Manager) Mode() trade.DisplayMode { return m.mode }

// ToggleDisplay flips label display and returns the new setting. The
// setting is not persisted.
func (m *Manager) ToggleDisplay() bool {
	m.display = !m.display
	return m.display
}

// SetDisplayEnabled sets label display.
func (m *Manager) SetDisplayEnabled(on bool) { m.display = on }

// DisplayEnabled reports whether labels are shown.
func (m *Manager) DisplayEnabled() bool { return m.display }

// Label returns the display name for id when display is enabled and the
// record has one.
func (m *Manager) Label(id uuid.UUID) (string, bool) {
	if !m.display {
		return "", false
	}
	rec, ok := m.ledger[id]
	if !ok || rec.DisplayName == "" {
		return "", false
	}
	return rec.DisplayName, true
}

// Snapshot is a point-in-time summary of a [Manager].
type Snapshot struct {
	State          State
	Namespace      string
	Records        int
	Dirty          bool
	DisplayEnabled bool
	Mode           trade.DisplayMode
}

// Snapshot returns the current summary.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		State:          m.state,
		Namespace:      m.ns,
		Records:        len(m.ledger),
		Dirty:          m.dirty,
		DisplayEnabled: m.display,
		Mode:           m.mode,
	}
}
