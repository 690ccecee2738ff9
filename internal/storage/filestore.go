package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// DefaultMaxBackups is the number of backups kept per namespace.
const DefaultMaxBackups = 3

// Compile-time interface assertion.
var _ Store = (*FileStore)(nil)

// FileStore is the file-system [Store]. It is safe for concurrent use, but
// concurrent writers to the same namespace race at the rename and the last
// one wins.
type FileStore struct {
	dir       string
	backupDir string
	metrics   *observe.Metrics
	now       func() time.Time

	// rename is swapped in tests to simulate a failing rename.
	rename func(oldpath, newpath string) error

	mu         sync.RWMutex
	maxBackups int
	mode       trade.DisplayMode
}

// Option configures a [FileStore].
type Option func(*FileStore)

// WithMaxBackups sets how many backups are kept per namespace. Values below
// one are ignored.
func WithMaxBackups(n int) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// WithDisplayMode sets the mode used to recompute display names of records
// sanitised during load.
func WithDisplayMode(m trade.DisplayMode) Option {
	return func(s *FileStore) {
		s.mode = m.OrDefault()
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *FileStore) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for backup and quarantine names.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{
		dir:        dir,
		backupDir:  filepath.Join(dir, backupDirName),
		now:        time.Now,
		rename:     os.Rename,
		maxBackups: DefaultMaxBackups,
		mode:       trade.DisplayFirst,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

// SetMaxBackups changes the retention count for subsequent backups.
func (s *FileStore) SetMaxBackups(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.maxBackups = n
	s.mu.Unlock()
}

// SetDisplayMode changes the mode used when sanitising loaded records.
func (s *FileStore) SetDisplayMode(m trade.DisplayMode) {
	s.mu.Lock()
	s.mode = m.OrDefault()
	s.mu.Unlock()
}

func (s *FileStore) settings() (int, trade.DisplayMode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxBackups, s.mode
}

// Path returns the data file path for ns.
func (s *FileStore) Path(ns string) (string, error) {
	name, err := FileName(ns)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// ─── Load ────────────────────────────────────────────────────────────────────

// Load implements [Store].
func (s *FileStore) Load(ctx context.Context, ns string) (res LoadResult, err error) {
	ctx, span := observe.StartSpan(ctx, "storage.Load",
		trace.WithAttributes(attribute.String("namespace", ns)))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() { s.metrics.LoadDuration.Record(ctx, time.Since(start).Seconds()) }()

	res.Ledger = trade.Ledger{}
	path, err := s.Path(ns)
	if err != nil {
		return res, err
	}
	log := observe.Logger(ctx).With("namespace", ns, "path", path)

	s.removeStaleTemps(ctx, path)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("no data file; starting empty")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("storage: read %q: %w", path, err)
	}

	_, mode := s.settings()
	dec, derr := decodeLedger(data, mode)
	if derr != nil {
		log.Warn("data file is corrupted; attempting recovery", "err", derr)
		return s.recoverCorrupted(ctx, ns, path), nil
	}

	for _, key := range dec.dropped {
		log.Warn("dropping entry with invalid identifier", "key", key)
	}
	if n := len(dec.dropped); n > 0 {
		s.metrics.DroppedEntries.Add(ctx, int64(n))
	}
	if dec.sanitized > 0 {
		s.metrics.SanitizedRecords.Add(ctx, int64(dec.sanitized))
		log.Warn("sanitized out-of-range records", "count", dec.sanitized)
	}

	res.Ledger = dec.ledger
	res.Sanitized = dec.sanitized
	res.Dropped = len(dec.dropped)
	log.Info("ledger loaded", "records", len(res.Ledger))
	return res, nil
}

// recoverCorrupted renames the file at path aside and loads the newest
// backup. A failed rename is logged; the file then stays in place and is
// overwritten by the next save.
func (s *FileStore) recoverCorrupted(ctx context.Context, ns, path string) LoadResult {
	log := observe.Logger(ctx).With("namespace", ns)
	s.metrics.CorruptFiles.Add(ctx, 1)

	res := LoadResult{Recovered: true}
	quarantine := path + corruptedInfix + strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.rename(path, quarantine); err != nil {
		log.Error("failed to quarantine corrupted file", "path", path, "err", err)
	} else {
		res.Quarantined = quarantine
		log.Warn("corrupted file quarantined", "path", quarantine)
	}

	res.Ledger, res.Backup = s.RestoreFromBackup(ctx, ns)
	if res.Backup == "" {
		log.Warn("no usable backup; starting with an empty ledger")
	}
	return res
}

// removeStaleTemps deletes temp files left behind by an interrupted save.
func (s *FileStore) removeStaleTemps(ctx context.Context, path string) {
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return
	}
	base := filepath.Base(path)
	for _, e := range entries {
		if e.IsDir() || !isTempOf(e.Name(), base) {
			continue
		}
		p := filepath.Join(filepath.Dir(path), e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			observe.Logger(ctx).Warn("failed to remove stale temp file", "path", p, "err", err)
			continue
		}
		observe.Logger(ctx).Info("removed stale temp file", "path", p)
	}
}

// ─── Save ────────────────────────────────────────────────────────────────────

// Save implements [Store].
func (s *FileStore) Save(ctx context.Context, ns string, ledger trade.Ledger) (err error) {
	ctx, span := observe.StartSpan(ctx, "storage.Save",
		trace.WithAttributes(
			attribute.String("namespace", ns),
			attribute.Int("records", len(ledger)),
		))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		s.metrics.SaveDuration.Record(ctx, time.Since(start).Seconds())
		s.metrics.RecordSave(ctx, err)
	}()

	path, err := s.Path(ns)
	if err != nil {
		return err
	}
	data, err := encodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", ns, err)
	}
	if err = os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("storage: create data dir: %w", err)
	}
	if err = s.writeAtomic(ctx, path, filepath.Base(path)+tempInfix+"*", data); err != nil {
		return fmt.Errorf("storage: save %q: %w", ns, err)
	}
	observe.Logger(ctx).Debug("ledger saved", "namespace", ns, "records", len(ledger))
	return nil
}

// writeAtomic writes data to a temp file next to dest, syncs it, and renames
// it over dest. The temp file is removed on any failure.
func (s *FileStore) writeAtomic(ctx context.Context, dest, pattern string, data []byte) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = s.rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if serr := syncDir(dir); serr != nil {
		observe.Logger(ctx).Warn("directory sync failed", "dir", dir, "err", serr)
	}
	return nil
}

// syncDir fsyncs a directory so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
