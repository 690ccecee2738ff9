package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// CreateBackup implements [Store].
func (s *FileStore) CreateBackup(ctx context.Context, ns string) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "storage.CreateBackup",
		trace.WithAttributes(attribute.String("namespace", ns)))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() { s.metrics.BackupDuration.Record(ctx, time.Since(start).Seconds()) }()

	path, err := s.Path(ns)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		observe.Logger(ctx).Warn("no data file to back up", "namespace", ns, "path", path)
		return "", ErrNoDataFile
	}
	if err != nil {
		return "", fmt.Errorf("storage: read %q for backup: %w", path, err)
	}

	if err = os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create backup dir: %w", err)
	}

	now := s.now()
	base := filepath.Base(path)
	dest := filepath.Join(s.backupDir, base+backupInfix+now.Format(backupTimestamp)+"_"+backupID(now))
	if err = s.writeAtomic(ctx, dest, "."+base+tempInfix+"*", data); err != nil {
		return "", fmt.Errorf("storage: write backup: %w", err)
	}
	observe.Logger(ctx).Info("backup created", "namespace", ns, "path", dest)

	s.pruneBackups(ctx, ns)
	return dest, nil
}

// RestoreFromBackup implements [Store]. Backups are tried newest first;
// one that cannot be read or parsed is skipped.
func (s *FileStore) RestoreFromBackup(ctx context.Context, ns string) (trade.Ledger, string) {
	ctx, span := observe.StartSpan(ctx, "storage.RestoreFromBackup",
		trace.WithAttributes(attribute.String("namespace", ns)))
	defer span.End()

	log := observe.Logger(ctx).With("namespace", ns)
	backups, err := s.Backups(ctx, ns)
	if err != nil {
		log.Warn("cannot list backups", "err", err)
	}
	_, mode := s.settings()

	for _, b := range backups {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			log.Warn("cannot read backup", "path", b.Path, "err", err)
			continue
		}
		dec, err := decodeLedger(data, mode)
		if err != nil {
			log.Warn("backup is unreadable; trying an older one", "path", b.Path, "err", err)
			continue
		}
		if dec.sanitized > 0 {
			s.metrics.SanitizedRecords.Add(ctx, int64(dec.sanitized))
		}
		if n := len(dec.dropped); n > 0 {
			s.metrics.DroppedEntries.Add(ctx, int64(n))
		}
		s.metrics.RecordRestore(ctx, "ok")
		log.Info("restored from backup", "path", b.Path, "records", len(dec.ledger))
		span.SetAttributes(attribute.String("backup", b.Name))
		return dec.ledger, b.Path
	}

	s.metrics.RecordRestore(ctx, "empty")
	log.Info("no usable backup found")
	return trade.Ledger{}, ""
}

// Backups implements [Store]. Order is newest modification time first,
// ties broken by descending name.
func (s *FileStore) Backups(_ context.Context, ns string) ([]BackupInfo, error) {
	name, err := FileName(ns)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list backups: %w", err)
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !isBackupOf(e.Name(), name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			Path:    filepath.Join(s.backupDir, e.Name()),
			Name:    e.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	slices.SortFunc(out, func(a, b BackupInfo) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(b.Name, a.Name)
	})
	return out, nil
}

// pruneBackups deletes every backup of ns beyond the newest maxBackups.
// Deletion failures are logged and otherwise ignored.
func (s *FileStore) pruneBackups(ctx context.Context, ns string) {
	keep, _ := s.settings()
	log := observe.Logger(ctx).With("namespace", ns)

	backups, err := s.Backups(ctx, ns)
	if err != nil {
		log.Warn("cannot list backups for retention", "err", err)
		return
	}
	if len(backups) <= keep {
		return
	}
	var pruned int64
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			log.Warn("failed to delete old backup", "path", b.Path, "err", err)
			continue
		}
		pruned++
		log.Debug("deleted old backup", "path", b.Path)
	}
	s.metrics.BackupsPruned.Add(ctx, pruned)
}
