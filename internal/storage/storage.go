// Package storage persists trade ledgers as one JSON file per namespace.
//
// Every write goes through a temp file in the destination directory followed
// by fsync and an atomic rename, so a reader never observes a half-written
// file. Backups are full copies kept under a backups/ subdirectory and
// rotated so that only the newest few survive. A namespace file that cannot
// be parsed is never deleted: it is renamed aside with a .corrupted_ suffix
// and the newest backup is loaded in its place.
//
// Directory layout for namespace "world_Survival":
//
//	<data>/world_Survival.json
//	<data>/world_Survival.json.corrupted_1712345678901
//	<data>/backups/world_Survival.json.backup_20240405_101112_01HTX...
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/tradeledger/internal/trade"
)

// ErrEmptyNamespace is returned when an operation is given an empty
// namespace identifier.
var ErrEmptyNamespace = errors.New("storage: empty namespace")

// ErrNoDataFile is returned by CreateBackup when the namespace has no data
// file to copy.
var ErrNoDataFile = errors.New("storage: no data file to back up")

// Store loads and saves namespace ledgers.
//
// The context is used for tracing and logging; file operations already in
// progress are not interrupted by cancellation.
type Store interface {
	// Load reads the ledger for ns. A missing file yields an empty ledger.
	// A corrupted file is quarantined and the newest backup loaded instead;
	// this is reported through [LoadResult.Recovered] rather than an error.
	// Only unexpected read failures are returned as errors.
	Load(ctx context.Context, ns string) (LoadResult, error)

	// Save atomically replaces the file for ns with ledger. On error the
	// previous file content is intact.
	Save(ctx context.Context, ns string, ledger trade.Ledger) error

	// CreateBackup copies the current file for ns into the backup directory
	// and prunes old backups. Returns [ErrNoDataFile] when there is nothing
	// to copy.
	CreateBackup(ctx context.Context, ns string) (string, error)

	// RestoreFromBackup returns the ledger stored in the newest parseable
	// backup for ns together with that backup's path. It never fails: when
	// no usable backup exists the ledger is empty and the path is "".
	RestoreFromBackup(ctx context.Context, ns string) (trade.Ledger, string)

	// Backups lists the backups for ns, newest first.
	Backups(ctx context.Context, ns string) ([]BackupInfo, error)
}

// LoadResult describes the outcome of [Store.Load].
type LoadResult struct {
	// Ledger is never nil.
	Ledger trade.Ledger

	// Sanitized counts records that were out of range and clamped.
	Sanitized int

	// Dropped counts entries discarded because their key was not a valid
	// entity identifier.
	Dropped int

	// Recovered is true when the namespace file was corrupted and has been
	// quarantined. Ledger then holds the content of Backup, or nothing.
	Recovered bool

	// Quarantined is the path the corrupted file was renamed to.
	Quarantined string

	// Backup is the path of the backup Ledger was restored from.
	Backup string
}

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}
