package storage

import (
	"regexp"
	"strings"
)

var (
	unsafeNamespaceChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

	// Suffixes after "<file>.backup_" and "<file>.tmp-". A sanitised
	// namespace may itself contain either infix, so a bare prefix match would
	// pick up files that belong to a longer namespace.
	backupSuffix = regexp.MustCompile(`^\d{8}_\d{6}(_[0-9A-Z]{26})?$`)
	tempSuffix   = regexp.MustCompile(`^\d+$`)
)

const (
	fileExt         = ".json"
	backupDirName   = "backups"
	backupInfix     = ".backup_"
	corruptedInfix  = ".corrupted_"
	tempInfix       = ".tmp-"
	backupTimestamp = "20060102_150405"
)

// SanitizeNamespace replaces every character outside [A-Za-z0-9._-] with an
// underscore. Distinct identifiers may collide after sanitisation.
func SanitizeNamespace(ns string) (string, error) {
	if ns == "" {
		return "", ErrEmptyNamespace
	}
	return unsafeNamespaceChars.ReplaceAllString(ns, "_"), nil
}

// FileName returns the data file name for ns.
func FileName(ns string) (string, error) {
	safe, err := SanitizeNamespace(ns)
	if err != nil {
		return "", err
	}
	return safe + fileExt, nil
}

// LocalNamespace returns the identifier used for a locally hosted world.
func LocalNamespace(levelName string) string {
	return "world_" + strings.TrimSpace(levelName)
}

// RemoteNamespace returns the identifier used for a remote server.
func RemoteNamespace(address string) string {
	return "server_" + strings.TrimSpace(address)
}

// isBackupOf reports whether name is a backup of the data file base.
func isBackupOf(name, base string) bool {
	rest, ok := strings.CutPrefix(name, base+backupInfix)
	return ok && backupSuffix.MatchString(rest)
}

// isTempOf reports whether name is a temp file created while saving base.
func isTempOf(name, base string) bool {
	rest, ok := strings.CutPrefix(name, base+tempInfix)
	return ok && tempSuffix.MatchString(rest)
}
