package config

import (
	"slices"

	"github.com/MrWong99/tradeledger/internal/trade"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported with their new value; everything else
// only lands in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DisplayModeChanged bool
	NewDisplayMode     trade.DisplayMode

	MaxBackupsChanged bool
	NewMaxBackups     int

	DisplayEnabledChanged bool
	NewDisplayEnabled     bool

	// RestartRequired lists the YAML paths of changed fields that only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DisplayModeChanged && !d.MaxBackupsChanged &&
		!d.DisplayEnabledChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Ledger.DisplayMode.OrDefault() != new.Ledger.DisplayMode.OrDefault() {
		d.DisplayModeChanged = true
		d.NewDisplayMode = new.Ledger.DisplayMode.OrDefault()
	}
	if old.Storage.MaxBackups != new.Storage.MaxBackups {
		d.MaxBackupsChanged = true
		d.NewMaxBackups = new.Storage.MaxBackups
	}
	if old.Ledger.LabelsEnabled() != new.Ledger.LabelsEnabled() {
		d.DisplayEnabledChanged = true
		d.NewDisplayEnabled = new.Ledger.LabelsEnabled()
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.allowed_origins")
	}
	if old.Server.OTLPEndpoint != new.Server.OTLPEndpoint {
		d.RestartRequired = append(d.RestartRequired, "server.otlp_endpoint")
	}
	if old.Storage.DataDir != new.Storage.DataDir {
		d.RestartRequired = append(d.RestartRequired, "storage.data_dir")
	}

	return d
}
