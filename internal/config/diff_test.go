package config_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tradeledger/internal/config"
	"github.com/MrWong99/tradeledger/internal/trade"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(config.Default(), config.Default())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	old := config.Default()
	updated := config.Default()
	updated.Server.LogLevel = config.LogDebug
	updated.Ledger.DisplayMode = trade.DisplayBest
	updated.Storage.MaxBackups = 10
	off := false
	updated.Ledger.DisplayEnabled = &off

	want := config.ConfigDiff{
		LogLevelChanged:       true,
		NewLogLevel:           config.LogDebug,
		DisplayModeChanged:    true,
		NewDisplayMode:        trade.DisplayBest,
		MaxBackupsChanged:     true,
		NewMaxBackups:         10,
		DisplayEnabledChanged: true,
		NewDisplayEnabled:     false,
	}
	if diff := cmp.Diff(want, config.Diff(old, updated)); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_EmptyDisplayModeEqualsFirst(t *testing.T) {
	t.Parallel()

	old := config.Default()
	updated := config.Default()
	updated.Ledger.DisplayMode = ""
	if d := config.Diff(old, updated); d.DisplayModeChanged {
		t.Error("empty display mode should equal the default")
	}
}

func TestDiff_NilDisplayEnabledMeansOn(t *testing.T) {
	t.Parallel()

	old := config.Default()
	updated := config.Default()
	updated.Ledger.DisplayEnabled = nil
	if d := config.Diff(old, updated); d.DisplayEnabledChanged {
		t.Error("nil display_enabled should equal true")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old := config.Default()
	updated := config.Default()
	updated.Server.ListenAddr = ":9999"
	updated.Server.AllowedOrigins = []string{"example.com"}
	updated.Server.OTLPEndpoint = "http://collector:4318"
	updated.Storage.DataDir = "/elsewhere"

	d := config.Diff(old, updated)
	want := []string{"server.listen_addr", "server.allowed_origins", "server.otlp_endpoint", "storage.data_dir"}
	if diff := cmp.Diff(want, d.RestartRequired); diff != "" {
		t.Errorf("RestartRequired mismatch (-want +got):\n%s", diff)
	}
	if d.LogLevelChanged || d.MaxBackupsChanged {
		t.Errorf("unexpected hot-reload changes: %+v", d)
	}
}
