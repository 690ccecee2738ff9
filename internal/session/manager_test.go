package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/session"
	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/storage/mock"
	"github.com/MrWong99/tradeledger/internal/trade"
)

var (
	idA = uuid.MustParse("0b7e2c4a-1111-4a4c-9a4c-000000000001")
	idB = uuid.MustParse("0b7e2c4a-1111-4a4c-9a4c-000000000002")

	ignoreVolatile = cmpopts.IgnoreFields(trade.Record{}, "LastUpdated", "Role")
)

func mendingRecord(id uuid.UUID, cost int) *trade.Record {
	rec := trade.NewRecord(id, "librarian")
	e := trade.Entry{AttributeKey: "minecraft:mending", AttributeName: "Mending", AttributeLevel: 1, Cost: cost}
	e.AssignPriority()
	rec.AddEntry(trade.DisplayFirst, e)
	rec.UpdateDisplayName(trade.DisplayFirst)
	return rec
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func newManager(t *testing.T, st storage.Store) *session.Manager {
	t.Helper()
	m, _ := newTestMetrics(t)
	return session.NewManager(session.Config{Store: st, Metrics: m})
}

func joined(t *testing.T, st storage.Store, ns string) *session.Manager {
	t.Helper()
	mgr := newManager(t, st)
	if err := mgr.Join(context.Background(), ns); err != nil {
		t.Fatalf("Join(%q): %v", ns, err)
	}
	return mgr
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestManager_StartsIdle(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, &mock.Store{})
	if mgr.State() != session.StateIdle {
		t.Errorf("State() = %v, want idle", mgr.State())
	}
	if mgr.CurrentNamespace() != "" || mgr.Count() != 0 || mgr.Dirty() {
		t.Errorf("fresh manager not empty: %+v", mgr.Snapshot())
	}
	if !mgr.DisplayEnabled() {
		t.Error("display should be enabled by default")
	}
}

func TestManager_JoinEmptyNamespace(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := newManager(t, st)
	if err := mgr.Join(context.Background(), ""); !errors.Is(err, session.ErrNoNamespace) {
		t.Fatalf("Join(\"\") error = %v, want ErrNoNamespace", err)
	}
	if mgr.State() != session.StateIdle || len(st.LoadCalls) != 0 {
		t.Errorf("Join(\"\") changed state: %v, loads=%d", mgr.State(), len(st.LoadCalls))
	}
}

func TestManager_JoinLoadsLedger(t *testing.T) {
	t.Parallel()

	st := &mock.Store{Saved: map[string]trade.Ledger{
		"world_A": {idA: mendingRecord(idA, 12)},
	}}
	mgr := joined(t, st, "world_A")

	if mgr.State() != session.StateActive {
		t.Errorf("State() = %v, want active", mgr.State())
	}
	if mgr.CurrentNamespace() != "world_A" {
		t.Errorf("CurrentNamespace() = %q, want world_A", mgr.CurrentNamespace())
	}
	rec, ok := mgr.Get(idA)
	if !ok || rec.DisplayName != "[12]Mending" {
		t.Errorf("Get(idA) = %+v, %v", rec, ok)
	}
	if mgr.Dirty() {
		t.Error("freshly loaded ledger should not be dirty")
	}
	if st.SaveCount() != 0 {
		t.Errorf("Join saved %d times, want 0", st.SaveCount())
	}
}

func TestManager_JoinLoadErrorKeepsPreviousState(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	if err := mgr.Upsert(context.Background(), idA, mendingRecord(idA, 5)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	st.LoadError = errors.New("permission denied")
	if err := mgr.Join(context.Background(), "world_B"); err == nil {
		t.Fatal("Join should fail when Load fails")
	}
	if mgr.State() != session.StateActive || mgr.CurrentNamespace() != "world_A" {
		t.Errorf("after failed switch: state=%v ns=%q, want active world_A", mgr.State(), mgr.CurrentNamespace())
	}
	if mgr.Count() != 1 {
		t.Errorf("Count() = %d, want 1", mgr.Count())
	}
}

func TestManager_JoinRecoveredLedgerIsPersisted(t *testing.T) {
	t.Parallel()

	st := &mock.Store{LoadResults: map[string]storage.LoadResult{
		"world_A": {Ledger: trade.Ledger{idA: mendingRecord(idA, 9)}, Recovered: true, Backup: "b1"},
	}}
	mgr := joined(t, st, "world_A")

	call, ok := st.LastSave()
	if !ok || call.Namespace != "world_A" || len(call.Ledger) != 1 {
		t.Fatalf("recovered ledger not saved: %+v, %v", call, ok)
	}
	if mgr.Dirty() {
		t.Error("manager dirty after persisting recovered ledger")
	}
}

func TestManager_SwitchFlushesDirtyLedger(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")

	// A failed save leaves the change dirty in memory.
	st.SaveError = errors.New("disk full")
	if err := mgr.Upsert(context.Background(), idA, mendingRecord(idA, 5)); err == nil {
		t.Fatal("Upsert should surface the save error")
	}
	if !mgr.Dirty() {
		t.Fatal("manager should stay dirty after a failed save")
	}
	st.SaveError = nil

	if err := mgr.Join(context.Background(), "world_B"); err != nil {
		t.Fatalf("Join(world_B): %v", err)
	}
	if got := st.Saved["world_A"]; len(got) != 1 {
		t.Errorf("world_A not flushed before switch: %v", got)
	}
	if mgr.CurrentNamespace() != "world_B" || mgr.Count() != 0 {
		t.Errorf("after switch: ns=%q count=%d", mgr.CurrentNamespace(), mgr.Count())
	}
	if len(st.BackupCalls) != 0 {
		t.Errorf("switch created %d backups, want 0", len(st.BackupCalls))
	}
}

func TestManager_LeaveBacksUpAndResets(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	if err := mgr.Upsert(context.Background(), idA, mendingRecord(idA, 5)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := mgr.Leave(context.Background()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if diff := cmp.Diff([]string{"world_A"}, st.BackupCalls); diff != "" {
		t.Errorf("BackupCalls mismatch (-want +got):\n%s", diff)
	}
	if mgr.State() != session.StateIdle || mgr.CurrentNamespace() != "" || mgr.Count() != 0 {
		t.Errorf("after Leave: %+v", mgr.Snapshot())
	}
}

func TestManager_LeaveEmptyLedgerSkipsBackup(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	if err := mgr.Leave(context.Background()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if len(st.BackupCalls) != 0 {
		t.Errorf("BackupCalls = %v, want none", st.BackupCalls)
	}
	// Leaving twice is harmless.
	if err := mgr.Leave(context.Background()); err != nil {
		t.Errorf("second Leave: %v", err)
	}
}

func TestManager_LeaveReportsBackupErrorButResets(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	if err := mgr.Upsert(context.Background(), idA, mendingRecord(idA, 5)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	boom := errors.New("backup dir read-only")
	st.BackupError = boom

	if err := mgr.Leave(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Leave error = %v, want %v", err, boom)
	}
	if mgr.State() != session.StateIdle {
		t.Errorf("State() = %v, want idle", mgr.State())
	}
}

func TestManager_ActiveNamespacesGauge(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestMetrics(t)
	mgr := session.NewManager(session.Config{Store: &mock.Store{}, Metrics: metrics})
	ctx := context.Background()

	_ = mgr.Join(ctx, "world_A")
	_ = mgr.Join(ctx, "world_B")
	if got := gaugeValue(t, reader, "tradeledger.ledger.active_namespaces"); got != 1 {
		t.Errorf("active_namespaces after switch = %d, want 1", got)
	}
	_ = mgr.Leave(ctx)
	if got := gaugeValue(t, reader, "tradeledger.ledger.active_namespaces"); got != 0 {
		t.Errorf("active_namespaces after leave = %d, want 0", got)
	}
}

func gaugeValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s has data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// ─── Mutations ───────────────────────────────────────────────────────────────

func TestManager_MutationsWithoutNamespace(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := newManager(t, st)
	ctx := context.Background()

	if err := mgr.Upsert(ctx, idA, mendingRecord(idA, 1)); !errors.Is(err, session.ErrNoNamespace) {
		t.Errorf("Upsert error = %v, want ErrNoNamespace", err)
	}
	if _, err := mgr.Remove(ctx, idA); !errors.Is(err, session.ErrNoNamespace) {
		t.Errorf("Remove error = %v, want ErrNoNamespace", err)
	}
	if err := mgr.ClearAll(ctx); !errors.Is(err, session.ErrNoNamespace) {
		t.Errorf("ClearAll error = %v, want ErrNoNamespace", err)
	}
	if _, err := mgr.CreateBackup(ctx); !errors.Is(err, session.ErrNoNamespace) {
		t.Errorf("CreateBackup error = %v, want ErrNoNamespace", err)
	}
	if _, err := mgr.RestoreFromBackup(ctx); !errors.Is(err, session.ErrNoNamespace) {
		t.Errorf("RestoreFromBackup error = %v, want ErrNoNamespace", err)
	}
	if err := mgr.Flush(ctx); err != nil {
		t.Errorf("Flush while idle = %v, want nil", err)
	}
	if st.SaveCount() != 0 {
		t.Errorf("idle manager saved %d times", st.SaveCount())
	}
}

func TestManager_UpsertWritesThrough(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	ctx := context.Background()

	if err := mgr.Upsert(ctx, idA, mendingRecord(idA, 12)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if st.SaveCount() != 1 {
		t.Fatalf("SaveCount() = %d, want 1", st.SaveCount())
	}
	if mgr.Dirty() {
		t.Error("manager dirty after successful write-through")
	}

	want := trade.Ledger{idA: mendingRecord(idA, 12)}
	call, _ := st.LastSave()
	if diff := cmp.Diff(want, call.Ledger, ignoreVolatile); diff != "" {
		t.Errorf("saved ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_UpsertSetsEntityID(t *testing.T) {
	t.Parallel()

	mgr := joined(t, &mock.Store{}, "world_A")
	rec := mendingRecord(idB, 3)
	if err := mgr.Upsert(context.Background(), idA, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, _ := mgr.Get(idA)
	if got.EntityID != idA {
		t.Errorf("EntityID = %s, want %s", got.EntityID, idA)
	}
}

func TestManager_RemoveLastRecordIsNotPersisted(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	ctx := context.Background()
	_ = mgr.Upsert(ctx, idA, mendingRecord(idA, 12))

	removed, err := mgr.Remove(ctx, idA)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v; want true, nil", removed, err)
	}
	if st.SaveCount() != 1 {
		t.Errorf("SaveCount() = %d, want 1 (empty ledger must not be flushed)", st.SaveCount())
	}
	if !mgr.Dirty() {
		t.Error("empty-but-dirty ledger should remain dirty")
	}

	removed, err = mgr.Remove(ctx, idB)
	if err != nil || removed {
		t.Errorf("Remove(unknown) = %v, %v; want false, nil", removed, err)
	}
}

func TestManager_RemoveFlushesRemaining(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	ctx := context.Background()
	_ = mgr.Upsert(ctx, idA, mendingRecord(idA, 12))
	_ = mgr.Upsert(ctx, idB, mendingRecord(idB, 20))

	if _, err := mgr.Remove(ctx, idA); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	call, _ := st.LastSave()
	if _, ok := call.Ledger[idA]; ok || len(call.Ledger) != 1 {
		t.Errorf("last save = %v, want only idB", call.Ledger.IDs())
	}
}

func TestManager_ClearAllPersistsEmptyLedger(t *testing.T) {
	t.Parallel()

	st := &mock.Store{}
	mgr := joined(t, st, "world_A")
	ctx := context.Background()
	_ = mgr.Upsert(ctx, idA, mendingRecord(idA, 12))

	if err := mgr.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	call, _ := st.LastSave()
	if len(call.Ledger) != 0 {
		t.Errorf("ClearAll saved %d records, want 0", len(call.Ledger))
	}
	if mgr.Count() != 0 || mgr.Dirty() {
		t.Errorf("after ClearAll: %+v", mgr.Snapshot())
	}

	// Clearing an already empty ledger still writes.
	before := st.SaveCount()
	if err := mgr.ClearAll(ctx); err != nil {
		t.Fatalf("second ClearAll: %v", err)
	}
	if st.SaveCount() != before+1 {
		t.Errorf("second ClearAll did not save")
	}
}

func TestManager_FlushNoopWhenClean(t *testing.T) {
	t.Parallel()

	st := &mock.Store{Saved: map[string]trade.Ledger{"world_A": {idA: mendingRecord(idA, 1)}}}
	mgr := joined(t, st, "world_A")
	if err := mgr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st.SaveCount() != 0 {
		t.Errorf("clean Flush saved %d times", st.SaveCount())
	}
}

func TestManager_RestoreFromBackup(t *testing.T) {
	t.Parallel()

	t.Run("replaces ledger", func(t *testing.T) {
		t.Parallel()
		st := &mock.Store{
			RestoreLedger: trade.Ledger{idA: mendingRecord(idA, 7), idB: mendingRecord(idB, 8)},
			RestorePath:   "backups/world_A.json.backup_x",
		}
		mgr := joined(t, st, "world_A")
		n, err := mgr.RestoreFromBackup(context.Background())
		if err != nil || n != 2 {
			t.Fatalf("RestoreFromBackup = %d, %v; want 2, nil", n, err)
		}
		if mgr.Count() != 2 || mgr.Dirty() {
			t.Errorf("after restore: %+v", mgr.Snapshot())
		}
		if call, _ := st.LastSave(); len(call.Ledger) != 2 {
			t.Errorf("restored ledger not flushed")
		}
	})

	t.Run("no backup leaves ledger untouched", func(t *testing.T) {
		t.Parallel()
		st := &mock.Store{}
		mgr := joined(t, st, "world_A")
		_ = mgr.Upsert(context.Background(), idA, mendingRecord(idA, 7))

		n, err := mgr.RestoreFromBackup(context.Background())
		if !errors.Is(err, session.ErrNoBackup) || n != 0 {
			t.Fatalf("RestoreFromBackup = %d, %v; want 0, ErrNoBackup", n, err)
		}
		if mgr.Count() != 1 {
			t.Errorf("Count() = %d, want 1", mgr.Count())
		}
	})
}

func TestManager_CreateBackup(t *testing.T) {
	t.Parallel()

	st := &mock.Store{BackupPath: "backups/world_A.json.backup_1"}
	mgr := joined(t, st, "world_A")
	path, err := mgr.CreateBackup(context.Background())
	if err != nil || path != st.BackupPath {
		t.Errorf("CreateBackup = %q, %v", path, err)
	}

	st.BackupError = storage.ErrNoDataFile
	if _, err := mgr.CreateBackup(context.Background()); !errors.Is(err, storage.ErrNoDataFile) {
		t.Errorf("CreateBackup error = %v, want ErrNoDataFile", err)
	}
}

func TestManager_SetDisplayModeRecomputesNames(t *testing.T) {
	t.Parallel()

	rec := trade.NewRecord(idA, "librarian")
	low := trade.Entry{AttributeKey: "minecraft:bane_of_arthropods", AttributeName: "Bane of Arthropods", AttributeLevel: 2, Cost: 10}
	top := trade.Entry{AttributeKey: "minecraft:mending", AttributeName: "Mending", AttributeLevel: 1, Cost: 20}
	low.AssignPriority()
	top.AssignPriority()
	rec.AddEntry(trade.DisplayBest, low)
	rec.AddEntry(trade.DisplayBest, top)
	rec.UpdateDisplayName(trade.DisplayFirst)

	st := &mock.Store{Saved: map[string]trade.Ledger{"world_A": {idA: rec}}}
	mgr := joined(t, st, "world_A")

	if err := mgr.SetDisplayMode(context.Background(), trade.DisplayBest); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	got, _ := mgr.Get(idA)
	if got.DisplayName != "[20]Mending" {
		t.Errorf("DisplayName = %q, want [20]Mending", got.DisplayName)
	}
	if st.SaveCount() != 1 {
		t.Errorf("SaveCount() = %d, want 1", st.SaveCount())
	}
}

func TestManager_SetDisplayModeFirstTrimsEntries(t *testing.T) {
	t.Parallel()

	rec := trade.NewRecord(idA, "librarian")
	low := trade.Entry{AttributeKey: "minecraft:bane_of_arthropods", AttributeName: "Bane of Arthropods", AttributeLevel: 2, Cost: 10}
	top := trade.Entry{AttributeKey: "minecraft:mending", AttributeName: "Mending", AttributeLevel: 1, Cost: 20}
	low.AssignPriority()
	top.AssignPriority()
	rec.AddEntry(trade.DisplayBest, low)
	rec.AddEntry(trade.DisplayBest, top)
	rec.UpdateDisplayName(trade.DisplayBest)

	st := &mock.Store{Saved: map[string]trade.Ledger{"world_A": {idA: rec}}}
	m, _ := newTestMetrics(t)
	mgr := session.NewManager(session.Config{Store: st, Metrics: m, Mode: trade.DisplayBest})
	if err := mgr.Join(context.Background(), "world_A"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := mgr.SetDisplayMode(context.Background(), trade.DisplayFirst); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	got, _ := mgr.Get(idA)
	if len(got.Entries) != 1 || got.Entries[0].AttributeName != "Bane of Arthropods" {
		t.Errorf("Entries = %+v, want only the first captured entry", got.Entries)
	}
	if got.DisplayName != "[10]Bane of Arthropods II" {
		t.Errorf("DisplayName = %q, want [10]Bane of Arthropods II", got.DisplayName)
	}
	if call, ok := st.LastSave(); !ok || len(call.Ledger[idA].Entries) != 1 {
		t.Errorf("trimmed record not flushed")
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────────

func TestManager_ValidateDoesNotModify(t *testing.T) {
	t.Parallel()

	bad := mendingRecord(idA, 12)
	bad.Entries[0].Cost = 200
	st := &mock.Store{Saved: map[string]trade.Ledger{"world_A": {idA: bad, idB: mendingRecord(idB, 3)}}}
	mgr := joined(t, st, "world_A")

	res := mgr.Validate(context.Background())
	if res.Kind != trade.ValidationPartial || res.Invalid != 1 || res.Total != 2 {
		t.Errorf("Validate() = %+v", res)
	}
	if got, _ := mgr.Get(idA); got.Entries[0].Cost != 200 {
		t.Errorf("Validate modified the ledger: cost = %d", got.Entries[0].Cost)
	}
}

func TestManager_ToggleAndLabel(t *testing.T) {
	t.Parallel()

	mgr := joined(t, &mock.Store{}, "world_A")
	_ = mgr.Upsert(context.Background(), idA, mendingRecord(idA, 12))

	if got, ok := mgr.Label(idA); !ok || got != "[12]Mending" {
		t.Errorf("Label = %q, %v", got, ok)
	}
	if mgr.ToggleDisplay() {
		t.Fatal("ToggleDisplay() = true, want false")
	}
	if _, ok := mgr.Label(idA); ok {
		t.Error("Label shown while display is disabled")
	}
	if !mgr.ToggleDisplay() {
		t.Error("second ToggleDisplay() = false, want true")
	}
	if _, ok := mgr.Label(idB); ok {
		t.Error("Label for unknown entity should not be shown")
	}
}

func TestManager_Find(t *testing.T) {
	t.Parallel()

	sharp := trade.NewRecord(idB, "librarian")
	e := trade.Entry{AttributeKey: "minecraft:sharpness", AttributeName: "Sharpness", AttributeLevel: 5, Cost: 30}
	e.AssignPriority()
	sharp.AddEntry(trade.DisplayFirst, e)
	sharp.UpdateDisplayName(trade.DisplayFirst)

	st := &mock.Store{Saved: map[string]trade.Ledger{"world_A": {idA: mendingRecord(idA, 12), idB: sharp}}}
	mgr := joined(t, st, "world_A")

	got := mgr.Find("mendng")
	if len(got) != 1 || got[0].EntityID != idA {
		t.Fatalf("Find(mendng) = %+v, want one match for idA", got)
	}
	if len(mgr.Find("zzzz")) != 0 {
		t.Error("Find(zzzz) should return nothing")
	}
}

// ─── File-backed ─────────────────────────────────────────────────────────────

func TestManager_FileStoreNamespaceIsolation(t *testing.T) {
	t.Parallel()

	metrics, _ := newTestMetrics(t)
	st := storage.NewFileStore(t.TempDir(), storage.WithMetrics(metrics))
	mgr := session.NewManager(session.Config{Store: st, Metrics: metrics})
	ctx := context.Background()

	if err := mgr.Join(ctx, "world_A"); err != nil {
		t.Fatalf("Join A: %v", err)
	}
	_ = mgr.Upsert(ctx, idA, mendingRecord(idA, 12))
	if err := mgr.Join(ctx, "world_B"); err != nil {
		t.Fatalf("Join B: %v", err)
	}
	_ = mgr.Upsert(ctx, idB, mendingRecord(idB, 30))
	if _, ok := mgr.Get(idA); ok {
		t.Error("record from world_A visible in world_B")
	}
	if err := mgr.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	if err := mgr.Join(ctx, "world_A"); err != nil {
		t.Fatalf("rejoin A: %v", err)
	}
	want := trade.Ledger{idA: mendingRecord(idA, 12)}
	if diff := cmp.Diff(want, mgr.GetAll(), ignoreVolatile); diff != "" {
		t.Errorf("world_A after rejoin (-want +got):\n%s", diff)
	}

	backups, err := st.Backups(ctx, "world_B")
	if err != nil || len(backups) != 1 {
		t.Errorf("world_B backups = %d, %v; want 1 from Leave", len(backups), err)
	}
}
