package bridge

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/session"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// Capture receives events from the game client and applies them to the
// ledger through an [Actor].
type Capture struct {
	actor   *Actor
	metrics *observe.Metrics
}

// NewCapture returns a Capture bound to actor. A nil metrics uses
// [observe.DefaultMetrics].
func NewCapture(actor *Actor, metrics *observe.Metrics) *Capture {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Capture{actor: actor, metrics: metrics}
}

// OnCapture stores the offers observed on an entity, replacing any earlier
// record for it. Missing tiers are computed from the attribute key and
// level. An empty entries list clears an existing record and is ignored for
// an unknown entity.
func (c *Capture) OnCapture(ctx context.Context, id uuid.UUID, role string, entries []trade.Entry) (err error) {
	ctx, span := observe.StartSpan(ctx, "bridge.OnCapture", trace.WithAttributes(
		attribute.String("entity_id", id.String()),
		attribute.Int("entries", len(entries)),
	))
	defer func() { observe.EndSpan(span, err) }()

	stored := false
	err = c.actor.Do(ctx, func(ctx context.Context, mgr *session.Manager) error {
		var err error
		stored, err = applyCapture(ctx, mgr, id, role, entries)
		return err
	})

	switch {
	case err != nil:
		c.metrics.RecordCapture(ctx, "error")
	case !stored:
		c.metrics.RecordCapture(ctx, "skipped")
	default:
		c.metrics.RecordCapture(ctx, "ok")
	}
	return err
}

func applyCapture(ctx context.Context, mgr *session.Manager, id uuid.UUID, role string, entries []trade.Entry) (bool, error) {
	if len(entries) == 0 {
		if _, ok := mgr.Get(id); !ok {
			return false, nil
		}
	}
	mode := mgr.Mode()
	rec := trade.NewRecord(id, role)
	for _, e := range entries {
		if e.Priority <= 0 {
			e.AssignPriority()
		}
		if e.Sanitize() {
			observe.Logger(ctx).Debug("captured entry clamped", "entity_id", id, "attribute", e.AttributeName)
		}
		rec.AddEntry(mode, e)
	}
	rec.UpdateDisplayName(mode)
	if err := mgr.Upsert(ctx, id, rec); err != nil {
		return false, err
	}
	return true, nil
}

// OnNamespaceJoinDetected switches the ledger to ns.
func (c *Capture) OnNamespaceJoinDetected(ctx context.Context, ns string) error {
	return c.actor.Do(ctx, func(ctx context.Context, mgr *session.Manager) error {
		return mgr.Join(ctx, ns)
	})
}

// OnNamespaceLeaveDetected leaves the active namespace.
func (c *Capture) OnNamespaceLeaveDetected(ctx context.Context) error {
	return c.actor.Do(ctx, func(ctx context.Context, mgr *session.Manager) error {
		return mgr.Leave(ctx)
	})
}

// Label returns the text to show above entity id. shown is false when
// label display is off or the entity has no record.
func (c *Capture) Label(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var (
		label string
		shown bool
	)
	err := c.actor.Do(ctx, func(_ context.Context, mgr *session.Manager) error {
		label, shown = mgr.Label(id)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return label, shown, nil
}
