// Package bridge connects an external game client to the ledger.
//
// The [Actor] owns the *session.Manager and runs every operation on one
// goroutine, so the manager itself needs no locking. [Capture] is the Go
// entry point for capture and namespace events; [Server] exposes the same
// events over a websocket at [EventsPath].
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/tradeledger/internal/commands"
	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/session"
)

// ErrStopped is returned by [Actor.Do] once the actor has shut down.
var ErrStopped = errors.New("bridge: actor stopped")

// leaveTimeout bounds the final Leave performed when the actor stops.
const leaveTimeout = 10 * time.Second

// Op is an operation executed on the actor goroutine.
type Op func(ctx context.Context, mgr *session.Manager) error

type request struct {
	ctx  context.Context
	op   Op
	errc chan error
}

// Actor serialises all access to a *session.Manager.
type Actor struct {
	mgr  *session.Manager
	cmds *commands.Handler
	reqs chan request
	done chan struct{}
}

// NewActor returns an actor for mgr. Call [Actor.Run] to start it.
func NewActor(mgr *session.Manager) *Actor {
	return &Actor{
		mgr:  mgr,
		cmds: commands.NewHandler(mgr),
		reqs: make(chan request),
		done: make(chan struct{}),
	}
}

// Run processes operations until ctx is cancelled, then leaves the active
// namespace so its ledger is backed up and flushed. Run must be called at
// most once.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	log := observe.Logger(ctx)
	log.Info("ledger actor started")

	for {
		select {
		case req := <-a.reqs:
			req.errc <- req.op(req.ctx, a.mgr)
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
			ns := a.mgr.CurrentNamespace()
			if err := a.mgr.Leave(leaveCtx); err != nil {
				log.Error("leave on shutdown failed", "namespace", ns, "err", err)
			}
			cancel()
			log.Info("ledger actor stopped", "namespace", ns)
			return nil
		}
	}
}

// Do runs op on the actor goroutine and returns its error. If ctx ends
// while op is queued or running, Do returns ctx.Err(); a running op still
// completes.
func (a *Actor) Do(ctx context.Context, op Op) error {
	req := request{ctx: ctx, op: op, errc: make(chan error, 1)}
	select {
	case a.reqs <- req:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Command dispatches a maintenance command on the actor goroutine.
func (a *Actor) Command(ctx context.Context, name string, args []string) (commands.Result, error) {
	var res commands.Result
	err := a.Do(ctx, func(ctx context.Context, _ *session.Manager) error {
		r, err := a.cmds.Dispatch(ctx, name, args)
		res = r
		return err
	})
	if err != nil {
		return commands.Result{}, err
	}
	return res, nil
}

// Snapshot returns the manager summary.
func (a *Actor) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var s session.Snapshot
	err := a.Do(ctx, func(_ context.Context, mgr *session.Manager) error {
		s = mgr.Snapshot()
		return nil
	})
	if err != nil {
		return session.Snapshot{}, err
	}
	return s, nil
}

// Ping reports whether the actor is accepting operations.
func (a *Actor) Ping(ctx context.Context) error {
	return a.Do(ctx, func(context.Context, *session.Manager) error { return nil })
}

// Done is closed when Run has returned.
func (a *Actor) Done() <-chan struct{} { return a.done }
