package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/mirror"
	"github.com/roach88/folio/internal/model"
)

// FullSync runs one sync pass: replay when the outbox has entries,
// otherwise refresh the mirror directly.
func (e *Engine) FullSync(ctx context.Context) error {
	pending := e.RefreshPending(ctx)
	if !e.Online() {
		return ErrOffline
	}
	if pending > 0 {
		return e.TryReplay(ctx)
	}
	return e.RefreshMirror(ctx, []model.Intent{})
}

// TryReplay replays the outbox in FIFO order.
//
// The first failing intent stops the pass: it and every later intent stay
// queued and the state becomes SyncError. Intents replayed before it are
// deleted. After the loop the mirror is refreshed against what is still
// pending and revalidation listeners run.
//
// Returns ErrReplayInProgress without doing anything when a replay is
// already running.
func (e *Engine) TryReplay(ctx context.Context) error {
	if !e.state.begin() {
		return ErrReplayInProgress
	}
	e.setLastError("")
	e.publishStatus()

	err := e.replay(ctx)
	if err != nil {
		e.setLastError(SyncPausedText)
		e.state.Store(StateSyncError)
		e.RefreshPending(ctx)
		e.log.Warn().Err(err).Msg("replay paused")
	} else {
		e.state.Store(StateIdle)
	}
	e.publishStatus()
	return err
}

func (e *Engine) replay(ctx context.Context) error {
	entries, err := e.queue.ListAll(ctx)
	if err != nil {
		return newStorageError("list outbox", err)
	}

	for _, in := range entries {
		if err := e.remote.Replay(ctx, in); err != nil {
			return newReplayError(in.ID, err)
		}
		if err := e.queue.DeleteByID(ctx, in.ID); err != nil {
			return newStorageError(fmt.Sprintf("delete intent %d", in.ID), err)
		}
		e.log.Info().
			Int64("intent", in.ID).
			Str("url", in.URL).
			Msg("intent replayed")
	}

	e.RefreshPending(ctx)
	remaining, err := e.queue.ListAll(ctx)
	if err != nil {
		return newStorageError("list outbox", err)
	}
	if err := e.RefreshMirror(ctx, remaining); err != nil {
		return err
	}
	e.notifyRevalidate(ctx)
	return nil
}

// RefreshMirror fetches the server snapshot, merges it with the stored
// mirror while keeping the effect of pending intents, persists the result,
// broadcasts it and recounts conflicts.
func (e *Engine) RefreshMirror(ctx context.Context, pending []model.Intent) error {
	remoteEnv, err := e.remote.FetchSnapshot(ctx)
	if err != nil {
		return newRefreshError(err)
	}
	if n := mirror.ServerNegativeIDs(remoteEnv.Snapshot); n > 0 {
		e.log.Warn().Int("records", n).Msg("server snapshot contains negative ids; they collide with temporary local ids")
	}

	e.snapMu.Lock()
	env, err := e.mergeAndStore(ctx, remoteEnv.Snapshot, pending)
	e.snapMu.Unlock()
	if err != nil {
		return err
	}

	conflicts := mirror.DetectConflicts(remoteEnv.Snapshot, pending)
	e.conflicts.Store(int64(conflicts))

	e.log.Debug().
		Str("hash", env.Hash).
		Int("pending", len(pending)).
		Int("conflicts", conflicts).
		Msg("mirror refreshed")
	e.publishSnapshot(env.Hash)
	e.publishStatus()
	return nil
}

// mergeAndStore must be called with snapMu held.
func (e *Engine) mergeAndStore(ctx context.Context, remote model.Snapshot, pending []model.Intent) (model.Envelope, error) {
	local, err := e.snapshots.ReadSnapshot(ctx)
	if err != nil {
		return model.Envelope{}, newStorageError("read snapshot", err)
	}
	var localSnap *model.Snapshot
	if local != nil {
		localSnap = &local.Snapshot
	}

	env, err := codec.Seal(mirror.Merge(remote, localSnap, pending))
	if err != nil {
		return model.Envelope{}, newRefreshError(err)
	}
	if err := e.snapshots.WriteSnapshot(ctx, env); err != nil {
		return model.Envelope{}, newStorageError("write snapshot", err)
	}
	return env, nil
}

// Submission is a form post addressed to the backend.
type Submission struct {
	Action   string
	PagePath string
	Fields   []model.Field
}

// ShouldIntercept reports whether a submission to action would be captured
// right now: the form is local-first and the backend is unreachable.
func (e *Engine) ShouldIntercept(action string) bool {
	return !e.Online() && e.catalog.LocalFirst(action)
}

// Intercept captures a submission while offline.
//
// The submission is validated against its form, enqueued, applied to the
// mirror and broadcast. When the mirror cannot be updated the intent stays
// queued and is still returned. Returns ErrNotIntercepted when the
// submission should go to the backend instead, or a
// *compiler.ValidationError when the fields are rejected.
func (e *Engine) Intercept(ctx context.Context, sub Submission) (model.Intent, error) {
	if !e.ShouldIntercept(sub.Action) {
		return model.Intent{}, ErrNotIntercepted
	}
	spec, _ := e.catalog.Lookup(sub.Action)
	if err := compiler.ValidateSubmission(spec, sub.Fields); err != nil {
		return model.Intent{}, err
	}

	in := model.Intent{
		URL:      sub.Action,
		PagePath: sub.PagePath,
		Meta:     spec.Meta(),
		Fields:   sub.Fields,
	}
	if id, ok := in.TargetID(); ok {
		in.Meta.TargetID = model.Int64Ptr(id)
	}

	queued, err := e.queue.Enqueue(ctx, in)
	if err != nil {
		return model.Intent{}, newStorageError("enqueue intent", err)
	}
	e.log.Info().
		Int64("intent", queued.ID).
		Str("form", spec.Name).
		Msg("submission queued")

	if err := e.applyOptimistic(ctx, queued); err != nil {
		e.log.Warn().Err(err).Int64("intent", queued.ID).Msg("optimistic update skipped")
	}

	e.RefreshPending(ctx)
	if e.state.clearError() {
		e.setLastError("")
	}
	e.publishStatus()
	return queued, nil
}

func (e *Engine) applyOptimistic(ctx context.Context, in model.Intent) error {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	current, err := e.snapshots.ReadSnapshot(ctx)
	if err != nil {
		return newStorageError("read snapshot", err)
	}
	base := model.EmptySnapshot()
	if current != nil {
		base = current.Snapshot
	}

	env, err := codec.Seal(mirror.Apply(base, in))
	if err != nil {
		return fmt.Errorf("seal snapshot: %w", err)
	}
	if err := e.snapshots.WriteSnapshot(ctx, env); err != nil {
		return newStorageError("write snapshot", err)
	}
	e.publishSnapshot(env.Hash)
	return nil
}

// IsPassThrough reports whether err means the submission belongs to the
// backend.
func IsPassThrough(err error) bool {
	return errors.Is(err, ErrNotIntercepted)
}
