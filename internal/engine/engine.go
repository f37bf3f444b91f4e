package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/remote"
)

const (
	// DefaultSyncInterval is the period of the safety-net sync timer.
	DefaultSyncInterval = 15 * time.Second

	// DefaultProbeInterval is the period of the health probe.
	DefaultProbeInterval = 10 * time.Second
)

// SnapshotStore persists the single snapshot envelope.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context) (*model.Envelope, error)
	WriteSnapshot(ctx context.Context, env model.Envelope) error
}

// Queue is the outbox as the engine uses it.
type Queue interface {
	Enqueue(ctx context.Context, in model.Intent) (model.Intent, error)
	ListAll(ctx context.Context) ([]model.Intent, error)
	DeleteByID(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Remote is the backend as the engine uses it.
type Remote interface {
	FetchSnapshot(ctx context.Context) (model.Envelope, error)
	Replay(ctx context.Context, in model.Intent) error
	Health(ctx context.Context) (remote.HealthResult, error)
}

// Trigger names why a full sync pass was requested.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerOnline  Trigger = "online"
	TriggerTimer   Trigger = "timer"
	TriggerManual  Trigger = "manual"
)

// Engine is the sync orchestrator.
//
// Thread-safety model:
//   - Run(): call from exactly one goroutine
//   - every other method: safe from any goroutine
type Engine struct {
	snapshots SnapshotStore
	queue     Queue
	remote    Remote
	catalog   *model.Catalog
	log       zerolog.Logger

	syncInterval  time.Duration
	probeInterval time.Duration

	state     stateCell
	online    atomic.Bool
	pending   atomic.Int64
	conflicts atomic.Int64

	mu          sync.Mutex // guards lastError and revalidate
	lastError   string
	revalidate  []func(context.Context)
	snapMu      sync.Mutex // serializes snapshot read-modify-write
	triggers    *eventQueue[Trigger]
	subscribers *hub
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "engine").Logger() }
}

// WithSyncInterval sets the timer period. Zero disables the timer.
func WithSyncInterval(d time.Duration) Option {
	return func(e *Engine) { e.syncInterval = d }
}

// WithProbeInterval sets the health probe period. Zero disables probing;
// connectivity is then driven only by SetOnline.
func WithProbeInterval(d time.Duration) Option {
	return func(e *Engine) { e.probeInterval = d }
}

// WithInitialOnline sets the connectivity assumed before the first probe.
// Default: true.
func WithInitialOnline(online bool) Option {
	return func(e *Engine) { e.online.Store(online) }
}

// New creates an engine.
func New(snapshots SnapshotStore, queue Queue, rc Remote, catalog *model.Catalog, opts ...Option) *Engine {
	e := &Engine{
		snapshots:     snapshots,
		queue:         queue,
		remote:        rc,
		catalog:       catalog,
		log:           zerolog.Nop(),
		syncInterval:  DefaultSyncInterval,
		probeInterval: DefaultProbeInterval,
		triggers:      newEventQueue[Trigger](1),
		subscribers:   newHub(),
	}
	e.online.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs the startup sequence and then serves sync triggers until
// ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().
		Dur("syncInterval", e.syncInterval).
		Dur("probeInterval", e.probeInterval).
		Msg("engine starting")

	if e.probeInterval > 0 {
		e.Probe(ctx)
	}
	e.Trigger(TriggerStartup)

	var syncC, probeC <-chan time.Time
	if e.syncInterval > 0 {
		t := time.NewTicker(e.syncInterval)
		defer t.Stop()
		syncC = t.C
	}
	if e.probeInterval > 0 {
		t := time.NewTicker(e.probeInterval)
		defer t.Stop()
		probeC = t.C
	}

	for {
		if trigger, ok := e.triggers.TryDequeue(); ok {
			e.handleTrigger(ctx, trigger)
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopping: context cancelled")
			e.triggers.Close()
			return ctx.Err()

		case <-syncC:
			e.Trigger(TriggerTimer)

		case <-probeC:
			e.Probe(ctx)

		case <-e.triggers.Wait():
			if e.triggers.Closed() && e.triggers.Len() == 0 {
				e.log.Info().Msg("engine stopping: stopped")
				return nil
			}
		}
	}
}

// Stop makes Run return.
func (e *Engine) Stop() {
	e.triggers.Close()
}

// Trigger requests a full sync pass from Run. Pending requests coalesce.
func (e *Engine) Trigger(t Trigger) {
	e.triggers.Enqueue(t)
}

func (e *Engine) handleTrigger(ctx context.Context, t Trigger) {
	err := e.FullSync(ctx)
	switch {
	case err == nil:
		e.log.Debug().Str("trigger", string(t)).Msg("sync pass finished")
	case errors.Is(err, ErrOffline), errors.Is(err, ErrReplayInProgress):
		e.log.Debug().Str("trigger", string(t)).Err(err).Msg("sync pass skipped")
	default:
		e.log.Warn().Str("trigger", string(t)).Err(err).Msg("sync pass failed")
	}
}

// Online reports the current connectivity.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// SetOnline records a connectivity change. Going from offline to online
// requests a full sync pass.
func (e *Engine) SetOnline(online bool) {
	prev := e.online.Swap(online)
	if prev == online {
		return
	}
	e.log.Info().Bool("online", online).Msg("connectivity changed")
	e.publishStatus()
	if online {
		e.Trigger(TriggerOnline)
	}
}

// Probe checks backend health and updates connectivity from the result.
// Any failure, including an unauthorized session, counts as offline.
func (e *Engine) Probe(ctx context.Context) bool {
	_, err := e.remote.Health(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("health probe failed")
	}
	e.SetOnline(err == nil)
	return err == nil
}

// Status returns the current status projection.
func (e *Engine) Status() Status {
	e.mu.Lock()
	lastError := e.lastError
	e.mu.Unlock()

	state := e.state.Load()
	online := e.Online()
	pending := int(e.pending.Load())
	conflicts := int(e.conflicts.Load())

	return Status{
		Online:    online,
		State:     state,
		Pending:   pending,
		LastError: lastError,
		Conflicts: conflicts,
		Text:      Describe(online, state == StateSyncing, pending, lastError, conflicts),
	}
}

// Subscribe registers for broadcast events. Close the subscription when done.
func (e *Engine) Subscribe() *Subscription {
	return e.subscribers.subscribe()
}

// OnRevalidate registers fn to run after every replay pass.
func (e *Engine) OnRevalidate(fn func(context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revalidate = append(e.revalidate, fn)
}

// Snapshot returns the stored mirror, or nil when none has been written.
func (e *Engine) Snapshot(ctx context.Context) (*model.Envelope, error) {
	env, err := e.snapshots.ReadSnapshot(ctx)
	if err != nil {
		return nil, newStorageError("read snapshot", err)
	}
	return env, nil
}

// Pending lists the outbox in replay order.
func (e *Engine) Pending(ctx context.Context) ([]model.Intent, error) {
	entries, err := e.queue.ListAll(ctx)
	if err != nil {
		return nil, newStorageError("list outbox", err)
	}
	return entries, nil
}

// RefreshPending re-reads the outbox size. A storage failure counts as zero.
func (e *Engine) RefreshPending(ctx context.Context) int {
	n, err := e.queue.Count(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("count outbox")
		n = 0
	}
	if int64(n) != e.pending.Swap(int64(n)) {
		e.publishStatus()
	}
	return n
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

func (e *Engine) publishStatus() {
	st := e.Status()
	e.subscribers.publish(Event{Kind: EventStatus, Status: &st})
}

func (e *Engine) publishSnapshot(hash string) {
	e.subscribers.publish(Event{Kind: EventSnapshot, Hash: hash})
}

func (e *Engine) notifyRevalidate(ctx context.Context) {
	e.mu.Lock()
	listeners := append([]func(context.Context){}, e.revalidate...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx)
	}
	e.subscribers.publish(Event{Kind: EventRevalidate})
}
