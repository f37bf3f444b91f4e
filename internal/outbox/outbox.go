// Package outbox is the durable queue of captured form submissions.
//
// The outbox sits on top of the store and fills in what a caller may leave
// out: the HTTP method, the creation time and the idempotency key. It also
// converts between HTTP form payloads and the field lists stored with each
// intent, so a replayed submission carries the same fields as the original.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/folio/internal/model"
)

// ErrInvalidIntent is returned for intents that cannot be replayed.
var ErrInvalidIntent = errors.New("invalid intent")

// Store is the persistence the outbox needs.
type Store interface {
	Enqueue(ctx context.Context, in model.Intent) (int64, error)
	ListOutbox(ctx context.Context) ([]model.Intent, error)
	GetOutbox(ctx context.Context, id int64) (model.Intent, error)
	DeleteOutbox(ctx context.Context, id int64) error
	CountOutbox(ctx context.Context) (int, error)
}

// Outbox queues intents in FIFO order.
type Outbox struct {
	store Store
	clock Clock
	keys  KeyGenerator
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithClock sets the clock used to stamp intents. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(o *Outbox) { o.clock = c }
}

// WithKeyGenerator sets the idempotency key source. Default: UUIDv7Generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(o *Outbox) { o.keys = g }
}

// New creates an outbox over the given store.
func New(store Store, opts ...Option) *Outbox {
	o := &Outbox{
		store: store,
		clock: SystemClock{},
		keys:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare fills in the defaults Enqueue would assign, without persisting.
// The returned intent has ID 0.
func (o *Outbox) Prepare(in model.Intent) (model.Intent, error) {
	if in.URL == "" {
		return model.Intent{}, fmt.Errorf("%w: empty url", ErrInvalidIntent)
	}
	if in.Method == "" {
		in.Method = http.MethodPost
	}
	if in.CreatedAt == 0 {
		in.CreatedAt = o.clock.NowMillis()
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = o.keys.Generate()
	}
	if in.Fields == nil {
		in.Fields = []model.Field{}
	}
	in.ID = 0
	return in, nil
}

// Enqueue persists an intent and returns it with its assigned id.
func (o *Outbox) Enqueue(ctx context.Context, in model.Intent) (model.Intent, error) {
	prepared, err := o.Prepare(in)
	if err != nil {
		return model.Intent{}, err
	}
	id, err := o.store.Enqueue(ctx, prepared)
	if err != nil {
		return model.Intent{}, fmt.Errorf("outbox enqueue: %w", err)
	}
	prepared.ID = id
	return prepared, nil
}

// ListAll returns every queued intent, oldest first.
func (o *Outbox) ListAll(ctx context.Context) ([]model.Intent, error) {
	intents, err := o.store.ListOutbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox list: %w", err)
	}
	return intents, nil
}

// Get returns one queued intent.
func (o *Outbox) Get(ctx context.Context, id int64) (model.Intent, error) {
	in, err := o.store.GetOutbox(ctx, id)
	if err != nil {
		return model.Intent{}, fmt.Errorf("outbox get: %w", err)
	}
	return in, nil
}

// DeleteByID removes an intent. Unknown ids are a no-op.
func (o *Outbox) DeleteByID(ctx context.Context, id int64) error {
	if err := o.store.DeleteOutbox(ctx, id); err != nil {
		return fmt.Errorf("outbox delete: %w", err)
	}
	return nil
}

// Count returns the number of queued intents.
func (o *Outbox) Count(ctx context.Context) (int, error) {
	n, err := o.store.CountOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox count: %w", err)
	}
	return n, nil
}
