package outbox

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/store"
)

func newTestOutbox(t *testing.T, opts ...Option) *Outbox {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, opts...)
}

func TestEnqueue_AssignsDefaults(t *testing.T) {
	o := newTestOutbox(t,
		WithClock(NewStepClock(1000, 10)),
		WithKeyGenerator(NewFixedGenerator("k1", "k2")),
	)

	first, err := o.Enqueue(t.Context(), model.Intent{URL: "/a"})
	require.NoError(t, err)
	second, err := o.Enqueue(t.Context(), model.Intent{URL: "/b", CreatedAt: 5, IdempotencyKey: "mine"})
	require.NoError(t, err)

	assert.Positive(t, first.ID)
	assert.Equal(t, "POST", first.Method)
	assert.Equal(t, int64(1000), first.CreatedAt)
	assert.Equal(t, "k1", first.IdempotencyKey)
	assert.Equal(t, []model.Field{}, first.Fields)

	assert.Equal(t, int64(5), second.CreatedAt, "caller timestamps are kept")
	assert.Equal(t, "mine", second.IdempotencyKey)
}

func TestEnqueue_RejectsEmptyURL(t *testing.T) {
	o := newTestOutbox(t)

	_, err := o.Enqueue(t.Context(), model.Intent{})
	require.ErrorIs(t, err, ErrInvalidIntent)

	n, err := o.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListAll_FIFO(t *testing.T) {
	o := newTestOutbox(t, WithClock(NewStepClock(1, 1)))

	for _, u := range []string{"/1", "/2", "/3"} {
		_, err := o.Enqueue(t.Context(), model.Intent{URL: u})
		require.NoError(t, err)
	}

	all, err := o.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/1", all[0].URL)
	assert.Equal(t, "/3", all[2].URL)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[2].ID)
}

func TestDeleteByID_Idempotent(t *testing.T) {
	o := newTestOutbox(t)

	in, err := o.Enqueue(t.Context(), model.Intent{URL: "/a"})
	require.NoError(t, err)

	require.NoError(t, o.DeleteByID(t.Context(), in.ID))
	require.NoError(t, o.DeleteByID(t.Context(), in.ID))
	require.NoError(t, o.DeleteByID(t.Context(), 424242))

	n, err := o.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGet(t *testing.T) {
	o := newTestOutbox(t)

	in, err := o.Enqueue(t.Context(), model.Intent{URL: "/a", Fields: []model.Field{model.TextField("x", "1")}})
	require.NoError(t, err)

	got, err := o.Get(t.Context(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = o.Get(t.Context(), in.ID+1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnqueue_Concurrent(t *testing.T) {
	o := newTestOutbox(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Enqueue(t.Context(), model.Intent{URL: "/c"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := o.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestStepClock(t *testing.T) {
	c := NewStepClock(100, 5)
	assert.Equal(t, int64(100), c.NowMillis())
	assert.Equal(t, int64(105), c.NowMillis())
	c.Set(7)
	assert.Equal(t, int64(7), c.NowMillis())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		k := g.Generate()
		assert.Len(t, k, 36)
		assert.False(t, seen[k])
		seen[k] = true
	}
}
