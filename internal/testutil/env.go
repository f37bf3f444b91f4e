package testutil

import (
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/backend"
	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/outbox"
	"github.com/roach88/folio/internal/remote"
	"github.com/roach88/folio/internal/store"
)

var (
	// ClientEpoch is the first reading of Env.Clock, which stamps intents.
	ClientEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// ServerEpoch is the first reading of Env.ServerClock, which stamps
	// backend writes and snapshots.
	ServerEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// SeedTime stamps every record of SeedSnapshot.
	SeedTime = "2024-01-01T00:00:00.000Z"
)

// SequentialKeys generates idempotency keys key-0001, key-0002, ...
type SequentialKeys struct {
	n atomic.Int64
}

// Generate implements outbox.KeyGenerator.
func (g *SequentialKeys) Generate() string {
	return fmt.Sprintf("key-%04d", g.n.Add(1))
}

// SeedSnapshot returns a small portfolio with one record of every kind
// (two skills).
func SeedSnapshot() model.Snapshot {
	s := model.EmptySnapshot()
	s.Profile = &model.Profile{
		ID: 1, FullName: "Ada Lovelace", Headline: "Engineer", Bio: "Notes on the engine.",
		Email:     model.StringPtr("ada@example.com"),
		CreatedAt: SeedTime, UpdatedAt: SeedTime,
	}
	s.Skills = []model.Skill{
		{ID: 1, Name: "Go", Slug: "go", Category: "Language", Proficiency: 90, CreatedAt: SeedTime, UpdatedAt: SeedTime},
		{ID: 2, Name: "SQL", Slug: "sql", Category: "Data", Proficiency: 70, CreatedAt: SeedTime, UpdatedAt: SeedTime},
	}
	s.Projects = []model.Project{{
		ID: 1, Title: "Portfolio", Slug: "portfolio", Summary: "This site", Details: "Built twice",
		ProjectType: "website", SkillIDs: []int64{1, 2}, CreatedAt: SeedTime, UpdatedAt: SeedTime,
	}}
	s.Posts = []model.Post{{
		ID: 1, Title: "Hello", Slug: "hello", Excerpt: "First", MarkdownContent: "# Hello",
		CreatedAt: SeedTime, UpdatedAt: SeedTime,
	}}
	s.Socials = []model.Social{{
		ID: 1, Name: "GitHub", URL: "https://github.com/ada", CreatedAt: SeedTime, UpdatedAt: SeedTime,
	}}
	return s
}

// Env wires a local store and outbox to an in-memory backend over HTTP.
type Env struct {
	Store       *store.Store
	Outbox      *outbox.Outbox
	Backend     *backend.Server
	Server      *httptest.Server
	Remote      *remote.Client
	Catalog     *model.Catalog
	Clock       *DeterministicClock
	ServerClock *DeterministicClock
}

// EnvOption configures NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	seed        model.Snapshot
	backendOpts []backend.Option
}

// WithSeed replaces SeedSnapshot as the backend's initial state.
func WithSeed(s model.Snapshot) EnvOption {
	return func(c *envConfig) { c.seed = s }
}

// WithBackendOptions passes extra options to the backend.
func WithBackendOptions(opts ...backend.Option) EnvOption {
	return func(c *envConfig) { c.backendOpts = append(c.backendOpts, opts...) }
}

// NewEnv builds an Env in a temporary directory. Everything is closed by
// t.Cleanup.
func NewEnv(t testing.TB, opts ...EnvOption) *Env {
	t.Helper()

	env, err := BuildEnv(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

// BuildEnv builds an Env whose database lives in dir. Call Close when done.
func BuildEnv(dir string, opts ...EnvOption) (*Env, error) {
	cfg := envConfig{seed: SeedSnapshot()}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(filepath.Join(dir, "folio.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	clock := NewDeterministicClock(ClientEpoch, time.Second)
	serverClock := NewDeterministicClock(ServerEpoch, time.Second)
	catalog := compiler.MustDefaultCatalog()

	backendOpts := append([]backend.Option{
		backend.WithSeed(cfg.seed),
		backend.WithNow(serverClock.Now),
	}, cfg.backendOpts...)
	be := backend.New(catalog, backendOpts...)
	ts := httptest.NewServer(be.Routes())

	rc, err := remote.New(ts.URL, remote.WithHTTPClient(ts.Client()))
	if err != nil {
		ts.Close()
		st.Close()
		return nil, err
	}

	return &Env{
		Store:       st,
		Outbox:      outbox.New(st, outbox.WithClock(clock), outbox.WithKeyGenerator(&SequentialKeys{})),
		Backend:     be,
		Server:      ts,
		Remote:      rc,
		Catalog:     catalog,
		Clock:       clock,
		ServerClock: serverClock,
	}, nil
}

// Close stops the backend server and closes the store.
func (e *Env) Close() {
	e.Server.Close()
	e.Store.Close()
}
