// Package backend is an in-memory portfolio server for development and tests.
//
// It serves the same surface the real backend exposes to the local-first
// client: the sealed snapshot, the health probe and the admin form actions
// declared in the form catalog. Form writes are validated against the
// catalog and deduplicated by Idempotency-Key, so replaying an intent twice
// applies it once.
package backend

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/httpx"
	"github.com/roach88/folio/internal/mirror"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/outbox"
	"github.com/roach88/folio/internal/remote"
)

// SessionCookie is the cookie checked when a session token is configured.
const SessionCookie = "folio_session"

// Server is the in-memory backend.
type Server struct {
	catalog *model.Catalog
	token   string
	now     func() time.Time
	log     zerolog.Logger

	mu          sync.Mutex
	snap        model.Snapshot
	seen        map[string]int64
	unavailable bool
	failures    []int
	writes      int
}

// Option configures a Server.
type Option func(*Server)

// WithSeed sets the initial portfolio state.
func WithSeed(s model.Snapshot) Option {
	return func(srv *Server) { srv.snap = s.Clone() }
}

// WithNow sets the clock used for entity and snapshot timestamps.
func WithNow(now func() time.Time) Option {
	return func(srv *Server) { srv.now = now }
}

// WithSessionToken requires the folio_session cookie to equal token.
func WithSessionToken(token string) Option {
	return func(srv *Server) { srv.token = token }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(srv *Server) { srv.log = l.With().Str("component", "backend").Logger() }
}

// New creates a backend serving the forms of catalog.
func New(catalog *model.Catalog, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		now:     time.Now,
		log:     zerolog.Nop(),
		snap:    model.EmptySnapshot(),
		seen:    map[string]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.CorrelationMiddleware(s.log))
	r.Use(httpx.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get(remote.SnapshotPath, s.handleSnapshot)
	r.Get(remote.HealthPath, s.handleHealth)
	r.Post("/*", s.handleForm)

	return r
}

// Snapshot returns a copy of the current state.
func (s *Server) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Writes returns how many form submissions have been applied.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetUnavailable makes every endpoint answer 503 until cleared.
func (s *Server) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// FailNextWrites makes the next n form submissions answer status.
func (s *Server) FailNextWrites(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// Edit applies fn to the live state, for simulating edits made elsewhere.
func (s *Server) Edit(fn func(*model.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	c, err := r.Cookie(SessionCookie)
	return err == nil && c.Value == s.token
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.mu.Lock()
	if s.unavailable {
		s.mu.Unlock()
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "Snapshot unavailable")
		return
	}
	snap := s.snap.Clone()
	s.mu.Unlock()

	snap.ServerUpdatedAt = model.FormatTime(s.now())
	env, err := codec.Seal(snap)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("seal snapshot")
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "Snapshot unavailable")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, r, http.StatusOK, env)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		httpx.WriteJSON(w, r, http.StatusUnauthorized, remote.HealthResult{OK: false, Reason: "unauthorized"})
		return
	}

	s.mu.Lock()
	unavailable := s.unavailable
	s.mu.Unlock()

	w.Header().Set("Cache-Control", "no-store")
	if unavailable {
		httpx.WriteJSON(w, r, http.StatusServiceUnavailable, remote.HealthResult{OK: false, Reason: "db_unreachable"})
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, remote.HealthResult{OK: true})
}

// writeResult is the body of a successful form submission.
type writeResult struct {
	OK        bool  `json:"ok"`
	ID        int64 `json:"id,omitempty"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	if !s.authorized(r) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	spec, ok := s.catalog.Lookup(r.URL.Path)
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "Unknown form action")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, outbox.MaxBodyBytes)
	fields, err := outbox.FieldsFromRequest(r)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		httpx.WriteError(w, r, status, "Injected failure")
		return
	}

	key := r.Header.Get(remote.IdempotencyHeader)
	if id, dup := s.seen[key]; key != "" && dup {
		logger.Debug().Str("idempotencyKey", key).Msg("duplicate submission ignored")
		httpx.WriteJSON(w, r, http.StatusOK, writeResult{OK: true, ID: id, Duplicate: true})
		return
	}

	if err := compiler.ValidateSubmission(spec, fields); err != nil {
		httpx.WriteJSON(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	id := s.apply(spec, fields)
	s.writes++
	if key != "" {
		s.seen[key] = id
	}

	logger.Info().
		Str("form", spec.Name).
		Int64("id", id).
		Msg("form applied")
	httpx.WriteJSON(w, r, http.StatusOK, writeResult{OK: true, ID: id})
}

// apply performs a validated submission and returns the affected id.
// Caller must hold s.mu.
func (s *Server) apply(spec model.FormSpec, fields []model.Field) int64 {
	in := model.Intent{
		Method:    http.MethodPost,
		URL:       spec.Action,
		CreatedAt: s.now().UnixMilli(),
		Meta:      spec.Meta(),
		Fields:    fields,
	}

	if spec.Entity == model.EntityProfile {
		s.snap = mirror.Apply(s.snap, in)
		return s.snap.Profile.ID
	}

	id, hasTarget := in.TargetID()
	if spec.Operation == model.OpCreate {
		id = s.nextID(spec.Entity)
		in.Meta.TargetID = model.Int64Ptr(id)
	} else if !hasTarget || !s.exists(spec.Entity, id) {
		return 0
	}

	s.snap = mirror.Apply(s.snap, in)

	switch spec.Operation {
	case model.OpCreate:
		s.assignSlug(spec.Entity, id, in)
	case model.OpToggleFeatured:
		s.setFlag(spec.Entity, id, in.Text("featured"))
	case model.OpTogglePublished:
		s.setFlag(spec.Entity, id, in.Text("published"))
	}
	return id
}

func (s *Server) ids(entity model.Entity) []int64 {
	var ids []int64
	switch entity {
	case model.EntitySkills:
		for _, v := range s.snap.Skills {
			ids = append(ids, v.ID)
		}
	case model.EntityProjects:
		for _, v := range s.snap.Projects {
			ids = append(ids, v.ID)
		}
	case model.EntityPosts:
		for _, v := range s.snap.Posts {
			ids = append(ids, v.ID)
		}
	case model.EntitySocials:
		for _, v := range s.snap.Socials {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func (s *Server) nextID(entity model.Entity) int64 {
	var highest int64
	for _, id := range s.ids(entity) {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

func (s *Server) exists(entity model.Entity, id int64) bool {
	for _, existing := range s.ids(entity) {
		if existing == id {
			return true
		}
	}
	return false
}

// assignSlug replaces the placeholder slug of a newly created record.
func (s *Server) assignSlug(entity model.Entity, id int64, in model.Intent) {
	switch entity {
	case model.EntitySkills:
		slugs := make([]string, 0, len(s.snap.Skills))
		for _, v := range s.snap.Skills {
			if v.ID != id {
				slugs = append(slugs, v.Slug)
			}
		}
		for i := range s.snap.Skills {
			if s.snap.Skills[i].ID == id {
				s.snap.Skills[i].Slug = UniqueSlug(in.Text("name"), slugs)
			}
		}
	case model.EntityProjects:
		slugs := make([]string, 0, len(s.snap.Projects))
		for _, v := range s.snap.Projects {
			if v.ID != id {
				slugs = append(slugs, v.Slug)
			}
		}
		for i := range s.snap.Projects {
			if s.snap.Projects[i].ID == id {
				s.snap.Projects[i].Slug = UniqueSlug(in.Text("title"), slugs)
			}
		}
	case model.EntityPosts:
		slugs := make([]string, 0, len(s.snap.Posts))
		for _, v := range s.snap.Posts {
			if v.ID != id {
				slugs = append(slugs, v.Slug)
			}
		}
		for i := range s.snap.Posts {
			if s.snap.Posts[i].ID == id {
				s.snap.Posts[i].Slug = UniqueSlug(in.Text("title"), slugs)
			}
		}
	}
}

// setFlag pins a toggled flag to the value the form submitted, when it
// submitted one. Toggle forms carry the desired state as "true" or "false".
func (s *Server) setFlag(entity model.Entity, id int64, raw string) {
	want, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	switch entity {
	case model.EntityProjects:
		for i := range s.snap.Projects {
			if s.snap.Projects[i].ID == id {
				s.snap.Projects[i].Featured = want
			}
		}
	case model.EntityPosts:
		for i := range s.snap.Posts {
			p := &s.snap.Posts[i]
			if p.ID != id {
				continue
			}
			p.Published = want
			if want {
				p.PublishedAt = model.StringPtr(p.UpdatedAt)
			} else {
				p.PublishedAt = nil
			}
		}
	}
}
