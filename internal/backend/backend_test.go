package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/remote"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed() model.Snapshot {
	s := model.EmptySnapshot()
	s.Skills = []model.Skill{{
		ID: 1, Name: "Go", Slug: "go", Category: "Language", Proficiency: 80,
		CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-01-01T00:00:00.000Z",
	}}
	s.Projects = []model.Project{{
		ID: 4, Title: "Site", Slug: "site", Summary: "S", Details: "D", ProjectType: "website",
		SkillIDs:  []int64{1},
		CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-01-01T00:00:00.000Z",
	}}
	s.Posts = []model.Post{{
		ID: 2, Title: "Hello", Slug: "hello", Excerpt: "E", MarkdownContent: "M",
		CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-01-01T00:00:00.000Z",
	}}
	return s
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]Option{
		WithSeed(seed()),
		WithNow(func() time.Time { return fixedNow }),
	}, opts...)
	srv := New(compiler.MustDefaultCatalog(), opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, ts *httptest.Server, path string, form url.Values, key string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key != "" {
		req.Header.Set(remote.IdempotencyHeader, key)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestSnapshot_Sealed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + remote.SnapshotPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var env model.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "2024-03-01T12:00:00.000Z", env.Snapshot.ServerUpdatedAt)
	assert.Equal(t, codec.MustHash(env.Snapshot), env.Hash)
	assert.Len(t, env.Snapshot.Skills, 1)
}

func TestSnapshot_Unauthorized(t *testing.T) {
	_, ts := newTestServer(t, WithSessionToken("secret"))

	resp, err := ts.Client().Get(ts.URL + remote.SnapshotPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+remote.SnapshotPath, nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "secret"})
	resp2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestSnapshot_Unavailable(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetUnavailable(true)

	resp, err := ts.Client().Get(ts.URL + remote.SnapshotPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Snapshot unavailable", body["error"])
}

func TestHealth(t *testing.T) {
	srv, ts := newTestServer(t)

	get := func() (int, remote.HealthResult) {
		resp, err := ts.Client().Get(ts.URL + remote.HealthPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		var hr remote.HealthResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&hr))
		return resp.StatusCode, hr
	}

	code, hr := get()
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, hr.OK)

	srv.SetUnavailable(true)
	code, hr = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, remote.HealthResult{OK: false, Reason: "db_unreachable"}, hr)
}

func TestForm_CreateAssignsIDAndSlug(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, body := post(t, ts, "/dashboard/skills/new", url.Values{
		"name":        {"Crème Brûlée"},
		"category":    {"Cooking"},
		"proficiency": {"70"},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["id"])

	snap := srv.Snapshot()
	require.Len(t, snap.Skills, 2)
	created := snap.Skills[0]
	assert.Equal(t, int64(2), created.ID)
	assert.Equal(t, "creme-brulee", created.Slug)
	assert.Equal(t, int64(70), created.Proficiency)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", created.CreatedAt)
	assert.Equal(t, 1, srv.Writes())
}

func TestForm_CreateSlugCollision(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, _ := post(t, ts, "/dashboard/posts/new", url.Values{
		"title":           {"Hello"},
		"excerpt":         {"E"},
		"markdownContent": {"M"},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := srv.Snapshot()
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, "hello-2", snap.Posts[0].Slug)
	assert.False(t, snap.Posts[0].Published)
}

func TestForm_IdempotentReplay(t *testing.T) {
	srv, ts := newTestServer(t)
	form := url.Values{"name": {"GitHub"}, "url": {"https://github.com/x"}}

	_, first := post(t, ts, "/dashboard/socials/new", form, "key-1")
	resp, second := post(t, ts, "/dashboard/socials/new", form, "key-1")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["duplicate"])
	assert.Equal(t, first["id"], second["id"])
	assert.Len(t, srv.Snapshot().Socials, 1)
	assert.Equal(t, 1, srv.Writes())
}

func TestForm_ValidationFailure(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, body := post(t, ts, "/dashboard/skills/new", url.Values{
		"name":        {"Rust"},
		"proficiency": {"500"},
	}, "k")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "skill_create", body["form"])
	assert.Len(t, body["problems"], 2)
	assert.Len(t, srv.Snapshot().Skills, 1)
	assert.Zero(t, srv.Writes())
}

func TestForm_UnknownAction(t *testing.T) {
	_, ts := newTestServer(t)
	resp, _ := post(t, ts, "/dashboard/widgets/new", url.Values{}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestForm_UnsupportedContentType(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/dashboard/skills/new", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForm_InjectedFailures(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.FailNextWrites(http.StatusInternalServerError, 1)

	form := url.Values{"id": {"1"}}
	resp, _ := post(t, ts, "/dashboard/skills/delete", form, "del-1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Len(t, srv.Snapshot().Skills, 1)

	resp, _ = post(t, ts, "/dashboard/skills/delete", form, "del-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, srv.Snapshot().Skills)
}

func TestForm_UpdateMissingIsNoOp(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, body := post(t, ts, "/dashboard/skills/update", url.Values{
		"id": {"99"}, "name": {"Ghost"}, "category": {"C"}, "proficiency": {"10"},
	}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Len(t, srv.Snapshot().Skills, 1)
}

func TestForm_ToggleHonorsSubmittedState(t *testing.T) {
	srv, ts := newTestServer(t)

	post(t, ts, "/dashboard/posts/toggle-published", url.Values{"id": {"2"}, "published": {"true"}}, "a")
	post(t, ts, "/dashboard/posts/toggle-published", url.Values{"id": {"2"}, "published": {"true"}}, "b")

	p := srv.Snapshot().Posts[0]
	assert.True(t, p.Published)
	require.NotNil(t, p.PublishedAt)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", *p.PublishedAt)

	post(t, ts, "/dashboard/projects/toggle-featured", url.Values{"id": {"4"}}, "c")
	assert.True(t, srv.Snapshot().Projects[0].Featured, "toggle without a state flips")
}

func TestForm_ProfileUpsert(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, body := post(t, ts, "/dashboard/profile", url.Values{
		"fullName": {"Ada Lovelace"},
		"headline": {"Engineer"},
		"bio":      {"Analytical"},
		"email":    {"ada@example.com"},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["id"])

	p := srv.Snapshot().Profile
	require.NotNil(t, p)
	assert.Equal(t, "Ada Lovelace", p.FullName)
	require.NotNil(t, p.Email)
	assert.Equal(t, "ada@example.com", *p.Email)
}

func TestEdit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Edit(func(s *model.Snapshot) { s.Skills[0].Name = "Golang" })
	assert.Equal(t, "Golang", srv.Snapshot().Skills[0].Name)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  --Go  1.25!! ", "go-1-25"},
		{"Crème Brûlée", "creme-brulee"},
		{"!!!", "item"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestUniqueSlug(t *testing.T) {
	assert.Equal(t, "go", UniqueSlug("Go", nil))
	assert.Equal(t, "go-3", UniqueSlug("Go", []string{"go", "go-2"}))
}
