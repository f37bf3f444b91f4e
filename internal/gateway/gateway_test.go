package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/gateway"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/testutil"
)

type fixture struct {
	env    *testutil.Env
	engine *engine.Engine
	server *httptest.Server
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	eng := engine.New(env.Store, env.Outbox, env.Remote, env.Catalog,
		engine.WithSyncInterval(0),
		engine.WithProbeInterval(0),
		engine.WithInitialOnline(online),
	)
	gw, err := gateway.New(eng, env.Server.URL,
		gateway.WithTransport(env.Server.Client().Transport),
		gateway.WithPingPeriod(50*time.Millisecond),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(gw.Routes())
	t.Cleanup(ts.Close)
	return &fixture{env: env, engine: eng, server: ts}
}

func postForm(t *testing.T, base, action string, values url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+gateway.FormsPrefix+action, strings.NewReader(values.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", base+"/dashboard/skills?tab=all")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, u string, v any) int {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

var skillValues = url.Values{
	"name":        {"Rust"},
	"category":    {"Language"},
	"proficiency": {"60"},
}

func TestNew_BadURL(t *testing.T) {
	_, err := gateway.New(nil, "ftp://example.com")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, false)

	var st engine.Status
	code := getJSON(t, f.server.URL+"/local/status", &st)

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, st.Online)
	assert.Equal(t, engine.StateIdle, st.State)
	assert.Equal(t, "Offline mode. 0 queued changes.", st.Text)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, true)

	code := getJSON(t, f.server.URL+"/local/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, f.engine.FullSync(t.Context()))

	var env model.Envelope
	code = getJSON(t, f.server.URL+"/local/snapshot", &env)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, env.Hash)
	assert.Len(t, env.Snapshot.Skills, 2)
}

func TestForm_CapturedWhileOffline(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.engine.RefreshMirror(t.Context(), nil))

	resp := postForm(t, f.server.URL, "/dashboard/skills/new", skillValues)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var acc gateway.Accepted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acc))
	assert.True(t, acc.Queued)
	assert.Equal(t, int64(1), acc.ID)
	assert.Equal(t, "key-0001", acc.IdempotencyKey)
	assert.Equal(t, "Offline mode. 1 queued change.", acc.Status.Text)
	assert.Equal(t, 0, f.env.Backend.Writes())

	var entries []gateway.OutboxEntry
	getJSON(t, f.server.URL+"/local/outbox?fingerprint=true", &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "/dashboard/skills/new", entries[0].URL)
	assert.Equal(t, "/dashboard/skills", entries[0].PagePath)
	assert.Equal(t, []string{"category", "name", "proficiency"}, entries[0].Fields)
	assert.Len(t, entries[0].Fingerprint, 64)

	var env model.Envelope
	getJSON(t, f.server.URL+"/local/snapshot", &env)
	require.Len(t, env.Snapshot.Skills, 3)
	assert.Equal(t, int64(-1), env.Snapshot.Skills[0].ID)
}

func TestForm_RejectsInvalidWhileOffline(t *testing.T) {
	f := newFixture(t, false)

	resp := postForm(t, f.server.URL, "/dashboard/skills/new", url.Values{"name": {"Rust"}, "proficiency": {"abc"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var verr compiler.ValidationError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verr))
	assert.NotEmpty(t, verr.Problems)

	n, err := f.env.Outbox.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForm_UnreadableBody(t *testing.T) {
	f := newFixture(t, false)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/forms/dashboard/skills/new", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForm_ProxiedWhileOnline(t *testing.T) {
	f := newFixture(t, true)

	resp := postForm(t, f.server.URL, "/dashboard/skills/new", skillValues)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1, f.env.Backend.Writes())
	assert.Len(t, f.env.Backend.Snapshot().Skills, 3)
	n, err := f.env.Outbox.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForm_NotLocalFirstIsProxied(t *testing.T) {
	f := newFixture(t, false)

	resp := postForm(t, f.server.URL, "/dashboard/skills/delete", url.Values{"id": {"2"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Len(t, f.env.Backend.Snapshot().Skills, 1)
	n, err := f.env.Outbox.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForm_BackendUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	env := testutil.NewEnv(t)
	eng := engine.New(env.Store, env.Outbox, env.Remote, env.Catalog,
		engine.WithSyncInterval(0), engine.WithProbeInterval(0))
	gw, err := gateway.New(eng, deadURL)
	require.NoError(t, err)
	ts := httptest.NewServer(gw.Routes())
	defer ts.Close()

	resp := postForm(t, ts.URL, "/dashboard/skills/new", skillValues)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, false)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/local/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first engine.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, engine.EventStatus, first.Kind)
	require.NotNil(t, first.Status)
	assert.False(t, first.Status.Online)

	_, err = f.engine.Intercept(t.Context(), engine.Submission{
		Action: "/dashboard/skills/new",
		Fields: []model.Field{
			model.TextField("name", "Rust"),
			model.TextField("category", "Language"),
			model.TextField("proficiency", "60"),
		},
	})
	require.NoError(t, err)

	var snap engine.Event
	for snap.Kind != engine.EventSnapshot {
		snap = engine.Event{}
		require.NoError(t, conn.ReadJSON(&snap))
	}
	assert.NotEmpty(t, snap.Hash)
	assert.Positive(t, snap.Seq)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestEvents_KeepsAlive(t *testing.T) {
	f := newFixture(t, true)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/local/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	pings := make(chan struct{}, 4)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(5 * time.Second):
		t.Fatal("no ping received")
	}
}
