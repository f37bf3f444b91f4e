// Package gateway is the local HTTP surface of a running folio node.
//
// It serves the mirror, status and outbox to local views, pushes engine
// events over a websocket, and sits in front of the backend's admin forms:
// local-first forms posted while offline are captured by the engine, and
// everything else is reverse-proxied to the backend unchanged.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/httpx"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/outbox"
)

const (
	// FormsPrefix is stripped from form posts to obtain the backend action path.
	FormsPrefix = "/forms"

	// PagePathHeader names the page a form was submitted from. When absent
	// the Referer path is used.
	PagePathHeader = "X-Folio-Page"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Event clients only send control frames.
	maxMessageSize = 512
)

// Engine is the sync engine as the gateway uses it.
type Engine interface {
	Status() engine.Status
	Snapshot(ctx context.Context) (*model.Envelope, error)
	Pending(ctx context.Context) ([]model.Intent, error)
	ShouldIntercept(action string) bool
	Intercept(ctx context.Context, sub engine.Submission) (model.Intent, error)
	Subscribe() *engine.Subscription
}

// Server is the local gateway.
type Server struct {
	engine     Engine
	backend    *url.URL
	proxy      *httputil.ReverseProxy
	upgrader   websocket.Upgrader
	log        zerolog.Logger
	pingPeriod time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "gateway").Logger() }
}

// WithTransport sets the round tripper used to reach the backend.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Server) { s.proxy.Transport = rt }
}

// WithPingPeriod overrides the websocket keepalive period.
func WithPingPeriod(d time.Duration) Option {
	return func(s *Server) { s.pingPeriod = d }
}

// New creates a gateway in front of the backend at backendURL.
func New(eng Engine, backendURL string, opts ...Option) (*Server, error) {
	target, err := url.Parse(strings.TrimRight(backendURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("parse backend url: unsupported scheme %q", target.Scheme)
	}

	s := &Server{
		engine:     eng,
		backend:    target,
		log:        zerolog.Nop(),
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.proxy = &httputil.ReverseProxy{
		Rewrite:      s.rewrite,
		ErrorHandler: s.proxyError,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes builds the gateway router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.CorrelationMiddleware(s.log))
	r.Use(httpx.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/local", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/status", s.handleStatus)
		r.Get("/outbox", s.handleOutbox)
		r.Get("/events", s.handleEvents)
	})
	r.Post(FormsPrefix+"/*", s.handleForm)

	return r
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	env, err := s.engine.Snapshot(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("read snapshot")
		httpx.WriteError(w, r, http.StatusInternalServerError, "Snapshot unavailable")
		return
	}
	if env == nil {
		httpx.WriteError(w, r, http.StatusNotFound, "No local snapshot yet")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, r, http.StatusOK, env)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, r, http.StatusOK, s.engine.Status())
}

// OutboxEntry is one pending intent as listed by GET /local/outbox. File
// contents are omitted.
type OutboxEntry struct {
	ID             int64       `json:"id"`
	URL            string      `json:"url"`
	PagePath       string      `json:"pagePath"`
	CreatedAt      int64       `json:"createdAt"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Meta           *model.Meta `json:"meta,omitempty"`
	Fields         []string    `json:"fields"`
	Fingerprint    string      `json:"fingerprint,omitempty"`
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Pending(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list outbox")
		httpx.WriteError(w, r, http.StatusInternalServerError, "Outbox unavailable")
		return
	}
	withFingerprint, _ := strconv.ParseBool(r.URL.Query().Get("fingerprint"))

	out := make([]OutboxEntry, 0, len(entries))
	for _, in := range entries {
		entry := NewOutboxEntry(in)
		if withFingerprint {
			fp, err := codec.IntentFingerprint(in)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Int64("intent", in.ID).Msg("fingerprint intent")
			}
			entry.Fingerprint = fp
		}
		out = append(out, entry)
	}
	httpx.WriteJSON(w, r, http.StatusOK, out)
}

// NewOutboxEntry summarizes an intent for listing.
func NewOutboxEntry(in model.Intent) OutboxEntry {
	names := make([]string, len(in.Fields))
	for i, f := range in.Fields {
		names[i] = f.Name
	}
	return OutboxEntry{
		ID:             in.ID,
		URL:            in.URL,
		PagePath:       in.PagePath,
		CreatedAt:      in.CreatedAt,
		IdempotencyKey: in.IdempotencyKey,
		Meta:           in.Meta,
		Fields:         names,
	}
}

// Accepted is the response to a captured form submission.
type Accepted struct {
	Queued         bool          `json:"queued"`
	ID             int64         `json:"id"`
	IdempotencyKey string        `json:"idempotencyKey"`
	Status         engine.Status `json:"status"`
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, FormsPrefix)
	if !s.engine.ShouldIntercept(action) {
		s.forward(w, r, action)
		return
	}

	logger := zerolog.Ctx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, outbox.MaxBodyBytes)
	fields, err := outbox.FieldsFromRequest(r)
	if err != nil {
		logger.Warn().Err(err).Str("action", action).Msg("unreadable form submission")
		httpx.WriteError(w, r, http.StatusBadRequest, "Unreadable form submission")
		return
	}

	in, err := s.engine.Intercept(r.Context(), engine.Submission{
		Action:   action,
		PagePath: pagePath(r),
		Fields:   fields,
	})
	var verr *compiler.ValidationError
	switch {
	case err == nil:
	case engine.IsPassThrough(err):
		// Connectivity came back between the check and the capture.
		if err := replaceBody(r, fields); err != nil {
			logger.Error().Err(err).Msg("re-encode form body")
			httpx.WriteError(w, r, http.StatusInternalServerError, "Could not forward submission")
			return
		}
		s.forward(w, r, action)
		return
	case errors.As(err, &verr):
		httpx.WriteJSON(w, r, http.StatusUnprocessableEntity, verr)
		return
	default:
		logger.Error().Err(err).Str("action", action).Msg("capture submission")
		httpx.WriteError(w, r, http.StatusInternalServerError, "Could not queue submission")
		return
	}

	logger.Info().
		Int64("intent", in.ID).
		Str("action", action).
		Msg("submission captured")
	httpx.WriteJSON(w, r, http.StatusAccepted, Accepted{
		Queued:         true,
		ID:             in.ID,
		IdempotencyKey: in.IdempotencyKey,
		Status:         s.engine.Status(),
	})
}

func pagePath(r *http.Request) string {
	if p := r.Header.Get(PagePathHeader); p != "" {
		return p
	}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" {
		return ref.Path
	}
	return ""
}

func replaceBody(r *http.Request, fields []model.Field) error {
	body, contentType, err := outbox.EncodeBody(fields)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set("Content-Type", contentType)
	return nil
}

type actionKey struct{}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, action string) {
	ctx := context.WithValue(r.Context(), actionKey{}, action)
	s.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (s *Server) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(s.backend)
	action, _ := pr.In.Context().Value(actionKey{}).(string)
	pr.Out.URL.Path = s.backend.Path + action
	pr.Out.URL.RawPath = ""
	pr.SetXForwarded()
	if id := httpx.GetCorrelationID(pr.In.Context()); id != "" {
		pr.Out.Header.Set(httpx.CorrelationHeader, id)
	}
}

func (s *Server) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Warn().
		Err(err).
		Str("path", r.URL.Path).
		Msg("backend unreachable")
	httpx.WriteError(w, r, http.StatusBadGateway, "Backend unreachable")
}

// handleEvents streams engine events to a websocket client as JSON. The
// first message is the current status.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.engine.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readPump(conn, cancel)

	st := s.engine.Status()
	if err := s.write(conn, engine.Event{Kind: engine.EventStatus, Status: &st}); err != nil {
		return
	}

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug().Err(err).Msg("websocket ping failed")
				return
			}

		case <-sub.Wait():
			for ev, ok := sub.Next(); ok; ev, ok = sub.Next() {
				if err := s.write(conn, ev); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, ev engine.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(ev); err != nil {
		s.log.Debug().Err(err).Int64("seq", ev.Seq).Msg("websocket write failed")
		return err
	}
	return nil
}

// readPump consumes control frames so pongs and close messages are handled.
func (s *Server) readPump(conn *websocket.Conn, done context.CancelFunc) {
	defer done()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}
