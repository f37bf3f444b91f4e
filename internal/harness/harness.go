package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/remote"
	"github.com/roach88/folio/internal/testutil"
)

// Harness is the scenario execution environment.
type Harness struct {
	env    *testutil.Env
	engine *engine.Engine
	clock  *engine.Clock
	log    zerolog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger passed to the engine. Default: disabled.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory and
// a fresh backend. The engine's timers are disabled: only the scenario's
// steps drive it.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	dir, err := os.MkdirTemp("", "folio-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	seed := testutil.SeedSnapshot()
	if scenario.Seed == SeedEmpty {
		seed = model.EmptySnapshot()
	}
	env, err := testutil.BuildEnv(dir, testutil.WithSeed(seed))
	if err != nil {
		return nil, fmt.Errorf("build scenario env: %w", err)
	}
	defer env.Close()

	h := &Harness{
		env:   env,
		clock: engine.NewClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.engine = engine.New(env.Store, env.Outbox, env.Remote, env.Catalog,
		engine.WithLogger(h.log),
		engine.WithSyncInterval(0),
		engine.WithProbeInterval(0),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Do, err)
		}
		result.Trace = append(result.Trace, ev)

		if step.Expect != "" && step.Expect != ev.Outcome {
			result.AddError(fmt.Sprintf("step %d (%s): expected outcome %q, got %q", i, step.Do, step.Expect, ev.Outcome))
		}
	}

	final, err := h.final(ctx)
	if err != nil {
		return nil, err
	}
	result.Final = final

	actx := &AssertionContext{
		Ctx:     ctx,
		Engine:  h.engine,
		Backend: env.Backend,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: step.Do, Action: step.Action}

	switch step.Do {
	case StepOnline:
		h.env.Backend.SetUnavailable(false)
		h.engine.SetOnline(true)
		ev.Outcome = "online"

	case StepOffline:
		h.env.Backend.SetUnavailable(true)
		h.engine.SetOnline(false)
		ev.Outcome = "offline"

	case StepSync:
		ev.Outcome = syncOutcome(h.engine.FullSync(ctx))

	case StepReplay:
		ev.Outcome = syncOutcome(h.engine.TryReplay(ctx))

	case StepRefresh:
		pending, err := h.engine.Pending(ctx)
		if err != nil {
			return ev, err
		}
		ev.Outcome = syncOutcome(h.engine.RefreshMirror(ctx, pending))

	case StepSubmit:
		outcome, id, err := h.submit(ctx, step)
		if err != nil {
			return ev, err
		}
		ev.Outcome, ev.Intent = outcome, id

	case StepFailWrites:
		h.env.Backend.FailNextWrites(step.Status, step.Count)
		ev.Outcome = "armed"

	default:
		return ev, fmt.Errorf("unknown step %q", step.Do)
	}

	st := h.engine.Status()
	ev.Seq = h.clock.Next()
	ev.Pending = st.Pending
	ev.Status = st.Text
	return ev, nil
}

// submit captures a form post through the engine, or sends it straight to
// the backend when the engine passes it through.
func (h *Harness) submit(ctx context.Context, step Step) (string, int64, error) {
	fields := step.formFields()
	in, err := h.engine.Intercept(ctx, engine.Submission{
		Action:   step.Action,
		PagePath: step.Page,
		Fields:   fields,
	})

	var verr *compiler.ValidationError
	switch {
	case err == nil:
		return "queued", in.ID, nil
	case errors.As(err, &verr):
		return "invalid", 0, nil
	case engine.IsPassThrough(err):
	default:
		return "", 0, err
	}

	err = h.env.Remote.Replay(ctx, model.Intent{
		Method: http.MethodPost,
		URL:    step.Action,
		Fields: fields,
	})
	if status := remote.StatusCode(err); status != 0 {
		return "rejected:" + strconv.Itoa(status), 0, nil
	}
	if err != nil {
		return "failed", 0, nil
	}
	return "sent", 0, nil
}

func syncOutcome(err error) string {
	var se *engine.SyncError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrOffline):
		return "offline"
	case errors.Is(err, engine.ErrReplayInProgress):
		return "busy"
	case errors.As(err, &se):
		return string(se.Code)
	default:
		return "error"
	}
}

func (h *Harness) final(ctx context.Context) (Final, error) {
	st := h.engine.Status()
	f := Final{
		Status:    st.Text,
		Pending:   st.Pending,
		Conflicts: st.Conflicts,
		Writes:    h.env.Backend.Writes(),
		Backend:   Summarize(h.env.Backend.Snapshot()),
		Mirror:    Summarize(model.EmptySnapshot()),
	}

	env, err := h.engine.Snapshot(ctx)
	if err != nil {
		return f, err
	}
	if env != nil {
		f.Mirror = Summarize(env.Snapshot)
	}
	return f, nil
}
