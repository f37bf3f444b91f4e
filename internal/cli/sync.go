package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/engine"
)

// SyncResult is the outcome of a one-shot sync.
type SyncResult struct {
	Replayed int           `json:"replayed"`
	Status   engine.Status `json:"status"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued submissions and refresh the mirror once",
		Long: `Run one full sync pass: replay every queued submission in order, then
refresh the local mirror from the backend. Replay stops at the first
submission the backend does not accept; the rest stay queued.

Exit codes:
  0 - Outbox drained and mirror refreshed
  1 - Backend unreachable or sync paused
  2 - Command error

Example:
  folio sync
  folio sync --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	f := opts.formatter(cmd)
	before := rt.engine.Status().Pending

	if !rt.engine.Probe(ctx) {
		st := rt.engine.Status()
		_ = f.Error("OFFLINE", "backend unreachable: "+rt.cfg.BackendURL, st)
		return NewExitError(ExitFailure, st.Text)
	}

	err = rt.engine.FullSync(ctx)
	st := rt.engine.Status()

	var se *engine.SyncError
	switch {
	case err == nil:
	case errors.As(err, &se):
		_ = f.Error(string(se.Code), st.Text, se.Error())
		return WrapExitError(ExitFailure, "sync paused", err)
	default:
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	res := SyncResult{Replayed: before - st.Pending, Status: st}
	return f.Emit(res, func(w io.Writer) error {
		if res.Replayed > 0 {
			f.VerboseLog("replayed %d queued %s", res.Replayed, pluralChange(res.Replayed))
		}
		return renderStatus(w, f.palette(), st)
	})
}

func pluralChange(n int) string {
	if n == 1 {
		return "change"
	}
	return "changes"
}
