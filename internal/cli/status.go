package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/engine"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Probe bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and outbox status",
		Long: `Show the status line the admin sees: whether the backend is reachable
and how many submissions are waiting in the outbox.

Example:
  folio status
  folio status --probe=false --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Probe, "probe", true, "probe the backend before reporting")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.Probe {
		rt.engine.Probe(ctx)
	}

	f := opts.formatter(cmd)
	st := rt.engine.Status()
	return f.Emit(st, func(w io.Writer) error {
		return renderStatus(w, f.palette(), st)
	})
}

// renderStatus writes the status line, colored by severity.
func renderStatus(w io.Writer, p *Palette, st engine.Status) error {
	text := st.Text
	switch {
	case st.State == engine.StateSyncError:
		text = p.Bad(text)
	case !st.Online || st.Pending > 0:
		text = p.Warn(text)
	default:
		text = p.OK(text)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
