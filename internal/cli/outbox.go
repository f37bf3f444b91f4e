package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/gateway"
)

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and manage queued submissions",
	}

	cmd.AddCommand(newOutboxListCommand(rootOpts))
	cmd.AddCommand(newOutboxDropCommand(rootOpts))

	return cmd
}

func newOutboxListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued submissions in replay order",
		Long: `List queued submissions in the order they will be replayed.

Each entry shows its fingerprint: a hash over the submission's action,
page, metadata and fields. Two entries with the same fingerprint carry
the same change.

Example:
  folio outbox list
  folio outbox list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxList(cmd, opts)
		},
	}
}

func runOutboxList(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	intents, err := rt.outbox.ListAll(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read outbox", err)
	}

	entries := make([]gateway.OutboxEntry, 0, len(intents))
	for _, in := range intents {
		e := gateway.NewOutboxEntry(in)
		if e.Fingerprint, err = codec.IntentFingerprint(in); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to fingerprint intent %d", in.ID), err)
		}
		entries = append(entries, e)
	}

	f := opts.formatter(cmd)
	return f.Emit(entries, func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, f.palette().OK("Outbox is empty."))
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tQUEUED\tACTION\tPAGE\tFINGERPRINT")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				e.ID,
				time.UnixMilli(e.CreatedAt).UTC().Format(time.RFC3339),
				e.URL,
				e.PagePath,
				f.palette().Dim(e.Fingerprint[:12]),
			)
		}
		return tw.Flush()
	})
}

// DropResult reports a dropped outbox entry.
type DropResult struct {
	ID      int64 `json:"id"`
	Pending int   `json:"pending"`
}

func newOutboxDropCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <id>",
		Short: "Discard a queued submission",
		Long: `Discard a queued submission so it is never replayed. Use this to
unblock a paused sync when the backend keeps rejecting an entry.
Dropping an unknown id is not an error.

Example:
  folio outbox drop 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid outbox id %q", args[0]))
			}
			return runOutboxDrop(cmd, opts, id)
		},
	}
}

func runOutboxDrop(cmd *cobra.Command, opts *RootOptions, id int64) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.outbox.DeleteByID(ctx, id); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to drop intent %d", id), err)
	}
	pending := rt.engine.RefreshPending(ctx)
	rt.log.Info().Int64("intentId", id).Int("pending", pending).Msg("intent dropped")

	res := DropResult{ID: id, Pending: pending}
	f := opts.formatter(cmd)
	return f.Emit(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Dropped %d. %d queued %s.\n", id, pending, pluralChange(pending))
		return err
	})
}
