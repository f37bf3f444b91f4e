package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/codec"
	"github.com/roach88/folio/internal/model"
)

// SnapshotSummary counts the records of the local mirror.
type SnapshotSummary struct {
	Hash            string `json:"hash"`
	Verified        bool   `json:"verified"`
	ServerUpdatedAt string `json:"serverUpdatedAt"`
	Profile         bool   `json:"profile"`
	Skills          int    `json:"skills"`
	Projects        int    `json:"projects"`
	Posts           int    `json:"posts"`
	Socials         int    `json:"socials"`
	LocalOnly       int    `json:"localOnly"`
}

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Full bool
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the local mirror",
		Long: `Show the local mirror of the portfolio. By default only record counts
are shown; --full prints every record as JSON.

Records with a negative id exist only locally and are waiting for their
queued create to be replayed.

Example:
  folio snapshot
  folio snapshot --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "print every record")

	return cmd
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	env, err := rt.store.ReadSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}
	if env == nil {
		return NewExitError(ExitFailure, "no local snapshot yet; run folio sync while online")
	}

	if opts.Full {
		data, err := codec.MarshalCanonical(env)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode snapshot", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	sum, err := summarizeSnapshot(*env)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash snapshot", err)
	}

	f := opts.formatter(cmd)
	return f.Emit(sum, func(w io.Writer) error {
		p := f.palette()
		verified := p.OK("verified")
		if !sum.Verified {
			verified = p.Bad("hash mismatch")
		}
		fmt.Fprintf(w, "Hash:     %s (%s)\n", sum.Hash, verified)
		fmt.Fprintf(w, "Server:   %s\n", sum.ServerUpdatedAt)
		fmt.Fprintf(w, "Profile:  %t\n", sum.Profile)
		fmt.Fprintf(w, "Skills:   %d\n", sum.Skills)
		fmt.Fprintf(w, "Projects: %d\n", sum.Projects)
		fmt.Fprintf(w, "Posts:    %d\n", sum.Posts)
		fmt.Fprintf(w, "Socials:  %d\n", sum.Socials)
		if sum.LocalOnly > 0 {
			fmt.Fprintf(w, "%s\n", p.Warn(fmt.Sprintf("%d local-only %s", sum.LocalOnly, pluralRecord(sum.LocalOnly))))
		}
		return nil
	})
}

// summarizeSnapshot counts records and recomputes the hash of the stored
// snapshot. Every write seals the snapshot, so a mismatch means the
// database was edited behind folio's back.
func summarizeSnapshot(env model.Envelope) (SnapshotSummary, error) {
	s := env.Snapshot
	hash, err := codec.Hash(s)
	if err != nil {
		return SnapshotSummary{}, err
	}

	local := 0
	for _, sk := range s.Skills {
		if sk.ID < 0 {
			local++
		}
	}
	for _, p := range s.Projects {
		if p.ID < 0 {
			local++
		}
	}
	for _, p := range s.Posts {
		if p.ID < 0 {
			local++
		}
	}
	for _, so := range s.Socials {
		if so.ID < 0 {
			local++
		}
	}

	return SnapshotSummary{
		Hash:            env.Hash,
		Verified:        hash == env.Hash,
		ServerUpdatedAt: s.ServerUpdatedAt,
		Profile:         s.Profile != nil,
		Skills:          len(s.Skills),
		Projects:        len(s.Projects),
		Posts:           len(s.Posts),
		Socials:         len(s.Socials),
		LocalOnly:       local,
	}, nil
}

func pluralRecord(n int) string {
	if n == 1 {
		return "record"
	}
	return "records"
}
