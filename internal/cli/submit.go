package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/remote"
)

// Submission outcomes.
const (
	OutcomeQueued = "queued"
	OutcomeSent   = "sent"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Fields []string // name=value
	Files  []string // name=path
	Page   string
}

// SubmitResult is the outcome of a submit command.
type SubmitResult struct {
	Outcome        string        `json:"outcome"`
	ID             int64         `json:"id,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey"`
	Status         engine.Status `json:"status"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <action>",
		Short: "Submit an admin form",
		Long: `Submit an admin form the way the dashboard would.

While the backend is reachable the submission is sent straight to it.
While it is not, submissions to local-first forms are validated, queued
in the outbox and applied to the local mirror; other forms fail.

Example:
  folio submit /dashboard/skills/new -f name=Rust -f category=Language -f proficiency=80
  folio submit /dashboard/posts/new -f title=Hello -f excerpt=Hi -f markdownContent=# --file thumbnailFile=./cover.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Fields, "field", "f", nil, "text field as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "file field as name=path (repeatable)")
	cmd.Flags().StringVar(&opts.Page, "page", "", "page the form is submitted from (default: the action's section)")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *SubmitOptions, action string) error {
	fields, err := parseFields(opts.Fields, opts.Files)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fields", err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, ok := rt.catalog.Lookup(action); !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown form action %q; see folio catalog", action))
	}

	page := opts.Page
	if page == "" {
		page = sectionPath(action)
	}

	rt.engine.Probe(ctx)
	f := opts.formatter(cmd)

	in, err := rt.engine.Intercept(ctx, engine.Submission{
		Action:   action,
		PagePath: page,
		Fields:   fields,
	})

	var verr *compiler.ValidationError
	switch {
	case err == nil:
		res := SubmitResult{Outcome: OutcomeQueued, ID: in.ID, IdempotencyKey: in.IdempotencyKey, Status: rt.engine.Status()}
		return f.Emit(res, func(w io.Writer) error {
			fmt.Fprintf(w, "Queued as %d.\n", in.ID)
			return renderStatus(w, f.palette(), res.Status)
		})
	case errors.As(err, &verr):
		_ = f.Error("INVALID", verr.Error(), verr.Problems)
		return WrapExitError(ExitFailure, "submission rejected", err)
	case engine.IsPassThrough(err):
	default:
		return WrapExitError(ExitFailure, "failed to capture submission", err)
	}

	if !rt.engine.Online() {
		return NewExitError(ExitFailure, fmt.Sprintf("backend unreachable and %s is not available offline", action))
	}

	prepared, err := rt.outbox.Prepare(model.Intent{URL: action, PagePath: page, Fields: fields})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid submission", err)
	}
	if err := rt.remote.Replay(ctx, prepared); err != nil {
		if code := remote.StatusCode(err); code != 0 {
			_ = f.Error("REJECTED", fmt.Sprintf("backend answered %d", code), err.Error())
		}
		return WrapExitError(ExitFailure, "submission failed", err)
	}

	res := SubmitResult{Outcome: OutcomeSent, IdempotencyKey: prepared.IdempotencyKey, Status: rt.engine.Status()}
	return f.Emit(res, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, f.palette().OK("Sent."))
		return err
	})
}

// parseFields turns name=value and name=path arguments into form fields,
// text fields first, each group in argument order.
func parseFields(texts, files []string) ([]model.Field, error) {
	fields := make([]model.Field, 0, len(texts)+len(files))
	for _, arg := range texts {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("field %q: want name=value", arg)
		}
		fields = append(fields, model.TextField(name, value))
	}
	for _, arg := range files {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("file %q: want name=path", arg)
		}
		field, err := readFileField(name, path)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func readFileField(name, path string) (model.Field, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Field{}, fmt.Errorf("file %s: %w", name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Field{}, fmt.Errorf("file %s: %w", name, err)
	}
	fileType := mime.TypeByExtension(filepath.Ext(path))
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	return model.FileField(name, filepath.Base(path), fileType, info.ModTime().UnixMilli(), data), nil
}

// sectionPath maps /dashboard/skills/new to /dashboard/skills.
func sectionPath(action string) string {
	parts := strings.Split(strings.Trim(action, "/"), "/")
	if len(parts) < 2 {
		return action
	}
	return "/" + parts[0] + "/" + parts[1]
}
