package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/model"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [action]",
		Short: "List the admin forms folio knows about",
		Long: `List the admin form actions of the form catalog, with the entity and
operation each one changes and whether it may be captured offline.
With an action, show that form's fields.

Example:
  folio catalog
  folio catalog /dashboard/skills/new
  folio catalog --catalog-path ./forms --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, args)
		},
	}
}

func runCatalog(cmd *cobra.Command, opts *RootOptions, args []string) error {
	catalog, err := loadCatalog(opts.Config.CatalogPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load form catalog", err)
	}
	f := opts.formatter(cmd)

	if len(args) == 1 {
		spec, ok := catalog.Lookup(args[0])
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("unknown form action %q", args[0]))
		}
		return f.Emit(spec, func(w io.Writer) error {
			return renderForm(w, f.palette(), spec)
		})
	}

	return f.Emit(catalog.Forms, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tENTITY\tOPERATION\tOFFLINE")
		for _, spec := range catalog.Forms {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Action, spec.Entity, spec.Operation, yesNo(spec.LocalFirst))
		}
		return tw.Flush()
	})
}

func renderForm(w io.Writer, p *Palette, spec model.FormSpec) error {
	fmt.Fprintf(w, "%s (%s %s)\n", spec.Action, spec.Entity, spec.Operation)
	if spec.LocalFirst {
		fmt.Fprintln(w, p.OK("Captured while offline."))
	} else {
		fmt.Fprintln(w, p.Warn("Needs the backend."))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tREQUIRED\tCONSTRAINTS")
	for _, fs := range spec.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fs.Name, fs.Type, yesNo(fs.Required), constraints(fs))
	}
	return tw.Flush()
}

func constraints(fs model.FieldSpec) string {
	var parts []string
	if fs.Min != nil {
		parts = append(parts, fmt.Sprintf(">= %d", *fs.Min))
	}
	if fs.Max != nil {
		parts = append(parts, fmt.Sprintf("<= %d", *fs.Max))
	}
	if len(fs.OneOf) > 0 {
		parts = append(parts, "one of "+strings.Join(fs.OneOf, "|"))
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
