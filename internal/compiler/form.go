// Package compiler builds the form catalog from CUE.
//
// The catalog declares every admin form action: which entity and operation
// a submission performs, whether it may be captured while offline, and the
// typed fields it carries. Catalog files are unified with an embedded CUE
// schema before compilation, so structural mistakes are reported with CUE
// source positions.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/folio/internal/model"
)

// CompileForm parses a CUE value into a FormSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the form struct itself, e.g.:
//
//	v := value.LookupPath(cue.ParsePath("form.skill_create"))
//	spec, err := CompileForm(v)
func CompileForm(v cue.Value) (*model.FormSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &model.FormSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var err error
	if spec.Action, err = requiredString(v, "action"); err != nil {
		return nil, err
	}
	entity, err := requiredString(v, "entity")
	if err != nil {
		return nil, err
	}
	spec.Entity = model.Entity(entity)
	if !spec.Entity.Valid() {
		return nil, &CompileError{Field: "entity", Message: fmt.Sprintf("unknown entity %q", entity), Pos: v.Pos()}
	}

	op, err := requiredString(v, "operation")
	if err != nil {
		return nil, err
	}
	spec.Operation = model.Operation(op)
	if !spec.Operation.Valid() {
		return nil, &CompileError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", op), Pos: v.Pos()}
	}

	spec.LocalFirst = true
	if lf := v.LookupPath(cue.ParsePath("localFirst")); lf.Exists() {
		lf, _ = lf.Default()
		b, err := lf.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.LocalFirst = b
	}

	spec.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// parseFields extracts field declarations in declaration order.
func parseFields(v cue.Value) ([]model.FieldSpec, error) {
	fields := []model.FieldSpec{}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return fields, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		fv := iter.Value()
		f := model.FieldSpec{Name: iter.Label()}

		if f.Type, err = requiredString(fv, "type"); err != nil {
			return nil, err
		}

		if rv := fv.LookupPath(cue.ParsePath("required")); rv.Exists() {
			rv, _ = rv.Default()
			if f.Required, err = rv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		if f.Min, err = optionalInt(fv, "min"); err != nil {
			return nil, err
		}
		if f.Max, err = optionalInt(fv, "max"); err != nil {
			return nil, err
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return nil, &CompileError{
				Field:   "fields." + f.Name,
				Message: fmt.Sprintf("min %d exceeds max %d", *f.Min, *f.Max),
				Pos:     fv.Pos(),
			}
		}

		if ov := fv.LookupPath(cue.ParsePath("oneOf")); ov.Exists() {
			list, err := ov.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for list.Next() {
				s, err := list.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				f.OneOf = append(f.OneOf, s)
			}
		}

		fields = append(fields, f)
	}

	return fields, nil
}

func optionalInt(v cue.Value, field string) (*int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &n, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
