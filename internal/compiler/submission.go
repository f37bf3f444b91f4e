package compiler

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/folio/internal/model"
)

// FieldProblem describes one rejected field of a submission.
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every problem found in a submission.
type ValidationError struct {
	Form     string         `json:"form"`
	Problems []FieldProblem `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("form %s: %s", e.Form, strings.Join(parts, "; "))
}

// ValidateSubmission checks submitted fields against a form spec.
// Fields not declared by the form are ignored. Returns nil or a
// *ValidationError.
func ValidateSubmission(spec model.FormSpec, fields []model.Field) error {
	var problems []FieldProblem
	add := func(name, msg string) {
		problems = append(problems, FieldProblem{Field: name, Message: msg})
	}

	for _, fs := range spec.Fields {
		if fs.Type == model.FieldTypeFile {
			if fs.Required && !hasFile(fields, fs.Name) {
				add(fs.Name, "is required")
			}
			continue
		}

		values := textValues(fields, fs.Name)
		if fs.Required && !anyNonEmpty(values) {
			add(fs.Name, "is required")
			continue
		}

		for _, raw := range values {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if msg := checkValue(fs, value); msg != "" {
				add(fs.Name, msg)
				break
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Form: spec.Name, Problems: problems}
}

func checkValue(fs model.FieldSpec, value string) string {
	switch fs.Type {
	case model.FieldTypeInt, model.FieldTypeInts:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "must be an integer"
		}
		if fs.Min != nil && n < *fs.Min {
			return fmt.Sprintf("must be at least %d", *fs.Min)
		}
		if fs.Max != nil && n > *fs.Max {
			return fmt.Sprintf("must be at most %d", *fs.Max)
		}
	case model.FieldTypeURL:
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
			return "must be a valid url"
		}
	case model.FieldTypeEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return "must be a valid email address"
		}
	}

	if len(fs.OneOf) > 0 && !slices.Contains(fs.OneOf, value) {
		return "must be one of " + strings.Join(fs.OneOf, ", ")
	}
	return ""
}

func textValues(fields []model.Field, name string) []string {
	var out []string
	for _, f := range fields {
		if f.Name == name && f.Kind != model.FieldFile {
			out = append(out, f.Value)
		}
	}
	return out
}

func anyNonEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func hasFile(fields []model.Field, name string) bool {
	for _, f := range fields {
		if f.Name == name && f.Kind == model.FieldFile && len(f.Blob) > 0 {
			return true
		}
	}
	return false
}
