package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/model"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	require.Len(t, c.Forms, 15)

	names := make([]string, len(c.Forms))
	for i, f := range c.Forms {
		names[i] = f.Name
	}
	assert.IsNonDecreasing(t, names)

	skill, ok := c.Lookup("/dashboard/skills/new")
	require.True(t, ok)
	assert.Equal(t, "skill_create", skill.Name)
	assert.Equal(t, model.EntitySkills, skill.Entity)
	assert.Equal(t, model.OpCreate, skill.Operation)
	assert.True(t, skill.LocalFirst)

	var proficiency model.FieldSpec
	for _, f := range skill.Fields {
		if f.Name == "proficiency" {
			proficiency = f
		}
	}
	assert.Equal(t, model.FieldTypeInt, proficiency.Type)
	assert.True(t, proficiency.Required)
	require.NotNil(t, proficiency.Min)
	require.NotNil(t, proficiency.Max)
	assert.Equal(t, int64(1), *proficiency.Min)
	assert.Equal(t, int64(100), *proficiency.Max)
}

func TestDefaultCatalog_LocalFirstFlags(t *testing.T) {
	c := MustDefaultCatalog()

	tests := []struct {
		action string
		want   bool
	}{
		{"/dashboard/profile", true},
		{"/dashboard/skills/update", true},
		{"/dashboard/skills/delete", false},
		{"/dashboard/projects/update", false},
		{"/dashboard/projects/toggle-featured", true},
		{"/dashboard/posts/toggle-published", true},
		{"/dashboard/socials/delete", true},
		{"/logout", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.LocalFirst(tt.action), tt.action)
	}
}

func TestDefaultCatalog_ProjectTypeChoices(t *testing.T) {
	c := MustDefaultCatalog()

	project, ok := c.Lookup("/dashboard/projects/new")
	require.True(t, ok)

	for _, f := range project.Fields {
		if f.Name == "projectType" {
			assert.Equal(t, []string{"mobile-app", "website", "web-app"}, f.OneOf)
			return
		}
	}
	t.Fatal("projectType field not found")
}

func TestCompileForm_Basic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		form: thing: {
			action: "/things/new"
			entity: "socials"
			operation: "create"
			fields: {
				name: {type: "string", required: true}
				rank: {type: "int", min: 0, max: 3}
			}
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileForm(v.LookupPath(cue.ParsePath("form.thing")))
	require.NoError(t, err)

	assert.Equal(t, "thing", spec.Name)
	assert.Equal(t, "/things/new", spec.Action)
	assert.True(t, spec.LocalFirst, "local-first defaults to true")
	require.Len(t, spec.Fields, 2)
	assert.Equal(t, "name", spec.Fields[0].Name)
	assert.True(t, spec.Fields[0].Required)
	assert.Equal(t, "rank", spec.Fields[1].Name)
	assert.Equal(t, int64(3), *spec.Fields[1].Max)
}

func TestCompileForm_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "missing action",
			src:     `form: x: {entity: "skills", operation: "create"}`,
			wantMsg: "action is required",
		},
		{
			name:    "unknown entity",
			src:     `form: x: {action: "/x", entity: "widgets", operation: "create"}`,
			wantMsg: `unknown entity "widgets"`,
		},
		{
			name:    "unknown operation",
			src:     `form: x: {action: "/x", entity: "skills", operation: "archive"}`,
			wantMsg: `unknown operation "archive"`,
		},
		{
			name:    "min above max",
			src:     `form: x: {action: "/x", entity: "skills", operation: "create", fields: n: {type: "int", min: 5, max: 1}}`,
			wantMsg: "min 5 exceeds max 1",
		},
		{
			name:    "field without type",
			src:     `form: x: {action: "/x", entity: "skills", operation: "create", fields: n: {required: true}}`,
			wantMsg: "type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			require.NoError(t, v.Err())

			_, err := CompileForm(v.LookupPath(cue.ParsePath("form.x")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var ce *CompileError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestCompileCatalog_DuplicateAction(t *testing.T) {
	v := cuecontext.New().CompileString(`
		form: a: {action: "/same", entity: "skills", operation: "create"}
		form: b: {action: "/same", entity: "skills", operation: "update"}
	`)
	require.NoError(t, v.Err())

	_, err := CompileCatalog(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared")
}

func TestCompileCatalog_NoForms(t *testing.T) {
	v := cuecontext.New().CompileString(`other: 1`)
	c, err := CompileCatalog(v)
	require.NoError(t, err)
	assert.Empty(t, c.Forms)
}

func TestLoadCatalogDir(t *testing.T) {
	dir := t.TempDir()
	src := `package forms

form: link_create: {
	action:    "/links/new"
	entity:    "socials"
	operation: "create"
	fields: url: {type: "url", required: true}
}

form: link_delete: {
	action:     "/links/delete"
	entity:     "socials"
	operation:  "delete"
	localFirst: false
	fields: id: {type: "int", required: true}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forms.cue"), []byte(src), 0644))

	c, err := LoadCatalogDir(dir)
	require.NoError(t, err)
	require.Len(t, c.Forms, 2)
	assert.True(t, c.LocalFirst("/links/new"))
	assert.False(t, c.LocalFirst("/links/delete"))

	f, ok := c.Lookup("/links/new")
	require.True(t, ok)
	assert.True(t, f.Fields[0].Required)
}

func TestLoadCatalogDir_SchemaViolation(t *testing.T) {
	dir := t.TempDir()
	src := `package forms

form: bad: {
	action:    "no-leading-slash"
	entity:    "socials"
	operation: "create"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forms.cue"), []byte(src), 0644))

	_, err := LoadCatalogDir(dir)
	assert.Error(t, err)
}

func TestLoadCatalogDir_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	src := `package forms

form: bad: {
	action:    "/x"
	entity:    "socials"
	operation: "create"
	colour:    "red"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forms.cue"), []byte(src), 0644))

	_, err := LoadCatalogDir(dir)
	assert.Error(t, err)
}

func TestLoadCatalogDir_Missing(t *testing.T) {
	_, err := LoadCatalogDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "entity", Message: "bad"}
	assert.Equal(t, "entity: bad", err.Error())
}
