package compiler

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/folio/internal/model"
)

//go:embed catalog/schema.cue catalog/forms.cue
var catalogFS embed.FS

// DefaultCatalog compiles the built-in form catalog.
func DefaultCatalog() (*model.Catalog, error) {
	ctx := cuecontext.New()
	schema, err := compileEmbedded(ctx, "catalog/schema.cue")
	if err != nil {
		return nil, err
	}
	forms, err := compileEmbedded(ctx, "catalog/forms.cue")
	if err != nil {
		return nil, err
	}
	return CompileCatalog(schema.Unify(forms))
}

// MustDefaultCatalog is DefaultCatalog for callers that cannot proceed
// without it. Panics if the embedded catalog does not compile.
func MustDefaultCatalog() *model.Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("compile embedded catalog: %v", err))
	}
	return c
}

// LoadCatalogDir loads the CUE package in dir, checks it against the
// catalog schema and compiles it.
func LoadCatalogDir(dir string) (*model.Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load catalog: no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load catalog: %w", formatCUEError(inst.Err))
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("build catalog: %w", formatCUEError(err))
	}

	schema, err := compileEmbedded(ctx, "catalog/schema.cue")
	if err != nil {
		return nil, err
	}
	return CompileCatalog(schema.Unify(value))
}

// CompileCatalog compiles every entry under the top-level "form" field.
// Action paths must be unique.
func CompileCatalog(v cue.Value) (*model.Catalog, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	catalog := &model.Catalog{Forms: []model.FormSpec{}}

	formsVal := v.LookupPath(cue.ParsePath("form"))
	if !formsVal.Exists() {
		return catalog, nil
	}

	iter, err := formsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	seen := map[string]string{}
	for iter.Next() {
		spec, err := CompileForm(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", iter.Label(), err)
		}
		if other, dup := seen[spec.Action]; dup {
			return nil, &CompileError{
				Field:   "form." + spec.Name + ".action",
				Message: fmt.Sprintf("action %s already declared by form %s", spec.Action, other),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[spec.Action] = spec.Name
		catalog.Forms = append(catalog.Forms, *spec)
	}

	sort.SliceStable(catalog.Forms, func(i, j int) bool {
		return catalog.Forms[i].Name < catalog.Forms[j].Name
	})
	return catalog, nil
}

func compileEmbedded(ctx *cue.Context, name string) (cue.Value, error) {
	data, err := catalogFS.ReadFile(name)
	if err != nil {
		return cue.Value{}, fmt.Errorf("read %s: %w", name, err)
	}
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}
