package model

// Field types understood by the form catalog.
const (
	FieldTypeString = "string"
	FieldTypeInt    = "int"
	FieldTypeBool   = "bool"
	FieldTypeInts   = "ints"
	FieldTypeURL    = "url"
	FieldTypeEmail  = "email"
	FieldTypeFile   = "file"
)

// FormSpec is a compiled form catalog entry. It describes one admin form
// action and whether submissions to it may be captured while offline.
type FormSpec struct {
	Name       string      `json:"name"`
	Action     string      `json:"action"`
	Entity     Entity      `json:"entity"`
	Operation  Operation   `json:"operation"`
	LocalFirst bool        `json:"localFirst"`
	Fields     []FieldSpec `json:"fields"`
}

// Meta returns the intent metadata for a submission to this form.
func (f FormSpec) Meta() *Meta {
	return &Meta{Entity: f.Entity, Operation: f.Operation}
}

// FieldSpec describes one form field. Type is one of the FieldType constants.
type FieldSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Min      *int64   `json:"min,omitempty"`
	Max      *int64   `json:"max,omitempty"`
	OneOf    []string `json:"oneOf,omitempty"`
}

// Catalog indexes form specs by action path.
type Catalog struct {
	Forms []FormSpec `json:"forms"`
}

// Lookup returns the form registered for an action path.
func (c *Catalog) Lookup(action string) (FormSpec, bool) {
	if c == nil {
		return FormSpec{}, false
	}
	for _, f := range c.Forms {
		if f.Action == action {
			return f, true
		}
	}
	return FormSpec{}, false
}

// LocalFirst reports whether submissions to action may be captured offline.
func (c *Catalog) LocalFirst(action string) bool {
	f, ok := c.Lookup(action)
	return ok && f.LocalFirst
}
