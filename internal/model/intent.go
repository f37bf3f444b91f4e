package model

import (
	"strconv"
	"strings"
)

// Entity names a mirrored collection.
type Entity string

const (
	EntityProfile  Entity = "profile"
	EntitySkills   Entity = "skills"
	EntityProjects Entity = "projects"
	EntityPosts    Entity = "posts"
	EntitySocials  Entity = "socials"
)

// Entities lists every known entity in snapshot order.
var Entities = []Entity{EntityProfile, EntitySkills, EntityProjects, EntityPosts, EntitySocials}

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	for _, known := range Entities {
		if e == known {
			return true
		}
	}
	return false
}

// Operation names the kind of write an intent performs.
type Operation string

const (
	OpUpsert          Operation = "upsert"
	OpCreate          Operation = "create"
	OpUpdate          Operation = "update"
	OpDelete          Operation = "delete"
	OpToggleFeatured  Operation = "toggle_featured"
	OpTogglePublished Operation = "toggle_published"
)

// Operations lists every known operation.
var Operations = []Operation{OpUpsert, OpCreate, OpUpdate, OpDelete, OpToggleFeatured, OpTogglePublished}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	for _, known := range Operations {
		if o == known {
			return true
		}
	}
	return false
}

// Meta identifies what an intent affects. Every field is optional; intents
// with missing or unknown metadata are carried and replayed but never
// applied to the mirror.
type Meta struct {
	Entity    Entity    `json:"entity,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	TargetID  *int64    `json:"targetId,omitempty"`
}

// FieldKind distinguishes text fields from file uploads.
type FieldKind string

const (
	FieldText FieldKind = "text"
	FieldFile FieldKind = "file"
)

// Field is one captured form field. Text fields use Value; file fields use
// Blob, FileName, FileType and LastModified.
type Field struct {
	Name         string    `json:"name"`
	Kind         FieldKind `json:"kind"`
	Value        string    `json:"value,omitempty"`
	Blob         []byte    `json:"blob,omitempty"`
	FileName     string    `json:"fileName,omitempty"`
	FileType     string    `json:"fileType,omitempty"`
	LastModified int64     `json:"lastModified,omitempty"`
}

// TextField builds a text field.
func TextField(name, value string) Field {
	return Field{Name: name, Kind: FieldText, Value: value}
}

// FileField builds a file field.
func FileField(name, fileName, fileType string, lastModified int64, blob []byte) Field {
	return Field{
		Name:         name,
		Kind:         FieldFile,
		Blob:         blob,
		FileName:     fileName,
		FileType:     fileType,
		LastModified: lastModified,
	}
}

// Intent is one captured form submission waiting to be replayed.
type Intent struct {
	ID             int64   `json:"id"`
	Method         string  `json:"method"`
	URL            string  `json:"url"`
	PagePath       string  `json:"pagePath"`
	CreatedAt      int64   `json:"createdAt"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
	Meta           *Meta   `json:"meta,omitempty"`
	Fields         []Field `json:"fields"`
}

// Text returns the value of the first text field with the given name,
// or "" when there is none.
func (i Intent) Text(name string) string {
	for _, f := range i.Fields {
		if f.Name == name && f.Kind == FieldText {
			return f.Value
		}
	}
	return ""
}

// Has reports whether a text field with the given name was submitted.
// Checkboxes are submitted only when checked.
func (i Intent) Has(name string) bool {
	for _, f := range i.Fields {
		if f.Name == name && f.Kind == FieldText {
			return true
		}
	}
	return false
}

// Ints returns every text field with the given name that parses as an integer.
func (i Intent) Ints(name string) []int64 {
	out := []int64{}
	for _, f := range i.Fields {
		if f.Name != name || f.Kind != FieldText {
			continue
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(f.Value), 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Entity returns the metadata entity, or "" when absent.
func (i Intent) Entity() Entity {
	if i.Meta == nil {
		return ""
	}
	return i.Meta.Entity
}

// Operation returns the metadata operation, or "" when absent.
func (i Intent) Operation() Operation {
	if i.Meta == nil {
		return ""
	}
	return i.Meta.Operation
}

// TargetID resolves the record an intent addresses: the metadata target,
// else a numeric "id" form field. ok is false for creations.
func (i Intent) TargetID() (id int64, ok bool) {
	if i.Meta != nil && i.Meta.TargetID != nil {
		return *i.Meta.TargetID, true
	}
	raw := strings.TrimSpace(i.Text("id"))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 {
	return &n
}
