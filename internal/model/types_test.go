package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptySnapshotSerializesArrays(t *testing.T) {
	data, err := json.Marshal(EmptySnapshot())
	require.NoError(t, err)
	assert.Equal(t,
		`{"profile":null,"skills":[],"projects":[],"posts":[],"socials":[],"serverUpdatedAt":"1970-01-01T00:00:00.000Z"}`,
		string(data))
}

func TestCloneDoesNotAlias(t *testing.T) {
	orig := Snapshot{
		Profile:  &Profile{ID: 1, FullName: "Ada"},
		Skills:   []Skill{{ID: 1, Name: "Go"}},
		Projects: []Project{{ID: 2, Title: "folio", SkillIDs: []int64{1}}},
	}

	clone := orig.Clone()
	clone.Profile.FullName = "Grace"
	clone.Skills[0].Name = "Rust"
	clone.Projects[0].SkillIDs[0] = 99

	assert.Equal(t, "Ada", orig.Profile.FullName)
	assert.Equal(t, "Go", orig.Skills[0].Name)
	assert.Equal(t, int64(1), orig.Projects[0].SkillIDs[0])
	assert.NotNil(t, clone.Posts)
	assert.NotNil(t, clone.Socials)
}

func TestIntentTargetID(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   int64
		ok     bool
	}{
		{"meta wins", Intent{Meta: &Meta{TargetID: Int64Ptr(7)}, Fields: []Field{TextField("id", "3")}}, 7, true},
		{"id field", Intent{Fields: []Field{TextField("id", " 3 ")}}, 3, true},
		{"negative id field", Intent{Fields: []Field{TextField("id", "-2")}}, -2, true},
		{"no id", Intent{Fields: []Field{TextField("name", "Go")}}, 0, false},
		{"garbage id", Intent{Fields: []Field{TextField("id", "abc")}}, 0, false},
		{"file named id ignored", Intent{Fields: []Field{FileField("id", "a.txt", "text/plain", 0, []byte("5"))}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.intent.TargetID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntentFieldAccessors(t *testing.T) {
	in := Intent{Fields: []Field{
		TextField("title", "first"),
		TextField("title", "second"),
		TextField("skillIds", "1"),
		TextField("skillIds", "x"),
		TextField("skillIds", "3"),
		TextField("featured", "on"),
	}}

	assert.Equal(t, "first", in.Text("title"))
	assert.Equal(t, "", in.Text("missing"))
	assert.True(t, in.Has("featured"))
	assert.False(t, in.Has("published"))
	assert.Equal(t, []int64{1, 3}, in.Ints("skillIds"))
	assert.Equal(t, []int64{}, in.Ints("missing"))
	assert.Equal(t, Entity(""), in.Entity())
	assert.Equal(t, Operation(""), in.Operation())
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, int64(0), ParseTime(""))
	assert.Equal(t, int64(0), ParseTime("not a date"))
	assert.Equal(t, int64(1000), ParseTime("1970-01-01T00:00:01.000Z"))
	assert.Equal(t, "1970-01-01T00:00:01.500Z", FormatTime(time.UnixMilli(1500)))
}

func TestEntityAndOperationValid(t *testing.T) {
	assert.True(t, EntitySkills.Valid())
	assert.False(t, Entity("widgets").Valid())
	assert.True(t, OpTogglePublished.Valid())
	assert.False(t, Operation("archive").Valid())
}

func TestCatalogLookup(t *testing.T) {
	c := &Catalog{Forms: []FormSpec{{Name: "skill-create", Action: "/dashboard/skills/new"}}}
	f, ok := c.Lookup("/dashboard/skills/new")
	require.True(t, ok)
	assert.Equal(t, "skill-create", f.Name)

	_, ok = c.Lookup("/elsewhere")
	assert.False(t, ok)

	var nilCatalog *Catalog
	_, ok = nilCatalog.Lookup("/dashboard/skills/new")
	assert.False(t, ok)
}

func TestCatalogLocalFirst(t *testing.T) {
	c := &Catalog{Forms: []FormSpec{
		{Action: "/dashboard/skills/new", Entity: EntitySkills, Operation: OpCreate, LocalFirst: true},
		{Action: "/dashboard/skills/delete", Entity: EntitySkills, Operation: OpDelete},
	}}

	assert.True(t, c.LocalFirst("/dashboard/skills/new"))
	assert.False(t, c.LocalFirst("/dashboard/skills/delete"))
	assert.False(t, c.LocalFirst("/unknown"))

	assert.Equal(t, &Meta{Entity: EntitySkills, Operation: OpCreate}, c.Forms[0].Meta())
}
