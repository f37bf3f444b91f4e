package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/model"
)

func goSkillSnapshot(name string) model.Snapshot {
	s := model.EmptySnapshot()
	s.Skills = []model.Skill{{
		ID:          1,
		Name:        name,
		Slug:        "go",
		Category:    "Language",
		Proficiency: 90,
		UpdatedAt:   "2024-01-01T00:00:00.000Z",
		CreatedAt:   "2024-01-01T00:00:00.000Z",
	}}
	s.ServerUpdatedAt = "2024-01-02T00:00:00.000Z"
	return s
}

func TestHashBytesKnownValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "45h"},
		{"a", "3t1g"},
		{"\u00e9", "3sy4"},
		{"\U0001F600", "35rq0"}, // surrogate pair hashes as two code units
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, HashBytes([]byte(tt.input)))
		})
	}
}

func TestHashEmptySnapshot(t *testing.T) {
	h, err := Hash(model.EmptySnapshot())
	require.NoError(t, err)
	assert.Equal(t, "i8l2g2", h)
}

func TestHashDeterministic(t *testing.T) {
	s := goSkillSnapshot("Go")

	first := MustHash(s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MustHash(s.Clone()))
	}
	assert.Equal(t, "wukqna", first)
}

func TestHashSingleFieldEditChangesHash(t *testing.T) {
	assert.Equal(t, "gieom1", MustHash(goSkillSnapshot("Gp")))
	assert.NotEqual(t, MustHash(goSkillSnapshot("Go")), MustHash(goSkillSnapshot("Gp")))
}

func TestHashSensitiveToCollectionOrder(t *testing.T) {
	a := model.EmptySnapshot()
	a.Socials = []model.Social{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	b := a.Clone()
	b.Socials[0], b.Socials[1] = b.Socials[1], b.Socials[0]

	assert.NotEqual(t, MustHash(a), MustHash(b))
}

func TestHashDoesNotEscapeHTML(t *testing.T) {
	data, err := marshalJSON(map[string]string{"a": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>&</b>"}`, string(data))
}

func TestSeal(t *testing.T) {
	env, err := Seal(model.EmptySnapshot())
	require.NoError(t, err)
	assert.Equal(t, "i8l2g2", env.Hash)
	assert.Equal(t, model.EmptySnapshot(), env.Snapshot)
}

func TestIntentFingerprint(t *testing.T) {
	base := model.Intent{
		Method: "POST",
		URL:    "http://localhost/dashboard/skills/new",
		Meta:   &model.Meta{Entity: model.EntitySkills, Operation: model.OpCreate},
		Fields: []model.Field{
			model.TextField("name", "Rust"),
			model.FileField("thumbnail", "r.png", "image/png", 1700000000000, []byte{1, 2, 3}),
		},
	}

	fp, err := IntentFingerprint(base)
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	t.Run("ignores id, time and key", func(t *testing.T) {
		other := base
		other.ID = 42
		other.CreatedAt = 99
		other.IdempotencyKey = "k"
		fp2, err := IntentFingerprint(other)
		require.NoError(t, err)
		assert.Equal(t, fp, fp2)
	})

	t.Run("sensitive to file bytes", func(t *testing.T) {
		other := base
		other.Fields = []model.Field{
			model.TextField("name", "Rust"),
			model.FileField("thumbnail", "r.png", "image/png", 1700000000000, []byte{1, 2, 4}),
		}
		fp2, err := IntentFingerprint(other)
		require.NoError(t, err)
		assert.NotEqual(t, fp, fp2)
	})

	t.Run("sensitive to target", func(t *testing.T) {
		other := base
		other.Meta = &model.Meta{Entity: model.EntitySkills, Operation: model.OpUpdate, TargetID: model.Int64Ptr(3)}
		fp2, err := IntentFingerprint(other)
		require.NoError(t, err)
		assert.NotEqual(t, fp, fp2)
	})
}

func TestSnapshotDigestIgnoresNormalizationForm(t *testing.T) {
	composed := goSkillSnapshot("caf\u00e9")
	decomposed := goSkillSnapshot("cafe\u0301")

	d1, err := SnapshotDigest(composed)
	require.NoError(t, err)
	d2, err := SnapshotDigest(decomposed)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, MustHash(composed), MustHash(decomposed))
}
