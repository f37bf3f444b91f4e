package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/model"
)

func TestSequentialKeys(t *testing.T) {
	var g SequentialKeys
	assert.Equal(t, "key-0001", g.Generate())
	assert.Equal(t, "key-0002", g.Generate())
}

func TestNewEnv(t *testing.T) {
	env := NewEnv(t)

	env1, err := env.Remote.FetchSnapshot(t.Context())
	require.NoError(t, err)
	assert.Len(t, env1.Snapshot.Skills, 2)
	assert.Equal(t, ServerEpoch.Format("2006-01-02T15:04:05.000Z"), env1.Snapshot.ServerUpdatedAt)

	queued, err := env.Outbox.Enqueue(t.Context(), model.Intent{URL: "/dashboard/socials/delete"})
	require.NoError(t, err)
	assert.Equal(t, ClientEpoch.UnixMilli(), queued.CreatedAt)
	assert.Equal(t, "key-0001", queued.IdempotencyKey)
}

func TestNewEnv_Seed(t *testing.T) {
	env := NewEnv(t, WithSeed(model.EmptySnapshot()))
	assert.Nil(t, env.Backend.Snapshot().Profile)
}
