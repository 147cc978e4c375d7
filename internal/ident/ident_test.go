package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ProducesValidUUIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	id1 := gen.Generate()
	id2 := gen.Generate()

	parsed, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id1, id2)
}

func TestSequential_DeterministicSequence(t *testing.T) {
	gen := NewSequential("req")

	assert.Equal(t, "req-1", gen.Generate())
	assert.Equal(t, "req-2", gen.Generate())
	assert.Equal(t, "req-3", gen.Generate())
}

func TestSequential_IndependentPrefixes(t *testing.T) {
	reqs := NewSequential("req")
	acts := NewSequential("act")

	assert.Equal(t, "req-1", reqs.Generate())
	assert.Equal(t, "act-1", acts.Generate())
	assert.Equal(t, "req-2", reqs.Generate())
}
