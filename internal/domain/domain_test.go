package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Destination{ID: "1@g.us", Name: "Turma A"}.Valid())

	err := Destination{ID: " ", Name: ""}.Valid()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "invalid id,name: required", err.Error())
}

func TestDedupKeepsFirst(t *testing.T) {
	t.Parallel()

	in := []Destination{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "a", Name: "A2"}}
	out, changed := Dedup(in)
	assert.True(t, changed)
	assert.Equal(t, []Destination{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, out)

	_, changed = Dedup(out)
	assert.False(t, changed)
	assert.Equal(t, 1, IndexOf(out, "b"))
	assert.Equal(t, -1, IndexOf(out, "z"))
}
