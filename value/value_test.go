package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/value"
)

func TestLenBoundaries(t *testing.T) {
	assert.Equal(t, 0, value.Vector().Len())
	assert.Equal(t, 4, value.Vector(value.Int(1), value.Int(2), value.Int(3), value.Int(4)).Len())
	assert.Equal(t, 5, value.Str("hello").Len())

	m := value.EmptyMap().Set(value.StringKey("a"), value.Int(1)).Set(value.StringKey("b"), value.Int(2))
	assert.Equal(t, 2, m.Len())
}

func TestMapPreservesInsertionOrderAndUniqueness(t *testing.T) {
	m := value.EmptyMap().
		Set(value.StringKey("a"), value.Int(1)).
		Set(value.StringKey("b"), value.Int(2)).
		Set(value.StringKey("a"), value.Int(3))

	require.Equal(t, 2, m.MapLen())
	keys := m.MapKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, value.StringKey("a"), keys[0])
	v, ok := m.MapGet(value.StringKey("a"))
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt())
}

func TestEqual(t *testing.T) {
	assert.True(t, value.Equal(value.Int(1), value.Int(1)))
	assert.False(t, value.Equal(value.Int(1), value.Float(1)))
	assert.True(t, value.Equal(value.Vector(value.Int(1), value.Int(2)), value.Vector(value.Int(1), value.Int(2))))
	assert.False(t, value.Equal(value.Vector(value.Int(1)), value.Vector(value.Int(1), value.Int(2))))
}

func TestAtomIsSharedMutableCell(t *testing.T) {
	a := value.NewAtom(value.Int(1))
	av := value.AtomValue(a)
	a.Reset(value.Int(2))
	assert.Equal(t, int64(2), av.AsAtom().Deref().AsInt())
}

func TestKeywordColonStrippedOnJSONRoundTrip(t *testing.T) {
	kw := value.Kw("status")
	j, err := value.ToJSON(kw)
	require.NoError(t, err)
	assert.Equal(t, "status", j)
}
