package variables

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	attrs map[string]Value
	err   error
}

func (s staticSource) Attributes() (map[string]Value, error) {
	return s.attrs, s.err
}

func TestStorageGet(t *testing.T) {
	s := New()
	s.Set("voltage", Number(230))

	v, err := s.Get("voltage")
	require.NoError(t, err)
	f, ok := v.Float()
	require.True(t, ok)
	assert.Equal(t, 230.0, f)

	_, err = s.Get("missing_var")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownVariable))

	var unknown *UnknownVariableError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing_var", unknown.Name)
}

func TestStorageLoad(t *testing.T) {
	unit := staticSource{attrs: map[string]Value{
		"voltage":   Number(231),
		"frequency": Number(50),
		"state":     Text("unit"),
	}}
	module := staticSource{attrs: map[string]Value{
		"state": Text("on"),
		"relay": Bool(true),
	}}

	t.Run("ModuleShadowsUnit", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Load(unit, module))

		assert.Equal(t, []string{"frequency", "relay", "state", "voltage"}, s.Names())
		v, err := s.Get("state")
		require.NoError(t, err)
		assert.Equal(t, "on", v.String())
	})

	t.Run("StaleValuesDoNotLeak", func(t *testing.T) {
		s := New()
		s.Set("leftover", Number(1))
		require.NoError(t, s.Load(unit, nil))

		_, err := s.Get("leftover")
		assert.ErrorIs(t, err, ErrUnknownVariable)
		assert.Equal(t, 3, s.Len())
	})

	t.Run("SourceErrorEmptiesStorage", func(t *testing.T) {
		s := New()
		boom := errors.New("module offline")
		err := s.Load(unit, staticSource{err: boom})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, s.Len())
	})
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "49.5", Number(49.5).String())
	assert.Equal(t, "1", Bool(true).String())
	assert.Equal(t, "eco", Text("eco").String())
	assert.Equal(t, KindText, Text("x").Kind())

	_, ok := Text("x").Float()
	assert.False(t, ok)
}
