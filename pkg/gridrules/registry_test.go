package gridrules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

func TestRegistry(t *testing.T) {
	unit := NewUnit("unit-1")
	r := NewRegistry(unit)

	require.NoError(t, r.AddModule(NewModule("b")))
	require.NoError(t, r.AddModule(NewModule("a")))
	assert.ErrorIs(t, r.AddModule(NewModule("a")), ErrDuplicateModule)
	assert.ErrorIs(t, r.AddModule(NewModule("unit-1")), ErrDuplicateModule)

	ids := func() []string {
		var out []string
		for _, o := range r.Owners() {
			out = append(out, o.ID())
		}
		return out
	}
	assert.Equal(t, []string{"unit-1", "b", "a"}, ids())

	owner, err := r.Owner("a")
	require.NoError(t, err)
	assert.Equal(t, ModuleOwner, owner.Kind())

	owner, err = r.Owner("unit-1")
	require.NoError(t, err)
	assert.Equal(t, UnitOwner, owner.Kind())

	_, err = r.Owner("zzz")
	assert.ErrorIs(t, err, ErrUnknownOwner)

	require.NoError(t, r.RemoveModule("b"))
	assert.ErrorIs(t, r.RemoveModule("b"), ErrUnknownOwner)
	assert.Equal(t, []string{"unit-1", "a"}, ids())
	assert.Len(t, r.Modules(), 1)
}

func TestUnitReadings(t *testing.T) {
	u := NewUnit("u")

	attrs, err := u.Attributes()
	require.NoError(t, err)
	assert.Len(t, attrs, len(UnitQuantities))

	require.NoError(t, u.SetReadings(map[string]float64{Voltage: 231.5, PowerFactor: 0.92}))
	assert.False(t, u.Updated().IsZero())

	err = u.SetReadings(map[string]float64{Voltage: 1, "humidity": 40})
	assert.ErrorIs(t, err, ErrUnknownQuantity)
	assert.Equal(t, 231.5, u.Readings()[Voltage], "a rejected update changes nothing")

	attrs, err = u.Attributes()
	require.NoError(t, err)
	f, ok := attrs[Voltage].Float()
	require.True(t, ok)
	assert.Equal(t, 231.5, f)
}

func TestModuleAttributes(t *testing.T) {
	m := NewModule("relay-1")
	m.SetState(ModuleState{Enabled: true, Relay: false, Load: 0.5, Temperature: 41, Mode: "eco"})
	m.Update(func(s *ModuleState) { s.Relay = true })

	attrs, err := m.Attributes()
	require.NoError(t, err)
	assert.Equal(t, variables.Number(1), attrs["state"])
	assert.Equal(t, variables.Number(1), attrs["relay"])
	assert.Equal(t, variables.Number(41), attrs["temperature"])
	assert.Equal(t, variables.Text("eco"), attrs["mode"])

	m.SetFault(errUnreachable)
	_, err = m.Attributes()
	assert.ErrorIs(t, err, errUnreachable)

	m.SetFault(nil)
	_, err = m.Attributes()
	assert.NoError(t, err)
}
