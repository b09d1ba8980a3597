package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

func TestNameMatchesGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"kitchen*", "kitchen-light", true},
		{"kitchen*", "bedroom-light", false},
		{"*light", "kitchen-light", true},
		{"*light*", "kitchen-light-dimmer", true},
		{"kitchen-?", "kitchen-1", true},
		{"kitchen-?", "kitchen-12", false},
		{"exact", "exact", true},
		{"exact", "not-exact", false},
		{"**", "anything", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NameMatches(c.pattern, c.name), "pattern=%q name=%q", c.pattern, c.name)
	}
}

type fakeEntity struct {
	id         string
	components map[component.ComponentType]component.Component
	lastUpdate time.Time
}

func (e *fakeEntity) ID() string { return e.id }
func (e *fakeEntity) Has(t component.ComponentType) bool {
	_, ok := e.components[t]
	return ok
}
func (e *fakeEntity) Get(t component.ComponentType) (component.Component, bool) {
	c, ok := e.components[t]
	return c, ok
}
func (e *fakeEntity) ComponentCount() int   { return len(e.components) }
func (e *fakeEntity) LastUpdate() time.Time { return e.lastUpdate }

func TestEntityFilterTypeAndValue(t *testing.T) {
	now := time.Now()
	e := &fakeEntity{
		id: "e1",
		components: map[component.ComponentType]component.Component{
			component.TypeSwitch: component.Switch(true),
		},
		lastUpdate: now,
	}

	withSwitch := &EntityFilter{Kind: EFTypeFilter, TypeFilter: With(component.TypeSwitch)}
	require.True(t, withSwitch.Eval(e, now))

	withDimmer := &EntityFilter{Kind: EFTypeFilter, TypeFilter: With(component.TypeDimmer)}
	require.False(t, withDimmer.Eval(e, now))

	onCond := &EntityFilter{Kind: EFValueFilter, ValueFilter: If(component.CmpEq, component.Switch(true))}
	require.True(t, onCond.Eval(e, now))

	offCond := &EntityFilter{Kind: EFValueFilter, ValueFilter: If(component.CmpEq, component.Switch(false))}
	require.False(t, offCond.Eval(e, now))
}

func TestEntityFilterHasAllHasAny(t *testing.T) {
	now := time.Now()
	e := &fakeEntity{
		id: "e1",
		components: map[component.ComponentType]component.Component{
			component.TypeSwitch: component.Switch(true),
			component.TypeDimmer: component.Dimmer(0.5),
		},
		lastUpdate: now,
	}

	require.True(t, HasAllEntity(component.TypeSwitch, component.TypeDimmer).Eval(e, now))
	require.False(t, HasAllEntity(component.TypeSwitch, component.TypeColor).Eval(e, now))
	require.True(t, HasAnyEntity(component.TypeColor, component.TypeSwitch).Eval(e, now))
	require.False(t, HasAnyEntity(component.TypeColor, component.TypeText).Eval(e, now))
}

func TestCollectForcedTypesConjunctiveOnly(t *testing.T) {
	// Bare TypeFilter/ValueFilter and And members hoist; Any/Not/HasAny do not.
	ef := AllEntity(
		&EntityFilter{Kind: EFTypeFilter, TypeFilter: With(component.TypeSwitch)},
		&EntityFilter{Kind: EFValueFilter, ValueFilter: If(component.CmpGt, component.Dimmer(0))},
		AnyEntity(
			&EntityFilter{Kind: EFTypeFilter, TypeFilter: With(component.TypeColor)},
		),
	)

	var out []component.ComponentType
	ef.CollectForced(&out)

	assert.Contains(t, out, component.ComponentType(component.TypeSwitch))
	assert.Contains(t, out, component.ComponentType(component.TypeDimmer))
	assert.NotContains(t, out, component.ComponentType(component.TypeColor))
}

func TestQueryForcedDeviceTypesFromAllEntities(t *testing.T) {
	q := &Query{
		DeviceFilter: AllDevice(
			HasAllDevice(component.TypeOnline),
			AllEntitiesDevice(&EntityFilter{Kind: EFTypeFilter, TypeFilter: With(component.TypeSwitch)}),
		),
	}
	forced := q.ForcedDeviceTypes()
	assert.Contains(t, forced, component.ComponentType(component.TypeOnline))
	assert.Contains(t, forced, component.ComponentType(component.TypeSwitch))
}

func TestDeviceIDClauseMatch(t *testing.T) {
	d7 := tree.NewDeviceID(7, 0)
	d8 := tree.NewDeviceID(8, 0)

	c := DeviceIDClause{}
	assert.True(t, c.eval(d7))

	c = DeviceIDClause{Match: IDIs, Device: d7}
	assert.True(t, c.eval(d7))
	assert.False(t, c.eval(d8))

	c = DeviceIDClause{Match: IDIn, Devices: []tree.DeviceID{d7, d8}}
	assert.True(t, c.eval(d8))
	assert.False(t, c.eval(tree.NewDeviceID(9, 0)))
}
