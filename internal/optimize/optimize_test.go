package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/query"
)

func TestDeviceFlattenDedupeSingleton(t *testing.T) {
	nested := query.AllDevice(
		query.AllDevice(
			&query.DeviceFilter{Kind: query.DFNameEquals, Name: "a"},
			&query.DeviceFilter{Kind: query.DFNameEquals, Name: "a"},
		),
		&query.DeviceFilter{Kind: query.DFNameEquals, Name: "a"},
	)
	got := Device(nested)
	require.NotNil(t, got)
	// Flatten + dedupe collapses the three identical leaves into one,
	// then singleton normalization unwraps the remaining And.
	assert.Equal(t, query.DFNameEquals, got.Kind)
	assert.Equal(t, "a", got.Name)
}

func TestDeviceEmptyFold(t *testing.T) {
	empty := query.AllDevice()
	got := Device(empty)
	assert.Nil(t, got)
}

func TestTypeNotSimplification(t *testing.T) {
	notWith := query.NotType(query.With(component.TypeSwitch))
	got := Type(notWith)
	require.NotNil(t, got)
	assert.Equal(t, query.TFWithout, got.Kind)
	assert.Equal(t, component.TypeSwitch, got.Type)

	notWithout := query.NotType(query.Without(component.TypeSwitch))
	got = Type(notWithout)
	require.NotNil(t, got)
	assert.Equal(t, query.TFWith, got.Kind)

	doubleNot := query.NotType(query.NotType(query.With(component.TypeSwitch)))
	got = Type(doubleNot)
	require.NotNil(t, got)
	assert.Equal(t, query.TFWith, got.Kind)
}

func TestDeviceCostReorder(t *testing.T) {
	expensive := &query.DeviceFilter{Kind: query.DFNameMatches, Glob: "*"}
	cheap := &query.DeviceFilter{Kind: query.DFEntityCount, EntityCount: query.CmpClause{Op: component.CmpGte, Value: 1}}
	tree := query.AnyDevice(expensive, cheap)

	got := Device(tree)
	require.NotNil(t, got)
	require.Equal(t, query.DFAny, got.Kind)
	require.Len(t, got.Children, 2)
	assert.Equal(t, query.DFEntityCount, got.Children[0].Kind, "cheap child should sort first")
	assert.Equal(t, query.DFNameMatches, got.Children[1].Kind)
}

func TestHoistRequiredTypeInstallsHasAll(t *testing.T) {
	q := &query.Query{
		Action:       query.ActionGet,
		Target:       query.Components(component.TypeSwitch),
		DeviceFilter: &query.DeviceFilter{Kind: query.DFNameEquals, Name: "kitchen"},
	}
	out := Query(q)
	require.NotNil(t, out.DeviceFilter)

	forced := out.ForcedDeviceTypes()
	assert.Contains(t, forced, component.ComponentType(component.TypeSwitch))

	entityForced := out.ForcedEntityTypes()
	assert.Contains(t, entityForced, component.ComponentType(component.TypeSwitch))
}

func TestHoistRequiredTypeIdempotent(t *testing.T) {
	q := &query.Query{
		Action: query.ActionCount,
		Target: query.Components(component.TypeDimmer),
		DeviceFilter: query.AnyDevice(
			&query.DeviceFilter{Kind: query.DFNameEquals, Name: "a"},
			&query.DeviceFilter{Kind: query.DFNameEquals, Name: "b"},
		),
	}
	once := Query(q)
	twice := Query(once)
	assert.Equal(t, once.ForcedDeviceTypes(), twice.ForcedDeviceTypes())
}
