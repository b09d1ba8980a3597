package subindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightgate-labs/reactor/internal/component"
	"github.com/brightgate-labs/reactor/internal/tree"
)

func TestComponentSetInsertLookup(t *testing.T) {
	ix := New()
	key := ComponentSetKey{Device: tree.NewDeviceID(1, 0), Entity: 0, Type: component.TypeSwitch}
	ix.AddComponentSet(key, 7)
	ix.AddComponentSet(key, 9)

	got := ix.ComponentSet(key)
	assert.ElementsMatch(t, []SubID{7, 9}, got)
}

func TestUnsubscribeRemovesFromEveryBucket(t *testing.T) {
	ix := New()
	did := tree.NewDeviceID(1, 0)
	csKey := ComponentSetKey{Device: did, Entity: 0, Type: component.TypeSwitch}

	ix.AddComponentSet(csKey, 1)
	ix.AddComponentPutByType(component.TypeSwitch, 1)
	ix.AddDevice(did, 1)
	ix.AddAll(1)

	ix.Unsubscribe(1)

	assert.Empty(t, ix.ComponentSet(csKey))
	assert.Empty(t, ix.ComponentPutByType(component.TypeSwitch))
	assert.Empty(t, ix.Device(did))
	assert.Empty(t, ix.All())
}

func TestUnsubscribeOnlyAffectsOwnSubscription(t *testing.T) {
	ix := New()
	did := tree.NewDeviceID(1, 0)
	ix.AddDevice(did, 1)
	ix.AddDevice(did, 2)

	ix.Unsubscribe(1)

	assert.Equal(t, []SubID{2}, ix.Device(did))
}

func TestEmptyBucketIsRemovedAfterLastUnsubscribe(t *testing.T) {
	ix := New()
	gid := tree.NewGroupID(3, 0)
	ix.AddGroup(gid, 5)
	ix.Unsubscribe(5)

	_, exists := ix.byGroup[gid]
	assert.False(t, exists, "bucket should be pruned once empty, not left as a dangling empty map")
}
