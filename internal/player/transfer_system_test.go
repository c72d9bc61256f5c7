package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

const (
	wood  catalog.ResourceID = 1
	stone catalog.ResourceID = 2
)

type fixture struct {
	cat       *catalog.Catalog
	scheduler *transfer.Manager
	player    *Model
	system    *TransferSystem
	store     *storage.Model
}

func newFixture(t *testing.T, inventoryCap int, seconds float64) *fixture {
	t.Helper()
	cat := catalog.MustNew(
		catalog.ResourceDef{ID: wood, Key: "wood"},
		catalog.ResourceDef{ID: stone, Key: "stone"},
	)
	f := &fixture{
		cat:       cat,
		scheduler: transfer.NewManager(),
		player:    NewModel(storage.NewModel("player", cat, inventoryCap)),
		store:     storage.NewModel("store", cat, 10),
	}
	f.system = NewTransferSystem(f.player, cat, f.scheduler, f.scheduler, seconds, seconds)
	t.Cleanup(f.system.Close)
	return f
}

func (f *fixture) tick(dt float64) {
	f.scheduler.Tick(dt)
	f.system.Tick(dt)
}

func fillN(t *testing.T, c storage.Container, id catalog.ResourceID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, storage.TryAddInstant(c, id))
	}
}

func TestPickupStreamsOneUnitAtATime(t *testing.T) {
	f := newFixture(t, 10, 0.25)
	fillN(t, f.store, wood, 3)

	var tags []any
	f.scheduler.Started().Subscribe(func(e transfer.Started) { tags = append(tags, e.Tag) })

	f.system.EnterStorage(f.store, Output, nil)
	f.tick(0.25)
	assert.Equal(t, 1, f.scheduler.Len())

	for i := 0; i < 8; i++ {
		f.tick(0.25)
	}

	assert.Equal(t, 3, f.player.Inventory().Count(wood))
	assert.Equal(t, 0, f.store.Count(wood))
	assert.Equal(t, []any{Tag, Tag, Tag}, tags)
	_, active := f.system.Active()
	assert.False(t, active)
}

func TestExitingZoneCancelsPickup(t *testing.T) {
	f := newFixture(t, 10, 1)
	fillN(t, f.store, wood, 2)

	f.system.EnterStorage(f.store, Output, nil)
	f.tick(0.1)
	id, active := f.system.Active()
	require.True(t, active)
	assert.Equal(t, 1, f.store.Count(wood))

	var finished []transfer.Finished
	f.scheduler.Finished().Subscribe(func(e transfer.Finished) { finished = append(finished, e) })

	f.tick(0.5)
	f.system.ExitStorage(f.store)

	assert.Equal(t, []transfer.Finished{{ID: id, Status: transfer.Cancelled}}, finished)
	assert.Equal(t, 2, f.store.Count(wood))
	assert.Equal(t, 0, f.player.Inventory().Total())
	assert.Equal(t, 10, f.player.Inventory().FreeSpace())
	_, _, inZone := f.system.Zone()
	assert.False(t, inZone)

	f.tick(5)
	assert.Equal(t, 0, f.player.Inventory().Total())
}

func TestExitOtherZoneIsIgnored(t *testing.T) {
	f := newFixture(t, 10, 1)
	fillN(t, f.store, wood, 1)
	other := storage.NewModel("other", f.cat, 1)

	f.system.EnterStorage(f.store, Output, nil)
	f.tick(0.1)
	f.system.ExitStorage(other)

	_, active := f.system.Active()
	assert.True(t, active)
}

func TestDropRespectsFilter(t *testing.T) {
	f := newFixture(t, 10, 0.5)
	fillN(t, f.player.Inventory(), wood, 2)
	fillN(t, f.player.Inventory(), stone, 2)

	f.system.EnterStorage(f.store, Input, storage.AllowOnly(stone))
	for i := 0; i < 10; i++ {
		f.tick(0.5)
	}

	assert.Equal(t, 2, f.store.Count(stone))
	assert.Equal(t, 0, f.store.Count(wood))
	assert.Equal(t, 2, f.player.Inventory().Count(wood))
}

func TestPickupRespectsFilter(t *testing.T) {
	f := newFixture(t, 10, 0.5)
	fillN(t, f.store, wood, 1)
	fillN(t, f.store, stone, 1)

	f.system.EnterStorage(f.store, Output, storage.AllowOnly(stone))
	for i := 0; i < 6; i++ {
		f.tick(0.5)
	}

	assert.Equal(t, 1, f.player.Inventory().Count(stone))
	assert.Equal(t, 0, f.player.Inventory().Count(wood))
}

func TestFullInventoryPicksNothing(t *testing.T) {
	f := newFixture(t, 1, 0.5)
	fillN(t, f.player.Inventory(), stone, 1)
	fillN(t, f.store, wood, 1)

	f.system.EnterStorage(f.store, Output, nil)
	f.tick(0.5)

	_, active := f.system.Active()
	assert.False(t, active)
	assert.Equal(t, 0, f.scheduler.Len())
}

func TestInstantDurationsDoNotStick(t *testing.T) {
	f := newFixture(t, 10, 0)
	fillN(t, f.store, wood, 2)

	f.system.EnterStorage(f.store, Output, nil)
	f.tick(0.01)
	f.tick(0.01)
	f.tick(0.01)

	// floored durations complete on the following scheduler tick
	assert.Equal(t, 2, f.player.Inventory().Count(wood))
}

func TestStorageRoleString(t *testing.T) {
	assert.Equal(t, "Input", Input.String())
	assert.Equal(t, "Output", Output.String())
	assert.Equal(t, "Unknown", StorageRole(5).String())
}
