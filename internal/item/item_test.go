package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	entries := make([]ItemCatalogEntry, 18)
	entries[17] = ItemCatalogEntry{
		Name:          "Test Sword",
		Type:          TypeWeapon,
		RequiredClass: ClassAny,
		BasePrice:     1000,
		BaseSellPrice: 600,
		Stackable:     false,
		Refinable:     true,
	}
	return &Catalog{entries: entries}
}

// TestPriceMatchesSeedScenario covers SPEC_FULL.md seed scenario 6:
// catalogue item id=17, price=1000, sell_price=600, stackable=false,
// refinable=true; price(new_item(17, 1, refine=3, luck=true, option=2),
// selling=false) = 1000 * 1.6 * 1.3 * 1.5 = 3120.
func TestPriceMatchesSeedScenario(t *testing.T) {
	cat := testCatalog()
	it := NewItem(cat, 17, 1, 3, true, 2)

	require.Equal(t, uint32(3120), Price(cat, it, false))
}

func TestNewItemUnknownIDReturnsEmpty(t *testing.T) {
	cat := testCatalog()
	it := NewItem(cat, 9999, 1, 0, false, 0)
	assert.True(t, it.IsEmpty(), "expected empty item for unknown catalogue id")
}

func TestNewItemZeroIDReturnsEmpty(t *testing.T) {
	cat := testCatalog()
	it := NewItem(cat, 0, 1, 0, false, 0)
	assert.True(t, it.IsEmpty(), "expected empty item for id 0")
}

func TestNewItemClampsStackAmount(t *testing.T) {
	entries := make([]ItemCatalogEntry, 2)
	entries[1] = ItemCatalogEntry{Stackable: true}
	cat := &Catalog{entries: entries}

	it := NewItem(cat, 1, 5000, 0, false, 0)
	assert.Equal(t, uint16(maxStackAmount), it.Amount)

	it2 := NewItem(cat, 1, 0, 0, false, 0)
	assert.Equal(t, uint16(1), it2.Amount, "amount should be clamped to minimum of 1")
}

func TestNewItemNonRefinableIgnoresRefineLuckOption(t *testing.T) {
	entries := make([]ItemCatalogEntry, 2)
	entries[1] = ItemCatalogEntry{Refinable: false}
	cat := &Catalog{entries: entries}

	it := NewItem(cat, 1, 1, 10, true, 5)
	assert.Zero(t, it.Refine)
	assert.False(t, it.Luck)
	assert.Zero(t, it.Option)
}

func TestComputeMaxDurabilityFallback(t *testing.T) {
	entries := make([]ItemCatalogEntry, 3)
	entries[1] = ItemCatalogEntry{Type: TypeWeapon}
	entries[2] = ItemCatalogEntry{Type: TypeMisc}
	cat := &Catalog{entries: entries}

	weapon := NewItem(cat, 1, 1, 0, false, 0)
	require.Equal(t, uint32(fallbackDurability), weapon.MaxDurability)

	misc := NewItem(cat, 2, 1, 0, false, 0)
	assert.Zero(t, misc.MaxDurability)
}

func TestRefinedValueMonotoneAndSaturates(t *testing.T) {
	prev := RefinedValue(100, 0)
	for r := uint8(1); r <= 15; r++ {
		cur := RefinedValue(100, r)
		assert.GreaterOrEqualf(t, cur, prev, "refined value not monotone at refine=%d", r)
		prev = cur
	}

	assert.Equal(t, uint16(65535), RefinedValue(65535, 15), "RefinedValue should saturate at uint16 max")
}

func TestCanEquipAnySentinel(t *testing.T) {
	entries := make([]ItemCatalogEntry, 2)
	entries[1] = ItemCatalogEntry{RequiredClass: ClassAny}
	cat := &Catalog{entries: entries}

	assert.True(t, CanEquip(cat, 1, 42), "expected any-class item equippable by any class")
}

func TestMeetsRequirements(t *testing.T) {
	entries := make([]ItemCatalogEntry, 2)
	entries[1] = ItemCatalogEntry{RequiredLevel: 10, RequiredSTR: 5}
	cat := &Catalog{entries: entries}

	assert.False(t, MeetsRequirements(cat, 1, 9, 10, 10, 10, 10), "expected requirements unmet at level 9")
	assert.True(t, MeetsRequirements(cat, 1, 10, 5, 10, 10, 10), "expected requirements met")
}
