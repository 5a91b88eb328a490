package item

import "math"

const (
	maxStackAmount  = 999
	maxRefine       = 15
	maxOption       = 9
	fallbackDurability = 60
)

// Socket holds one socketed option/gem on a refinable item.
type Socket struct {
	OptionID uint16
	Value    int32
}

// Item is the canonical in-memory item value: no identity of its own, it
// is stored inline wherever inventories live (SPEC_FULL.md §3 Item).
type Item struct {
	CatalogID uint16
	Amount    uint16

	Refine uint8 // 0-15
	Luck   bool
	Option uint8 // 0-9

	CurrentDurability uint32
	MaxDurability      uint32

	Sockets []Socket
	Effects []uint32
}

// IsEmpty reports whether item is the zero/empty item (catalog id 0).
func (it Item) IsEmpty() bool { return it.CatalogID == 0 }

// NewItem constructs an item per SPEC_FULL.md §4.7 new_item: clamps
// amount/refine/option to their valid ranges, derives max durability from
// the catalogue, and falls back to the empty item for id 0 or an unknown
// catalogue id (logging a warning in the latter case).
func NewItem(cat *Catalog, id uint16, amount int, refine int, luck bool, option int) Item {
	if id == 0 {
		return Item{}
	}

	entry, ok := cat.Entry(id)
	if !ok {
		Warn(id)
		return Item{}
	}

	it := Item{CatalogID: id}

	if entry.Stackable {
		it.Amount = uint16(clampInt(amount, 1, maxStackAmount))
	} else {
		it.Amount = 1
	}

	if entry.Refinable {
		it.Refine = uint8(clampInt(refine, 0, maxRefine))
		if luck {
			it.Luck = true
		}
		it.Option = uint8(clampInt(option, 0, maxOption))
	}

	it.MaxDurability = computeMaxDurability(entry)
	it.CurrentDurability = it.MaxDurability

	return it
}

func computeMaxDurability(entry ItemCatalogEntry) uint32 {
	if entry.BaseDurability > 0 {
		return entry.BaseDurability
	}
	if entry.isDamageable() {
		return fallbackDurability
	}
	return 0
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// IsStackable reports whether it's catalogue entry allows stacking.
func (it Item) IsStackable(cat *Catalog) bool {
	entry, ok := cat.Entry(it.CatalogID)
	return ok && entry.Stackable
}

// IsRefinable reports whether it's catalogue entry allows refinement.
func (it Item) IsRefinable(cat *Catalog) bool {
	entry, ok := cat.Entry(it.CatalogID)
	return ok && entry.Refinable
}

// IsDamaged reports whether the item's current durability is below its
// max.
func (it Item) IsDamaged() bool {
	return it.MaxDurability > 0 && it.CurrentDurability < it.MaxDurability
}

// Price computes the item's buy or sell price per SPEC_FULL.md §4.7:
// catalogue base price, durability scaling when selling a damaged item,
// refine/luck/option multipliers, and stackable amount scaling.
func Price(cat *Catalog, it Item, selling bool) uint32 {
	entry, ok := cat.Entry(it.CatalogID)
	if !ok {
		return 0
	}

	base := float64(entry.BasePrice)
	if selling {
		base = float64(entry.BaseSellPrice)
	}

	if selling && it.IsDamaged() && it.MaxDurability > 0 {
		base *= float64(it.CurrentDurability) / float64(it.MaxDurability)
	}

	if entry.Refinable && it.Refine > 0 {
		base *= 1 + 0.20*float64(it.Refine)
	}
	if it.Luck {
		base *= 1.30
	}
	if it.Option > 0 {
		base *= 1 + 0.25*float64(it.Option)
	}
	if entry.Stackable && it.Amount > 1 {
		base *= float64(it.Amount)
	}

	return uint32(math.Round(base))
}

// CanEquip reports whether class may equip the catalogue entry at id:
// true if the entry's required class is the "any" sentinel or matches
// class exactly.
func CanEquip(cat *Catalog, id uint16, class uint32) bool {
	entry, ok := cat.Entry(id)
	if !ok {
		return false
	}
	return entry.RequiredClass == ClassAny || entry.RequiredClass == class
}

// MeetsRequirements reports whether all of the catalogue entry's stat and
// level thresholds are met.
func MeetsRequirements(cat *Catalog, id uint16, level, str, intel, dex, con int32) bool {
	entry, ok := cat.Entry(id)
	if !ok {
		return false
	}
	return level >= entry.RequiredLevel &&
		str >= entry.RequiredSTR &&
		intel >= entry.RequiredINT &&
		dex >= entry.RequiredDEX &&
		con >= entry.RequiredCON
}

// RefinedValue scales base by refine per SPEC_FULL.md §4.7
// refined_value: base × (1 + 0.07 × refine), saturating at u16::MAX.
func RefinedValue(base uint16, refine uint8) uint16 {
	v := float64(base) * (1 + 0.07*float64(refine))
	if v > float64(math.MaxUint16) {
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
