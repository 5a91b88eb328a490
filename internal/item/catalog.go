// Package item implements the canonical in-memory item value — amount,
// refinement, luck, durability, sockets — and its catalogue, loaded once
// at startup from a packed binary file of fixed-size records
// (SPEC_FULL.md §4.7).
package item

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ClassAny is the required_class sentinel meaning "any class may equip."
const ClassAny uint32 = 0xFFFFFFFF

// entryRecordSize is the fixed on-disk size of one ItemCatalogEntry
// record: name(64) + type(4) + requiredClass(4) + reqLevel/STR/INT/DEX/CON
// (4 each) + basePrice(4) + baseSellPrice(4) + baseDurability(4) +
// physCoefficient(4) + defCoefficient(4) + stackable(1) + refinable(1) +
// padding(2).
const entryRecordSize = 64 + 4 + 4 + 4*5 + 4 + 4 + 4 + 4 + 4 + 1 + 1 + 2

// ItemType classifies a catalogue entry for max-durability fallback and
// equip-slot logic.
type ItemType uint32

const (
	TypeMisc ItemType = iota
	TypeWeapon
	TypeArmor
	TypeAccessory
	TypeMount
)

// ItemCatalogEntry is one static, load-time-frozen catalogue record
// (SPEC_FULL.md §3 ItemCatalogEntry).
type ItemCatalogEntry struct {
	Name              string
	Type              ItemType
	RequiredClass     uint32
	RequiredLevel     int32
	RequiredSTR       int32
	RequiredINT       int32
	RequiredDEX       int32
	RequiredCON       int32
	BasePrice         uint32
	BaseSellPrice     uint32
	BaseDurability    uint32
	PhysCoefficient   uint32
	DefCoefficient    uint32
	Stackable         bool
	Refinable         bool
}

func (e ItemCatalogEntry) isDamageable() bool {
	switch e.Type {
	case TypeWeapon, TypeArmor, TypeAccessory, TypeMount:
		return true
	default:
		return false
	}
}

// Catalog is the frozen, process-wide item catalogue. Read-only after
// Load returns — no lock is needed (SPEC_FULL.md §5 shared-resource
// policy).
type Catalog struct {
	entries []ItemCatalogEntry // index 0 is the empty sentinel
}

// Load reads a packed binary catalogue file: a flat array of fixed-size
// ItemCatalogEntry records. Record at index 0 is the empty sentinel: it
// is kept in the slice as decoded, purely so catalogue indices map
// directly to slice indices, and Entry never returns it.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("item: open catalogue %s: %w", path, err)
	}
	defer f.Close()

	var entries []ItemCatalogEntry
	buf := make([]byte, entryRecordSize)
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("item: read catalogue record %d: %w", len(entries), err)
		}
		entries = append(entries, decodeEntry(buf))
	}

	if len(entries) == 0 {
		entries = append(entries, ItemCatalogEntry{})
	}

	return &Catalog{entries: entries}, nil
}

func decodeEntry(buf []byte) ItemCatalogEntry {
	name := trimNullPadding(buf[0:64])
	o := 64
	e := ItemCatalogEntry{
		Name:          name,
		Type:          ItemType(binary.LittleEndian.Uint32(buf[o:])),
		RequiredClass: binary.LittleEndian.Uint32(buf[o+4:]),
		RequiredLevel: int32(binary.LittleEndian.Uint32(buf[o+8:])),
		RequiredSTR:   int32(binary.LittleEndian.Uint32(buf[o+12:])),
		RequiredINT:   int32(binary.LittleEndian.Uint32(buf[o+16:])),
		RequiredDEX:   int32(binary.LittleEndian.Uint32(buf[o+20:])),
		RequiredCON:   int32(binary.LittleEndian.Uint32(buf[o+24:])),
	}
	o += 28
	e.BasePrice = binary.LittleEndian.Uint32(buf[o:])
	e.BaseSellPrice = binary.LittleEndian.Uint32(buf[o+4:])
	e.BaseDurability = binary.LittleEndian.Uint32(buf[o+8:])
	e.PhysCoefficient = binary.LittleEndian.Uint32(buf[o+12:])
	e.DefCoefficient = binary.LittleEndian.Uint32(buf[o+16:])
	o += 20
	e.Stackable = buf[o] != 0
	e.Refinable = buf[o+1] != 0
	return e
}

func trimNullPadding(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Entry returns the catalogue entry at index id, or (zero, false) if id
// is out of range or is the reserved sentinel index 0.
func (c *Catalog) Entry(id uint16) (ItemCatalogEntry, bool) {
	if id == 0 || int(id) >= len(c.entries) {
		return ItemCatalogEntry{}, false
	}
	return c.entries[id], true
}

// Warn logs an unknown catalogue id lookup, matching new_item's
// documented behavior of logging a warning rather than failing.
func Warn(id uint16) {
	slog.Warn("item: unknown catalogue id", "id", id)
}
