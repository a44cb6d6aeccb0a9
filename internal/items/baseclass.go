package items

import "sync"

// Base class ids from the host's template table.
const (
	BaseWeapon       = "5422acb9af1c889c16000029"
	BaseEssentialMod = "55802f4a4bdc2ddb688b4569"
	BaseFunctionMod  = "550aa4154bdc2dd8348b456b"
	BaseGearMod      = "55802f3e4bdc2de7118b4584"
	BaseHeadwear     = "5a341c4086f77401f2541505"
	BaseArmor        = "5448e54d4bdc2dcc718b4568"
	BaseVest         = "5448e5284bdc2dcb718b4567"
	BaseBackpack     = "5448e53e4bdc2d60728b4567"
	BasePockets      = "557596e64bdc2dc2118b4571"
	BaseKey          = "543be5e94bdc2df1348b4568"
	BaseMedKit       = "5448f39d4bdc2d0a728b4568"
	BaseFood         = "5448e8d04bdc2ddf718b4569"
	BaseDrink        = "5448e8d64bdc2dce718b4568"
)

// Equipment slots whose contents never count toward value.
const (
	SlotSecuredContainer = "SecuredContainer"
	SlotScabbard         = "Scabbard"
	SlotDogtag           = "Dogtag"
)

// Set is a frozen set of ids.
type Set map[string]struct{}

func newSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil Set is empty.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Classification sets. They are never mutated after init.
var (
	WeaponSet       = newSet(BaseWeapon)
	WeaponModSet    = newSet(BaseEssentialMod, BaseFunctionMod)
	EquipmentModSet = newSet(BaseGearMod)
	HeadSet         = newSet(BaseHeadwear)
	ArmorSet        = newSet(BaseArmor)
	VestSet         = newSet(BaseVest)
	BackpackSet     = newSet(BaseBackpack)

	nonTradeableSlots = newSet(SlotSecuredContainer, SlotScabbard, SlotDogtag)
)

var loadoutSet = sync.OnceValue(func() Set {
	union := make(Set)
	for _, s := range []Set{WeaponSet, WeaponModSet, EquipmentModSet, HeadSet, ArmorSet, VestSet, BackpackSet} {
		for id := range s {
			union[id] = struct{}{}
		}
	}
	return union
})

// IsLoadout reports whether tpl is a piece of loadout: a weapon, a mod,
// headwear, armor, a vest or a backpack.
func (c *Catalog) IsLoadout(tpl string) bool {
	return c.IsAny(tpl, loadoutSet())
}

// NonTradeableSlot reports whether slot is one of the slots excluded from
// valuation and from archived loadouts.
func NonTradeableSlot(slot string) bool {
	return nonTradeableSlots.Has(slot)
}
