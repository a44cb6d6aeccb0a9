package items

// Quality returns the 0..1 condition factor of it. Items without a
// condition component are 1.
func (c *Catalog) Quality(it Item) float64 {
	if it.Upd == nil {
		return 1
	}
	t, _ := c.Template(it.Tpl)
	u := it.Upd

	switch {
	case u.Repairable != nil:
		return ratio(u.Repairable.Durability, u.Repairable.MaxDurability)
	case u.MedKit != nil:
		return ratio(u.MedKit.HpResource, t.Props.MaxHpResource)
	case u.FoodDrink != nil:
		return ratio(u.FoodDrink.HpPercent, t.Props.MaxResource)
	case u.Resource != nil:
		return ratio(u.Resource.Value, t.Props.MaxResource)
	case u.Key != nil:
		maxUses := float64(t.Props.MaximumNumberOfUsage)
		return ratio(maxUses-float64(u.Key.NumberOfUsages), maxUses)
	}
	return 1
}

// ratio clamps v/max to [0,1]; an unknown maximum counts as full condition.
func ratio(v, max float64) float64 {
	if max <= 0 {
		return 1
	}
	q := v / max
	switch {
	case q < 0:
		return 0
	case q > 1:
		return 1
	}
	return q
}
