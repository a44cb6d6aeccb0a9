package items

// Node types used by the template table.
const (
	TypeItem = "Item"
	TypeNode = "Node"
)

// Template is the static description of an item prototype.
type Template struct {
	ID     string `json:"_id"`
	Name   string `json:"_name"`
	Parent string `json:"_parent"`
	Type   string `json:"_type"`
	Props  Props  `json:"_props"`
}

// Props carries the template properties the valuation rules read.
type Props struct {
	MaxHpResource        float64 `json:"MaxHpResource,omitempty"`
	MaxResource          float64 `json:"MaxResource,omitempty"`
	MaximumNumberOfUsage int     `json:"MaximumNumberOfUsage,omitempty"`
}

// Catalog is an immutable template table. A nil Catalog knows nothing.
type Catalog struct {
	byID map[string]Template
}

// NewCatalog builds a catalog from templates.
func NewCatalog(templates []Template) *Catalog {
	c := &Catalog{byID: make(map[string]Template, len(templates))}
	for _, t := range templates {
		c.byID[t.ID] = t
	}
	return c
}

// Template returns the template with id.
func (c *Catalog) Template(id string) (Template, bool) {
	if c == nil {
		return Template{}, false
	}
	t, ok := c.byID[id]
	return t, ok
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byID)
}

// IsPrototype reports whether id is a concrete item template rather than a
// base-class node.
func (c *Catalog) IsPrototype(id string) bool {
	t, ok := c.Template(id)
	return ok && t.Type == TypeItem
}

// ParentOf returns the direct base class of id.
func (c *Catalog) ParentOf(id string) string {
	t, _ := c.Template(id)
	return t.Parent
}

// IsA reports whether id is base or descends from it.
func (c *Catalog) IsA(id, base string) bool {
	return c.matchAncestor(id, func(a string) bool { return a == base })
}

// IsAny reports whether id or any ancestor is in set.
func (c *Catalog) IsAny(id string, set Set) bool {
	return c.matchAncestor(id, set.Has)
}

func (c *Catalog) matchAncestor(id string, match func(string) bool) bool {
	// Template tables are shallow; the bound only guards against cycles.
	for depth := 0; id != "" && depth < 64; depth++ {
		if match(id) {
			return true
		}
		t, ok := c.Template(id)
		if !ok {
			return false
		}
		id = t.Parent
	}
	return false
}
