package metadata

import "strings"

const resourceToken = "resource"

// ResourceGroup is the set of attributes sharing one resource_<index> prefix.
type ResourceGroup struct {
	// Key is the group prefix, e.g. "resource_1".
	Key string

	attrs map[string]string
	order []string

	// Repeated lists attributes that had more than one value; the last value
	// is the one kept.
	Repeated []string
}

// IsResourceField reports whether field belongs to the resource namespace.
func IsResourceField(field string) bool {
	first, _, _ := strings.Cut(field, "_")
	return first == resourceToken
}

// splitResourceField splits resource_<index>_<attribute> into its group key
// and attribute. ok is false when field has no attribute part.
func splitResourceField(field string) (key, attr string, ok bool) {
	parts := strings.SplitN(field, "_", 3)
	if len(parts) < 3 || parts[0] != resourceToken || parts[2] == "" {
		return "", "", false
	}
	return parts[0] + "_" + parts[1], parts[2], true
}

// ResourceGroups groups the resource fields of f. Groups are returned in the
// order their first attribute appears in the source table.
func ResourceGroups(f *Fields) []*ResourceGroup {
	var groups []*ResourceGroup
	byKey := make(map[string]*ResourceGroup)

	for _, field := range f.keys {
		key, attr, ok := splitResourceField(field)
		if !ok {
			continue
		}
		g, seen := byKey[key]
		if !seen {
			g = &ResourceGroup{Key: key, attrs: make(map[string]string)}
			byKey[key] = g
			groups = append(groups, g)
		}
		vals := f.values[field]
		if len(vals) > 1 {
			g.Repeated = append(g.Repeated, attr)
		}
		if _, dup := g.attrs[attr]; !dup {
			g.order = append(g.order, attr)
		}
		if len(vals) > 0 {
			g.attrs[attr] = vals[len(vals)-1]
		} else {
			g.attrs[attr] = ""
		}
	}
	return groups
}

// Get returns the value of attr.
func (g *ResourceGroup) Get(attr string) string {
	return g.attrs[attr]
}

// Lookup returns the value of attr and whether it was present.
func (g *ResourceGroup) Lookup(attr string) (string, bool) {
	v, ok := g.attrs[attr]
	return v, ok
}

// Attributes returns the attribute names in first-seen order.
func (g *ResourceGroup) Attributes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
