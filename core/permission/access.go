package permission

import "strings"

// HasAccess reports whether a `role` user holding `t` may open `module` (or its sub-module `sub`).
// A module without `sub` is reachable when its own view flag or any sub-module's view flag is on.
func HasAccess(t Tree, role Role, module, sub string) bool {
	if locked(role) {
		return true
	}
	if _, err := resolve(module, sub); err != nil {
		return false
	}
	mod, ok := t.Module(module)
	if !ok {
		return false
	}
	if sub != "" {
		c, _ := mod.Sub(sub)
		return c.View
	}
	if mod.Own.View {
		return true
	}
	for _, c := range mod.subs {
		if c.View {
			return true
		}
	}
	return false
}

// NavItem is an entry of the portal sidebar.
type NavItem struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	SubItems []NavItem `json:"sub_items,omitempty"`
}

// Navigation lists, in catalog order, the sidebar entries a `role` user holding `t` can reach.
// The dashboard is always listed.
func Navigation(t Tree, role Role) []NavItem {
	items := make([]NavItem, 0, len(catalog))
	for _, spec := range catalog {
		if spec.ID != ModuleDashboard && !HasAccess(t, role, spec.ID, "") {
			continue
		}
		item := NavItem{ID: spec.ID, Label: spec.Label}
		for _, sub := range spec.Subs {
			if HasAccess(t, role, spec.ID, sub.ID) {
				item.SubItems = append(item.SubItems, NavItem{ID: sub.ID, Label: sub.Label})
			}
		}
		items = append(items, item)
	}
	return items
}

// Change is a single flag that differs between two trees.
type Change struct {
	Module string `json:"module"`
	Sub    string `json:"sub_module,omitempty"`
	Action Action `json:"action"`
	From   bool   `json:"from"`
	To     bool   `json:"to"`
}

func (c Change) Path() string {
	parts := []string{c.Module}
	if c.Sub != "" {
		parts = append(parts, c.Sub)
	}
	return strings.Join(append(parts, string(c.Action)), ".")
}

// Diff lists, in catalog order, every flag whose value differs from `before` to `after`.
func Diff(before, after Tree) []Change {
	var changes []Change
	cmp := func(module, sub string, b, a Capabilities) {
		for _, act := range Actions {
			if b.Get(act) != a.Get(act) {
				changes = append(changes, Change{Module: module, Sub: sub, Action: act, From: b.Get(act), To: a.Get(act)})
			}
		}
	}
	for _, spec := range catalog {
		bmod, amod := before.modules[spec.ID], after.modules[spec.ID]
		cmp(spec.ID, "", bmod.Own, amod.Own)
		for _, sub := range spec.Subs {
			cmp(spec.ID, sub.ID, bmod.subs[sub.ID], amod.subs[sub.ID])
		}
	}
	return changes
}
