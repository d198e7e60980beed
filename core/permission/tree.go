package permission

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

// Action is one of the four capability flags.
type Action string

// Actions
const (
	View   Action = "view"
	Create Action = "create"
	Edit   Action = "edit"
	Delete Action = "delete"
)

var (
	Actions = []Action{View, Create, Edit, Delete}

	ErrInvalidTarget = errors.New("invalid permission target")
)

// ParseAction maps `s` to a known Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case View, Create, Edit, Delete:
		return a, nil
	}
	return "", errors.Wrapf(ErrInvalidTarget, "unknown action %q", s)
}

// Capabilities is a Capability Set: four independent flags.
type Capabilities struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

func allCapabilities(v bool) Capabilities {
	return Capabilities{View: v, Create: v, Edit: v, Delete: v}
}

func (c Capabilities) Get(a Action) bool {
	switch a {
	case View:
		return c.View
	case Create:
		return c.Create
	case Edit:
		return c.Edit
	case Delete:
		return c.Delete
	}
	return false
}

// With returns a copy of `c` with flag `a` set to `v`.
func (c Capabilities) With(a Action, v bool) Capabilities {
	switch a {
	case View:
		c.View = v
	case Create:
		c.Create = v
	case Edit:
		c.Edit = v
	case Delete:
		c.Delete = v
	}
	return c
}

// AllGranted reports whether all four flags are on.
func (c Capabilities) AllGranted() bool {
	return c.View && c.Create && c.Edit && c.Delete
}

// Module holds the flags of one catalog module.
// subs is nil for flat modules.
type Module struct {
	Own  Capabilities
	subs map[string]Capabilities
}

// Sub returns the Capability Set of sub-module `id`.
func (m Module) Sub(id string) (Capabilities, bool) {
	c, ok := m.subs[id]
	return c, ok
}

func (m Module) clone() Module {
	if m.subs == nil {
		return m
	}
	subs := make(map[string]Capabilities, len(m.subs))
	for id, c := range m.subs {
		subs[id] = c
	}
	return Module{Own: m.Own, subs: subs}
}

func (m Module) MarshalJSON() ([]byte, error) {
	if m.subs == nil {
		return json.Marshal(m.Own)
	}
	obj := make(map[string]interface{}, len(Actions)+len(m.subs))
	for _, a := range Actions {
		obj[string(a)] = m.Own.Get(a)
	}
	for id, c := range m.subs {
		obj[id] = c
	}
	return json.Marshal(obj)
}

// Tree is a complete Permission Tree.
// The zero value holds no modules; build one with Default or Normalize.
// A Tree is never mutated in place: every update returns a new Tree sharing untouched modules.
type Tree struct {
	modules map[string]Module
}

// Default returns the canonical default tree for `role`.
// Only RoleSuperAdmin changes the result: every other value, unknown strings and the empty role
// included, gets the editable tree with just dashboard.view on. Decoders that do not know the
// owner of a tree use the empty role and leave the superadmin lock to the caller.
func Default(role Role) Tree {
	t := Tree{modules: make(map[string]Module, len(catalog))}
	for _, spec := range catalog {
		mod := Module{}
		if spec.IsComposite() {
			mod.subs = make(map[string]Capabilities, len(spec.Subs))
			for _, sub := range spec.Subs {
				mod.subs[sub.ID] = Capabilities{}
			}
		}
		t.modules[spec.ID] = mod
	}
	t.modules[ModuleDashboard] = Module{Own: Capabilities{View: true}}

	if locked(role) {
		return t.grantAll()
	}
	return t
}

// grantAll sets every flag of `t` in place; `t` must be owned by the caller.
func (t Tree) grantAll() Tree {
	for id, mod := range t.modules {
		mod = mod.clone()
		mod.Own = allCapabilities(true)
		for sub := range mod.subs {
			mod.subs[sub] = allCapabilities(true)
		}
		t.modules[id] = mod
	}
	return t
}

// with returns a shallow copy of `t` whose module `id` is replaced by `mod`.
func (t Tree) with(id string, mod Module) Tree {
	modules := make(map[string]Module, len(t.modules))
	for k, v := range t.modules {
		modules[k] = v
	}
	modules[id] = mod
	return Tree{modules: modules}
}

// IsZero reports whether `t` was never built.
func (t Tree) IsZero() bool { return t.modules == nil }

// Module returns the flags of module `id`.
func (t Tree) Module(id string) (Module, bool) {
	mod, ok := t.modules[id]
	return mod, ok
}

// Capabilities returns the Capability Set addressed by `module` and optional `sub`.
func (t Tree) Capabilities(module, sub string) (Capabilities, error) {
	if _, err := resolve(module, sub); err != nil {
		return Capabilities{}, err
	}
	mod := t.modules[module]
	if sub == "" {
		return mod.Own, nil
	}
	c, _ := mod.Sub(sub)
	return c, nil
}

// Granted reports whether `action` is on at `module`/`sub`. Invalid targets are never granted.
func (t Tree) Granted(module, sub string, action Action) bool {
	c, err := t.Capabilities(module, sub)
	if err != nil {
		return false
	}
	return c.Get(action)
}

// AllGranted reports whether every flag of the tree is on.
func (t Tree) AllGranted() bool {
	if t.IsZero() {
		return false
	}
	for _, mod := range t.modules {
		if !mod.Own.AllGranted() {
			return false
		}
		for _, c := range mod.subs {
			if !c.AllGranted() {
				return false
			}
		}
	}
	return true
}

// Equal reports whether both trees hold the same flags.
func (t Tree) Equal(o Tree) bool {
	if len(t.modules) != len(o.modules) {
		return false
	}
	for id, mod := range t.modules {
		omod, ok := o.modules[id]
		if !ok || mod.Own != omod.Own || len(mod.subs) != len(omod.subs) || (mod.subs == nil) != (omod.subs == nil) {
			return false
		}
		for sub, c := range mod.subs {
			if oc, ok := omod.subs[sub]; !ok || oc != c {
				return false
			}
		}
	}
	return true
}

// Map returns the serialized form of the tree as generic nested maps.
func (t Tree) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(t.modules))
	for id, mod := range t.modules {
		obj := make(map[string]interface{}, len(Actions)+len(mod.subs))
		for _, a := range Actions {
			obj[string(a)] = mod.Own.Get(a)
		}
		for sub, c := range mod.subs {
			flags := make(map[string]interface{}, len(Actions))
			for _, a := range Actions {
				flags[string(a)] = c.Get(a)
			}
			obj[sub] = flags
		}
		out[id] = obj
	}
	return out
}

func (t Tree) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.modules)
}

// UnmarshalJSON repairs `data` over the default tree of a non-superadmin role.
// Callers knowing the owning Role should pass the result through Normalize again.
func (t *Tree) UnmarshalJSON(data []byte) error {
	*t = Normalize(data, unowned)
	return nil
}

// Value implements driver.Valuer. The tree is stored as JSON text.
func (t Tree) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tree) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = Tree{}
	case []byte:
		*t = Normalize(v, unowned)
	case string:
		*t = Normalize(v, unowned)
	default:
		return errors.Errorf("permission.Tree: cannot scan %T", src)
	}
	return nil
}

// resolve validates a module/sub-module address against the catalog.
func resolve(module, sub string) (ModuleSpec, error) {
	spec, ok := lookup(module)
	if !ok {
		return ModuleSpec{}, errors.Wrapf(ErrInvalidTarget, "unknown module %q", module)
	}
	if sub == "" {
		return spec, nil
	}
	if !spec.IsComposite() {
		return ModuleSpec{}, errors.Wrapf(ErrInvalidTarget, "module %q has no sub-modules (got %q)", module, sub)
	}
	if !spec.hasSub(sub) {
		return ModuleSpec{}, errors.Wrapf(ErrInvalidTarget, "module %q has no sub-module %q", module, sub)
	}
	return spec, nil
}
