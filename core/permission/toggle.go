package permission

// Toggle inverts one flag of `t`: `action` on `module`, or on its sub-module `sub` when given.
// An empty `sub` on a composite module addresses the module's own flags.
//
// Trees owned by a superadmin are returned unchanged.
// Addressing anything outside the catalog returns ErrInvalidTarget and `t` unchanged.
// A zero Tree is treated as Default(role).
func Toggle(t Tree, role Role, module string, action Action, sub string) (Tree, error) {
	if _, err := resolve(module, sub); err != nil {
		return t, err
	}
	if _, err := ParseAction(string(action)); err != nil {
		return t, err
	}
	if locked(role) {
		return t, nil
	}
	if t.IsZero() {
		t = Default(role)
	}

	mod := t.modules[module].clone()
	if sub == "" {
		mod.Own = mod.Own.With(action, !mod.Own.Get(action))
	} else {
		c := mod.subs[sub]
		mod.subs[sub] = c.With(action, !c.Get(action))
	}
	return t.with(module, mod), nil
}

// ToggleAll switches a whole row on or off:
//   - `sub` given: the four flags of that sub-module;
//   - composite module, no `sub`: every sub-module in lockstep (the module's own flags are untouched);
//   - flat module: the module's four flags.
//
// The row is switched off only when every targeted flag is currently on; any mixed state switches it on.
func ToggleAll(t Tree, role Role, module, sub string) (Tree, error) {
	spec, err := resolve(module, sub)
	if err != nil {
		return t, err
	}
	if locked(role) {
		return t, nil
	}
	if t.IsZero() {
		t = Default(role)
	}

	mod := t.modules[module].clone()
	switch {
	case sub != "":
		mod.subs[sub] = allCapabilities(!mod.subs[sub].AllGranted())
	case spec.IsComposite():
		allOn := true
		for _, s := range spec.Subs {
			if !mod.subs[s.ID].AllGranted() {
				allOn = false
				break
			}
		}
		for _, s := range spec.Subs {
			mod.subs[s.ID] = allCapabilities(!allOn)
		}
	default:
		mod.Own = allCapabilities(!mod.Own.AllGranted())
	}
	return t.with(module, mod), nil
}
