package gpu

// LayoutTracker remembers the last role every image was transitioned to and
// emits barriers only when the role actually changes. One tracker per
// device; images start in RoleUndefined.
type LayoutTracker struct {
	roles map[Image]ImageRole
}

func NewLayoutTracker() *LayoutTracker {
	return &LayoutTracker{roles: make(map[Image]ImageRole)}
}

// Ensure transitions img to the requested role if it is not already there.
func (t *LayoutTracker) Ensure(cmd CommandList, img Image, role ImageRole) {
	old, ok := t.roles[img]
	if !ok {
		old = RoleUndefined
	}
	if old == role {
		return
	}
	cmd.ImageBarrier(img, old, role)
	t.roles[img] = role
}

// Forget drops tracking for a destroyed image.
func (t *LayoutTracker) Forget(img Image) {
	delete(t.roles, img)
}

// Role returns the tracked role of an image.
func (t *LayoutTracker) Role(img Image) ImageRole {
	if r, ok := t.roles[img]; ok {
		return r
	}
	return RoleUndefined
}
