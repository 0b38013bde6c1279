// Package proximity arbitrates which button a pointer is closest to.
//
// Several buttons may report that the same pointer hovers near them; only
// the closest one should react. A Registry keeps, per pointer, the button
// with the smallest reported distance.
package proximity

import "sync"

type claim[B comparable] struct {
	button   B
	distance float64
}

// Registry maps each pointer to its closest button. The zero value is not
// usable; call NewRegistry. It is safe for concurrent use.
type Registry[P, B comparable] struct {
	mu      sync.RWMutex
	closest map[P]claim[B]
}

// NewRegistry returns an empty registry.
func NewRegistry[P, B comparable]() *Registry[P, B] {
	return &Registry[P, B]{closest: make(map[P]claim[B])}
}

// Report records that button is distance away from pointer. The button
// takes over when it is strictly closer than the current holder. A report
// from the holder itself refreshes its distance.
func (r *Registry[P, B]) Report(pointer P, button B, distance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.closest[pointer]
	if !ok || cur.button == button || distance < cur.distance {
		r.closest[pointer] = claim[B]{button: button, distance: distance}
	}
}

// IsClosest reports whether button currently holds pointer.
func (r *Registry[P, B]) IsClosest(pointer P, button B) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.closest[pointer]
	return ok && cur.button == button
}

// Closest returns the button holding pointer.
func (r *Registry[P, B]) Closest(pointer P) (B, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.closest[pointer]
	return cur.button, ok
}

// Unregister releases pointer if button holds it.
func (r *Registry[P, B]) Unregister(pointer P, button B) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.closest[pointer]; ok && cur.button == button {
		delete(r.closest, pointer)
	}
}

// Reset forgets every pointer.
func (r *Registry[P, B]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.closest)
}
