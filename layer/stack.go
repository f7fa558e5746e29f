package layer

import "github.com/pkg/errors"

// MaxLayers is the hard cap on a Stack's size (spec §3 LayerStack).
const MaxLayers = 8

// Stack is an ordered sequence of at most MaxLayers layers, plus the
// index of the currently-edited layer.
type Stack struct {
	layers []*Layer
	active int
}

// NewStack returns an empty Stack.
func NewStack() *Stack {
	return &Stack{}
}

// Len returns the number of layers currently in the stack.
func (s *Stack) Len() int { return len(s.layers) }

// Active returns the active layer index, or -1 if the stack is empty.
func (s *Stack) Active() int {
	if len(s.layers) == 0 {
		return -1
	}
	return s.active
}

// At returns the layer at index i.
func (s *Stack) At(i int) *Layer { return s.layers[i] }

// SetActive sets the active layer index; i must be in range.
func (s *Stack) SetActive(i int) error {
	if i < 0 || i >= len(s.layers) {
		return errors.Errorf("layer index %d out of range [0,%d)", i, len(s.layers))
	}
	s.active = i
	return nil
}

// Push appends a layer, making it active. Errors if the stack is already
// at MaxLayers.
func (s *Stack) Push(l *Layer) error {
	if len(s.layers) >= MaxLayers {
		return errors.Errorf("layer stack full at %d layers", MaxLayers)
	}
	s.layers = append(s.layers, l)
	s.active = len(s.layers) - 1
	return nil
}

// Remove deletes the layer at index i and adjusts the active index per
// spec §8 property 4: if active == i, active' = min(i, len-1); if
// active > i, active' = active-1; if active < i, active is unchanged.
func (s *Stack) Remove(i int) (*Layer, error) {
	if i < 0 || i >= len(s.layers) {
		return nil, errors.Errorf("layer index %d out of range [0,%d)", i, len(s.layers))
	}

	removed := s.layers[i]
	s.layers = append(s.layers[:i:i], s.layers[i+1:]...)

	switch {
	case len(s.layers) == 0:
		s.active = 0
	case s.active == i:
		if s.active > len(s.layers)-1 {
			s.active = len(s.layers) - 1
		}
	case s.active > i:
		s.active--
	}

	return removed, nil
}

// Move relocates the layer at index `from` to index `to`, sliding the
// layers between, but leaves pinned layers' positions undisturbed (spec
// §4.4 "pinned layers retain position"): if either endpoint or any layer
// it would have to cross is pinned, the move is a no-op.
func (s *Stack) Move(from, to int) error {
	if from < 0 || from >= len(s.layers) || to < 0 || to >= len(s.layers) {
		return errors.Errorf("move indices out of range")
	}
	if from == to {
		return nil
	}

	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		if s.layers[i].Pinned {
			return nil
		}
	}

	l := s.layers[from]
	s.layers = append(s.layers[:from:from], s.layers[from+1:]...)

	insertAt := to
	s.layers = append(s.layers[:insertAt], append([]*Layer{l}, s.layers[insertAt:]...)...)

	if s.active == from {
		s.active = insertAt
	}

	return nil
}

// Enabled returns every enabled layer in draw order (index-ascending),
// the order the compositor and per-frame render loop iterate.
func (s *Stack) Enabled() []*Layer {
	out := make([]*Layer, 0, len(s.layers))
	for _, l := range s.layers {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}

// Destroy releases every layer's GPU resources.
func (s *Stack) Destroy() {
	for _, l := range s.layers {
		l.Destroy()
	}
	s.layers = nil
}
