package toy

import "gonum.org/v1/gonum/mat"

// Decoder carries the recurrent state of one decoding path between chunks.
type Decoder struct {
	name  string
	state *mat.Dense

	// origin back-propagates a gradient on state into the chunk that produced it;
	// nil once the state is detached.
	origin func(g *mat.Dense)
}

// HasState reports whether a state is present.
func (d *Decoder) HasState() bool {
	return d.state != nil
}

// DetachState keeps the state values but cuts them off from the graph that produced them.
func (d *Decoder) DetachState() {
	d.origin = nil
}

// Attached reports whether a gradient on the state would still reach earlier chunks.
func (d *Decoder) Attached() bool {
	return d.origin != nil
}

// State returns a copy of the current state values, nil without state.
func (d *Decoder) State() *mat.Dense {
	if d.state == nil {
		return nil
	}
	return mat.DenseCopyOf(d.state)
}

func (d *Decoder) reset() {
	d.state = nil
	d.origin = nil
}
