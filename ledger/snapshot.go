package ledger

import "sort"

// Get returns a copy of the live position on an instrument, if any.
func (l *Ledger) Get(instrument string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.live[instrument]
	if !ok {
		return Position{}, false
	}
	return *l.positions[id], true
}

// GetByID returns a copy of any recorded position, live or closed.
func (l *Ledger) GetByID(id string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenCount reports how many positions are live (pending, open or closing).
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Snapshot returns copies of all live positions, ordered by instrument so
// every cycle walks them deterministically.
func (l *Ledger) Snapshot() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.live))
	for _, id := range l.live {
		out = append(out, *l.positions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}
