package pool

import (
	json "github.com/goccy/go-json"
)

// Stats captures a point-in-time snapshot of pool occupancy and lifetime
// counters.
type Stats struct {
	Pool        string `json:"pool"`
	Capacity    int    `json:"capacity"`
	InUse       int    `json:"in_use"`
	Free        int    `json:"free"`
	Acquires    uint64 `json:"acquires"`
	Releases    uint64 `json:"releases"`
	Exhaustions uint64 `json:"exhaustions"`
}

// Stats returns a consistent snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	held := p.held
	p.mu.Unlock()

	return Stats{
		Pool:        p.name,
		Capacity:    len(p.handles),
		InUse:       held,
		Free:        len(p.handles) - held,
		Acquires:    p.acquires.Load(),
		Releases:    p.releases.Load(),
		Exhaustions: p.exhaustions.Load(),
	}
}

// JSON encodes the snapshot for operational dumps.
func (s Stats) JSON() ([]byte, error) {
	return json.Marshal(s)
}
