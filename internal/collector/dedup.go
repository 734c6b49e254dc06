package collector

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultCapacity is the number of fingerprints kept.
	DefaultCapacity = 500
	// DefaultStorageKey is the persistence key for fingerprints.
	DefaultStorageKey = "context_collector_hashes_v1"

	fingerprintRunes = 2000
)

// Fingerprint is the dedup identity of a message: its role and the first
// 2000 runes of its text.
func Fingerprint(m Message) string {
	text := m.Text
	if utf8.RuneCountInString(text) > fingerprintRunes {
		text = string([]rune(text)[:fingerprintRunes])
	}
	return string(m.Role) + "::" + text
}

// Dedup is a bounded FIFO of message fingerprints. It is not safe for
// concurrent use; the Pipeline serializes access.
type Dedup struct {
	capacity  int
	key       string
	persister Persister
	order     []string
	index     map[string]int
	// detached copies do not report DedupSize
	detached bool
}

// NewDedup creates a store holding up to capacity fingerprints, persisted
// through p under key. A nil p keeps fingerprints in memory only.
func NewDedup(p Persister, key string, capacity int) *Dedup {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if key == "" {
		key = DefaultStorageKey
	}
	return &Dedup{
		capacity:  capacity,
		key:       key,
		persister: p,
		index:     make(map[string]int),
	}
}

// Has reports whether fp is currently held.
func (d *Dedup) Has(fp string) bool {
	return d.index[fp] > 0
}

// Record appends fp, evicting the oldest fingerprints beyond capacity.
func (d *Dedup) Record(fp string) {
	d.order = append(d.order, fp)
	d.index[fp]++
	for len(d.order) > d.capacity {
		old := d.order[0]
		d.order = d.order[1:]
		if d.index[old]--; d.index[old] <= 0 {
			delete(d.index, old)
		}
	}
	if !d.detached {
		DedupSize.Set(float64(len(d.order)))
	}
}

// Len returns the number of fingerprints held.
func (d *Dedup) Len() int {
	return len(d.order)
}

// Fingerprints returns a copy of the held fingerprints, oldest first.
func (d *Dedup) Fingerprints() []string {
	return append([]string(nil), d.order...)
}

// detach returns an in-memory copy of d that is never persisted.
func (d *Dedup) detach() *Dedup {
	c := &Dedup{
		capacity: d.capacity,
		key:      d.key,
		order:    append([]string(nil), d.order...),
		index:    make(map[string]int, len(d.index)),
		detached: true,
	}
	for k, v := range d.index {
		c.index[k] = v
	}
	return c
}

// Load replaces the held fingerprints with the persisted ones, keeping the
// newest capacity entries.
func (d *Dedup) Load(ctx context.Context) error {
	if d.persister == nil {
		return nil
	}
	fps, err := d.persister.Get(ctx, d.key)
	if err != nil {
		return fmt.Errorf("loading fingerprints: %w", err)
	}
	d.order = d.order[:0]
	clear(d.index)
	for _, fp := range fps {
		d.Record(fp)
	}
	DedupSize.Set(float64(len(d.order)))
	return nil
}

// Save overwrites the persisted fingerprints with the held ones.
func (d *Dedup) Save(ctx context.Context) error {
	if d.persister == nil {
		return nil
	}
	if err := d.persister.Set(ctx, d.key, d.Fingerprints()); err != nil {
		return fmt.Errorf("saving fingerprints: %w", err)
	}
	return nil
}
