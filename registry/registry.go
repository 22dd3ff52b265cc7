// Package registry keeps the service records published through the adapter.
package registry

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
)

// Record is a registered service record. The descriptor is opaque here, its
// encoding belongs to the SDP layer.
type Record struct {
	Handle     uint32
	Descriptor []byte
	Hint       uint8
}

// Registry owns the record table. Handles come from a monotonic counter and
// are never reused while the process lives.
type Registry struct {
	mu      sync.Mutex
	last    uint32
	records map[uint32]*Record

	adapter adapter.Reader
	logger  bthal.Logger
}

// New returns an empty registry gated on a's readiness.
func New(a adapter.Reader) *Registry {
	return &Registry{
		records: make(map[uint32]*Record),
		adapter: a,
		logger:  bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "registry"}),
	}
}

// Add stores a new record and returns its handle. The adapter must be Ready.
func (r *Registry) Add(descriptor []byte, hint uint8) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// checked under the lock so a concurrent unregister either rejects this
	// add or purges it
	if st := r.adapter.State(); st != adapter.Ready {
		return 0, errors.Wrapf(bthal.ErrNotReady, "add record in state %v", st)
	}
	if len(descriptor) == 0 {
		return 0, errors.Wrap(bthal.ErrInvalidParams, "empty descriptor")
	}

	if r.last == math.MaxUint32 {
		return 0, errors.New("record handle space exhausted")
	}
	r.last++

	d := make([]byte, len(descriptor))
	copy(d, descriptor)
	r.records[r.last] = &Record{Handle: r.last, Descriptor: d, Hint: hint}

	r.logger.Debugf("added record 0x%08x hint 0x%02x (%d bytes)", r.last, hint, len(d))
	return r.last, nil
}

// Remove deletes the record with handle h. It does not require a Ready
// adapter so owners can clean up at any time.
func (r *Registry) Remove(h uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[h]; !ok {
		return errors.Wrapf(bthal.ErrNotFound, "record 0x%08x", h)
	}
	delete(r.records, h)

	r.logger.Debugf("removed record 0x%08x", h)
	return nil
}

// PurgeAll removes every record. It runs when the adapter is unregistered and
// returns the number of records dropped.
func (r *Registry) PurgeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	for h := range r.records {
		delete(r.records, h)
	}
	if n > 0 {
		r.logger.Infof("purged %d records", n)
	}
	return n
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Hints returns the union of the service class hints of all records.
func (r *Registry) Hints() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hints uint8
	for _, rec := range r.records {
		hints |= rec.Hint
	}
	return hints
}
