// Package inmemory provides a map-backed storage driver for tests and for
// running without a database.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/substream/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards records
	mu sync.RWMutex

	records map[uuid.UUID]*storage.Record
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[uuid.UUID]*storage.Record),
	}
}

// Put stores a copy of record. Returns true if the record was newly
// inserted, false if its ID already existed.
func (d *Driver) Put(_ context.Context, record *storage.Record) (bool, error) {
	if record == nil {
		return false, storage.ErrNilRecord
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[record.ID]; ok {
		return false, nil
	}

	d.records[record.ID] = clone(record)
	return true, nil
}

// Get retrieves a record by its ID.
func (d *Driver) Get(_ context.Context, id uuid.UUID) (*storage.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.records[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id.String()}
	}

	return clone(record), nil
}

// List returns all records, most recently completed first.
func (d *Driver) List(_ context.Context) ([]*storage.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Record, 0, len(d.records))
	for _, record := range d.records {
		result = append(result, clone(record))
	}

	slices.SortFunc(result, func(a, b *storage.Record) int {
		if c := b.CompletedAt.Compare(a.CompletedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	return result, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func clone(r *storage.Record) *storage.Record {
	c := *r
	c.Observed = slices.Clone(r.Observed)
	c.Payload = slices.Clone(r.Payload)
	return &c
}
