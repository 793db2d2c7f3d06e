// Package store implements the record store: the ordered mapping from vector
// IDs to their stored vector and metadata. It owns ID allocation and
// tombstone accounting; the graph nodes that mirror these IDs live in the
// index core and are kept in lockstep by the collection façade.
package store

import (
	"github.com/tidwall/btree"

	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

// degree is the btree fan-out. The value mirrors the library default used
// for the secondary indexes it was adopted from.
const degree = 32

// Store maps vector IDs to live records. Iteration is always in ascending ID
// order. IDs are handed out densely from a counter that only advances, so a
// deleted ID is never reissued.
type Store struct {
	records *btree.Map[uint32, types.Record]
	nextID  uint32
}

// New creates an empty record store.
func New() *Store {
	return &Store{records: btree.NewMap[uint32, types.Record](degree)}
}

// Put stores a copy of the record under a freshly allocated ID. The empty
// node for the new ID is created by the index core afterwards.
func (s *Store) Put(vec vector.Vector, data metadata.Metadata) (vector.ID, error) {
	if vector.ID(s.nextID) == vector.Invalid {
		return vector.Invalid, oaserr.New(oaserr.KindUnsupported, "the collection record limit of %d is reached", uint32(vector.Invalid))
	}

	id := s.nextID
	s.nextID++
	s.records.Set(id, types.Record{Vector: vec.Clone(), Data: metadata.Clone(data)})
	return vector.ID(id), nil
}

// PutAt stores a record under an explicit ID. Used when restoring a
// collection from a snapshot; does not touch the ID counter.
func (s *Store) PutAt(id vector.ID, record types.Record) {
	s.records.Set(uint32(id), record)
}

// Get returns a copy of the record, or NotFound for unknown and tombstoned IDs.
func (s *Store) Get(id vector.ID) (types.Record, error) {
	record, ok := s.records.Get(uint32(id))
	if !ok {
		return types.Record{}, oaserr.RecordNotFound(uint32(id))
	}
	return record.Clone(), nil
}

// VectorRef returns the stored vector without copying. The reference is
// internal to the collection core and must not escape to callers.
func (s *Store) VectorRef(id vector.ID) (vector.Vector, bool) {
	record, ok := s.records.Get(uint32(id))
	if !ok {
		return nil, false
	}
	return record.Vector, true
}

// Replace updates the stored vector and/or metadata in place. A nil vector
// or nil metadata keeps the current value.
func (s *Store) Replace(id vector.ID, vec vector.Vector, data metadata.Metadata) error {
	record, ok := s.records.Get(uint32(id))
	if !ok {
		return oaserr.RecordNotFound(uint32(id))
	}
	if vec != nil {
		record.Vector = vec.Clone()
	}
	if data != nil {
		record.Data = metadata.Clone(data)
	}
	s.records.Set(uint32(id), record)
	return nil
}

// Remove deletes the record and tombstones its ID.
func (s *Store) Remove(id vector.ID) error {
	if _, ok := s.records.Delete(uint32(id)); !ok {
		return oaserr.RecordNotFound(uint32(id))
	}
	return nil
}

// Contains reports whether the ID refers to a live record.
func (s *Store) Contains(id vector.ID) bool {
	_, ok := s.records.Get(uint32(id))
	return ok
}

// Len returns the number of live records.
func (s *Store) Len() int {
	return s.records.Len()
}

// Deleted returns the number of tombstoned IDs. IDs are dense, so this is
// the gap between the allocation counter and the live count.
func (s *Store) Deleted() int {
	return int(s.nextID) - s.records.Len()
}

// NextID returns the next ID the store will allocate.
func (s *Store) NextID() vector.ID {
	return vector.ID(s.nextID)
}

// SetNextID moves the allocation counter. Used when restoring a snapshot;
// the value is not checked against the IDs of the stored records.
func (s *Store) SetNextID(id vector.ID) {
	s.nextID = uint32(id)
}

// IterLive calls fn for every live record in ascending ID order, until fn
// returns false. The record reference is only valid during the call.
func (s *Store) IterLive(fn func(id vector.ID, record *types.Record) bool) {
	s.records.Scan(func(key uint32, record types.Record) bool {
		return fn(vector.ID(key), &record)
	})
}
