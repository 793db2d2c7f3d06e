// Package types holds the small value types shared between the record store,
// the index core and the collection façade.
package types

import (
	"math/rand"

	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

// Record pairs a vector embedding with its associated metadata.
type Record struct {
	Vector vector.Vector
	Data   metadata.Metadata
}

// Clone returns a record that shares no mutable state with the receiver.
func (r Record) Clone() Record {
	return Record{
		Vector: r.Vector.Clone(),
		Data:   metadata.Clone(r.Data),
	}
}

// SearchResult is a single nearest-neighbor hit: the record ID, its distance
// to the query, and a copy of the stored metadata.
type SearchResult struct {
	ID       vector.ID
	Distance float32
	Data     metadata.Metadata
}

// Candidate is the index-internal search unit: an ID and its distance to the
// current target.
type Candidate struct {
	ID       vector.ID
	Distance float32
}

// RandomRecord generates a record with a uniform random vector and an
// integer payload. Test helper.
func RandomRecord(rng *rand.Rand, dimension int) Record {
	return Record{
		Vector: vector.Random(rng, dimension),
		Data:   metadata.Integer(rng.Int63()),
	}
}

// ManyRandomRecords generates a batch of random records. Test helper.
func ManyRandomRecords(rng *rand.Rand, dimension, n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = RandomRecord(rng, dimension)
	}
	return records
}
