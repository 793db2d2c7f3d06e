package store

import (
	"errors"
	"testing"

	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

func TestPutAllocatesDenseIDs(t *testing.T) {
	s := New()

	for want := uint32(0); want < 10; want++ {
		id, err := s.Put(vector.Vector{1, 2}, metadata.Integer(int64(want)))
		if err != nil {
			t.Fatal(err)
		}
		if id != vector.ID(want) {
			t.Fatalf("got ID %d, want %d", id, want)
		}
	}
	if s.Len() != 10 {
		t.Fatalf("len = %d, want 10", s.Len())
	}
}

func TestGetClonesRecord(t *testing.T) {
	s := New()
	id, _ := s.Put(vector.Vector{1, 2}, metadata.Object{"k": metadata.Integer(1)})

	record, err := s.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	record.Vector[0] = 99
	record.Data.(metadata.Object)["k"] = metadata.Integer(99)

	again, _ := s.Get(id)
	if again.Vector[0] != 1 {
		t.Fatal("stored vector is shared with callers")
	}
	if again.Data.(metadata.Object)["k"] != metadata.Integer(1) {
		t.Fatal("stored metadata is shared with callers")
	}
}

func TestPutClonesInput(t *testing.T) {
	s := New()
	vec := vector.Vector{1, 2}
	id, _ := s.Put(vec, nil)

	vec[0] = 42
	record, _ := s.Get(id)
	if record.Vector[0] != 1 {
		t.Fatal("store shares the caller's vector")
	}
}

func TestRemoveTombstones(t *testing.T) {
	s := New()
	id, _ := s.Put(vector.Vector{1}, nil)

	if err := s.Remove(id); err != nil {
		t.Fatal(err)
	}
	if s.Contains(id) {
		t.Fatal("removed ID still contained")
	}
	if _, err := s.Get(id); !errors.Is(err, oaserr.NotFound) {
		t.Fatalf("get after remove: %v, want NotFound", err)
	}
	if err := s.Remove(id); !errors.Is(err, oaserr.NotFound) {
		t.Fatalf("double remove: %v, want NotFound", err)
	}

	// The tombstoned ID is never reissued.
	next, _ := s.Put(vector.Vector{2}, nil)
	if next != id+1 {
		t.Fatalf("got ID %d after tombstoning %d, want %d", next, id, id+1)
	}
	if s.Deleted() != 1 {
		t.Fatalf("deleted = %d, want 1", s.Deleted())
	}
}

func TestReplace(t *testing.T) {
	s := New()
	id, _ := s.Put(vector.Vector{1, 2}, metadata.Text("a"))

	// Metadata only.
	if err := s.Replace(id, nil, metadata.Text("b")); err != nil {
		t.Fatal(err)
	}
	record, _ := s.Get(id)
	if record.Data != metadata.Text("b") || record.Vector[0] != 1 {
		t.Fatalf("after metadata replace: %+v", record)
	}

	// Vector only.
	if err := s.Replace(id, vector.Vector{3, 4}, nil); err != nil {
		t.Fatal(err)
	}
	record, _ = s.Get(id)
	if record.Vector[0] != 3 || record.Data != metadata.Text("b") {
		t.Fatalf("after vector replace: %+v", record)
	}

	if err := s.Replace(99, vector.Vector{1}, nil); !errors.Is(err, oaserr.NotFound) {
		t.Fatalf("replace unknown: %v, want NotFound", err)
	}
}

func TestIterLiveAscending(t *testing.T) {
	s := New()
	for i := 0; i < 20; i++ {
		s.Put(vector.Vector{float32(i)}, nil)
	}
	for i := 0; i < 20; i += 3 {
		s.Remove(vector.ID(i))
	}

	var seen []vector.ID
	s.IterLive(func(id vector.ID, record *types.Record) bool {
		seen = append(seen, id)
		if record.Vector[0] != float32(id) {
			t.Fatalf("record %d carries vector %v", id, record.Vector)
		}
		return true
	})

	if len(seen) != 13 {
		t.Fatalf("iterated %d records, want 13", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("iteration not ascending: %v", seen)
		}
	}
	for _, id := range seen {
		if id%3 == 0 {
			t.Fatalf("iteration yielded tombstoned ID %d", id)
		}
	}
}
