package metadata

import (
	"bytes"
	"errors"
	"testing"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

func sampleObject() Object {
	return Object{
		"title":  Text("vector databases"),
		"year":   Integer(2024),
		"score":  Float(0.75),
		"public": Boolean(true),
		"tags":   Array{Text("ann"), Text("hnsw")},
		"nested": Object{"depth": Integer(2)},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := sampleObject()

	data, err := ToJSON(original)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	decoded, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !Equal(original, decoded) {
		t.Fatalf("round-trip mismatch: %v != %v", original, decoded)
	}
}

func TestJSONNumberSplit(t *testing.T) {
	cases := []struct {
		in   string
		want Metadata
	}{
		{`42`, Integer(42)},
		{`-7`, Integer(-7)},
		{`0.5`, Float(0.5)},
		{`1e3`, Float(1000)},
		{`9223372036854775807`, Integer(9223372036854775807)},
		{`9223372036854775808`, Float(9223372036854775808)},
	}
	for _, tc := range cases {
		got, err := FromJSON([]byte(tc.in))
		if err != nil {
			t.Fatalf("FromJSON(%s): %v", tc.in, err)
		}
		if !Equal(got, tc.want) {
			t.Errorf("FromJSON(%s) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestJSONRejectsNull(t *testing.T) {
	if _, err := FromJSON([]byte(`null`)); err == nil {
		t.Fatal("expected an error for JSON null")
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	values := []Metadata{
		Text(""),
		Text("hello"),
		Integer(0),
		Integer(-123456789),
		Float(3.14159),
		Boolean(false),
		Boolean(true),
		Array{},
		Array{Integer(1), Text("two"), Array{Boolean(true)}},
		sampleObject(),
	}

	for _, value := range values {
		encoded := AppendBinary(nil, value)
		decoded, used, err := DecodeBinary(encoded)
		if err != nil {
			t.Fatalf("DecodeBinary(%#v): %v", value, err)
		}
		if used != len(encoded) {
			t.Fatalf("DecodeBinary(%#v) consumed %d of %d bytes", value, used, len(encoded))
		}
		if !Equal(value, decoded) {
			t.Fatalf("binary round-trip mismatch: %#v != %#v", value, decoded)
		}
	}
}

func TestBinaryDeterministic(t *testing.T) {
	// Two objects with the same content must encode to the same bytes
	// regardless of map iteration order.
	a := Object{"x": Integer(1), "y": Integer(2), "z": Integer(3)}
	b := Object{"z": Integer(3), "y": Integer(2), "x": Integer(1)}

	for i := 0; i < 16; i++ {
		if !bytes.Equal(AppendBinary(nil, a), AppendBinary(nil, b)) {
			t.Fatal("object encoding depends on insertion order")
		}
	}
}

func TestBinaryRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{0xFF},
		{0x01, 0x05, 'a'},       // text length overruns
		{0x04, 0x02},            // boolean out of range
		{0x03, 0x00, 0x00},      // float truncated
		{0x05, 0x02, 0x01, 0x01}, // array element truncated
	}
	for _, buf := range cases {
		if _, _, err := DecodeBinary(buf); !errors.Is(err, oaserr.CorruptStream) {
			t.Errorf("DecodeBinary(%x) = %v, want CorruptStream", buf, err)
		}
	}
}

func TestMatch(t *testing.T) {
	stored := sampleObject()

	cases := []struct {
		name  string
		query Metadata
		want  bool
	}{
		{"substring", Object{"title": Text("vector")}, true},
		{"substring miss", Object{"title": Text("graph")}, false},
		{"integer equal", Object{"year": Integer(2024)}, true},
		{"integer not equal", Object{"year": Integer(2023)}, false},
		{"integer against float", Object{"score": Integer(0)}, false},
		{"float equal", Object{"score": Float(0.75)}, true},
		{"boolean", Object{"public": Boolean(true)}, true},
		{"missing key", Object{"author": Text("x")}, false},
		{"nested", Object{"nested": Object{"depth": Integer(2)}}, true},
		{"multi key", Object{"year": Integer(2024), "public": Boolean(true)}, true},
		{"multi key one miss", Object{"year": Integer(2024), "public": Boolean(false)}, false},
		{"text query on object", Text("vector"), false},
	}
	for _, tc := range cases {
		got, err := Match(stored, tc.query)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}

	// Plain text against plain text.
	if ok, err := Match(Text("hello world"), Text("lo wo")); err != nil || !ok {
		t.Errorf("text contains: got (%v, %v)", ok, err)
	}
}

func TestMatchArrayUnsupported(t *testing.T) {
	_, err := Match(sampleObject(), Array{Text("ann")})
	if !errors.Is(err, oaserr.Unsupported) {
		t.Fatalf("array filter: got %v, want Unsupported", err)
	}

	// Nested array filters are rejected too.
	_, err = Match(sampleObject(), Object{"tags": Array{Text("ann")}})
	if !errors.Is(err, oaserr.Unsupported) {
		t.Fatalf("nested array filter: got %v, want Unsupported", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	original := sampleObject()
	clone := Clone(original).(Object)

	clone["title"] = Text("changed")
	clone["nested"].(Object)["depth"] = Integer(99)

	if original["title"] != Text("vector databases") {
		t.Fatal("clone shares the top-level map")
	}
	if original["nested"].(Object)["depth"] != Integer(2) {
		t.Fatal("clone shares nested maps")
	}
}
