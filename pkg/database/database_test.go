package database

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/oasysai/oasysdb/pkg/collection"
	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

func testConfig() collection.Config {
	cfg := collection.DefaultConfig()
	cfg.Seed = 42
	return cfg
}

func TestCreateSaveReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.Create("articles", testConfig())
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := c.InsertMany(types.ManyRandomRecords(rng, 16, 100)...); err != nil {
		t.Fatal(err)
	}
	if err := db.Save("articles"); err != nil {
		t.Fatal(err)
	}

	// The manifest and a snapshot file exist.
	if _, err := os.Stat(filepath.Join(dir, "manifest.yaml")); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Collection("articles")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 100 {
		t.Fatalf("reopened len = %d, want 100", got.Len())
	}

	record, err := got.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	original, _ := c.Get(0)
	for i := range record.Vector {
		if record.Vector[i] != original.Vector[i] {
			t.Fatal("reopened record differs")
		}
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Create("a", testConfig()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Create("a", testConfig()); err == nil {
		t.Fatal("duplicate create succeeded")
	}
	if _, err := db.Create("", testConfig()); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestNamesSorted(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zebra", "alpha", "mid"} {
		if _, err := db.Create(name, testConfig()); err != nil {
			t.Fatal(err)
		}
	}
	names := db.Names()
	want := []string{"alpha", "mid", "zebra"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v", names)
		}
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := db.Create("gone", testConfig())
	rng := rand.New(rand.NewSource(2))
	c.InsertMany(types.ManyRandomRecords(rng, 8, 10)...)
	if err := db.Save("gone"); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete("gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Collection("gone"); err == nil {
		t.Fatal("deleted collection still accessible")
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reopened.Names()) != 0 {
		t.Fatalf("reopened names = %v", reopened.Names())
	}

	if err := db.Delete("never"); err == nil {
		t.Fatal("deleting an unknown collection succeeded")
	}
}

func TestSaveUnknownFails(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Save("missing"); err == nil {
		t.Fatal("saving an unknown collection succeeded")
	}
}

func TestPutRegistersExisting(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(3))
	c, err := collection.Build(testConfig(), types.ManyRandomRecords(rng, 8, 40))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put("imported", c); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveAll(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Collection("imported")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 40 {
		t.Fatalf("len = %d, want 40", got.Len())
	}
}

func TestCompactExportImport(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	records := make([]types.Record, 60)
	for i := range records {
		records[i] = types.Record{
			Vector: vector.Random(rng, 12),
			Data:   metadata.Object{"i": metadata.Integer(int64(i))},
		}
	}
	c, err := collection.Build(testConfig(), records)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := ExportCompact(&buf, c); err != nil {
		t.Fatal(err)
	}

	imported, err := ImportCompact(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if imported.Len() != 60 {
		t.Fatalf("imported len = %d, want 60", imported.Len())
	}

	// Vectors are rounded to half precision; metadata is exact.
	for id := vector.ID(0); id < 60; id++ {
		got, err := imported.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		want := records[id]
		if !metadata.Equal(got.Data, want.Data) {
			t.Fatalf("metadata %d differs", id)
		}
		for i := range want.Vector {
			if math.Abs(float64(got.Vector[i]-want.Vector[i])) > 1e-2 {
				t.Fatalf("vector %d component %d: %f vs %f", id, i, got.Vector[i], want.Vector[i])
			}
		}
	}

	// The imported collection searches.
	results, err := imported.Search(records[7].Vector, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 7 {
		t.Fatalf("search on imported collection: %+v", results)
	}
}

func TestCompactImportRejectsGarbage(t *testing.T) {
	if _, err := ImportCompact(bytes.NewReader([]byte("not a compact export"))); err == nil {
		t.Fatal("garbage accepted")
	}
}
