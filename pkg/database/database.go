// Package database persists a directory of named collections. Each
// collection lives in its own snapshot file; a YAML manifest maps names to
// files. Snapshots are written to a temporary file and renamed into place,
// so a crash mid-save never corrupts the previous snapshot.
//
// This layer is a thin owner of collection façades: all vector operations
// go through the collection itself.
package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/oasysai/oasysdb/pkg/collection"
	"github.com/oasysai/oasysdb/pkg/metrics"
)

const manifestFile = "manifest.yaml"

// manifestEntry records where a named collection is stored.
type manifestEntry struct {
	Name string `yaml:"name"`
	UUID string `yaml:"uuid"`
	File string `yaml:"file"`
}

type manifest struct {
	Collections []manifestEntry `yaml:"collections"`
}

// Database is a directory of named collections.
type Database struct {
	mu          sync.RWMutex
	dir         string
	entries     map[string]manifestEntry
	collections map[string]*collection.Collection
}

// Open loads the database at dir, creating the directory if needed.
// Collections whose snapshot fails to load are skipped with a warning so a
// single corrupt file does not take down the rest of the database.
func Open(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db := &Database{
		dir:         dir,
		entries:     make(map[string]manifestEntry),
		collections: make(map[string]*collection.Collection),
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest is not valid YAML: %w", err)
	}

	for _, entry := range m.Collections {
		c, err := db.loadSnapshot(entry)
		if err != nil {
			log.Printf("database: skipping collection %q: %v", entry.Name, err)
			continue
		}
		db.entries[entry.Name] = entry
		db.collections[entry.Name] = c
		metrics.TotalVectors.WithLabelValues(entry.Name).Set(float64(c.Len()))
	}
	return db, nil
}

func (db *Database) loadSnapshot(entry manifestEntry) (*collection.Collection, error) {
	f, err := os.Open(filepath.Join(db.dir, entry.File))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	start := time.Now()
	c, err := collection.Deserialize(f)
	if err != nil {
		return nil, err
	}
	metrics.SnapshotDuration.WithLabelValues(entry.Name, "load").Observe(time.Since(start).Seconds())
	return c, nil
}

// Dir returns the database directory.
func (db *Database) Dir() string { return db.dir }

// Names returns the collection names in lexicographic order.
func (db *Database) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collection returns a named collection.
func (db *Database) Collection(name string) (*collection.Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q is not found", name)
	}
	return c, nil
}

// Create adds an empty collection under the given name. The collection is
// not persisted until Save.
func (db *Database) Create(name string, config collection.Config) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}
	if _, ok := db.collections[name]; ok {
		return nil, fmt.Errorf("collection %q already exists", name)
	}

	c, err := collection.New(config)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	db.entries[name] = manifestEntry{Name: name, UUID: id, File: id + ".odb"}
	db.collections[name] = c
	return c, nil
}

// Put registers an existing collection under the given name, replacing any
// previous one. The old snapshot file, if any, is reused.
func (db *Database) Put(name string, c *collection.Collection) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if name == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	if _, ok := db.entries[name]; !ok {
		id := uuid.NewString()
		db.entries[name] = manifestEntry{Name: name, UUID: id, File: id + ".odb"}
	}
	db.collections[name] = c
	return nil
}

// Save writes a collection's snapshot to disk atomically and updates the
// manifest.
func (db *Database) Save(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.collections[name]
	if !ok {
		return fmt.Errorf("collection %q is not found", name)
	}
	entry := db.entries[name]

	start := time.Now()
	size, err := db.writeSnapshot(entry.File, c)
	if err != nil {
		return err
	}
	metrics.SnapshotDuration.WithLabelValues(name, "save").Observe(time.Since(start).Seconds())
	metrics.SnapshotBytes.WithLabelValues(name).Set(float64(size))
	metrics.TotalVectors.WithLabelValues(name).Set(float64(c.Len()))

	return db.writeManifest()
}

// SaveAll persists every collection and the manifest.
func (db *Database) SaveAll() error {
	for _, name := range db.Names() {
		if err := db.Save(name); err != nil {
			return err
		}
	}
	return nil
}

// Delete drops a collection, its snapshot file and its manifest entry.
func (db *Database) Delete(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, ok := db.entries[name]
	if !ok {
		return fmt.Errorf("collection %q is not found", name)
	}

	if err := os.Remove(filepath.Join(db.dir, entry.File)); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(db.entries, name)
	delete(db.collections, name)
	metrics.TotalVectors.DeleteLabelValues(name)

	return db.writeManifest()
}

// writeSnapshot serializes a collection to a temporary file and renames it
// over the target, returning the snapshot size.
func (db *Database) writeSnapshot(file string, c *collection.Collection) (int64, error) {
	target := filepath.Join(db.dir, file)

	tmp, err := os.CreateTemp(db.dir, file+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	if err := c.Serialize(tmp); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// writeManifest persists the manifest atomically. Caller holds the lock.
func (db *Database) writeManifest() error {
	var m manifest
	for _, entry := range db.entries {
		m.Collections = append(m.Collections, entry)
	}
	sort.Slice(m.Collections, func(i, j int) bool {
		return m.Collections[i].Name < m.Collections[j].Name
	})

	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(db.dir, manifestFile+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(db.dir, manifestFile))
}
