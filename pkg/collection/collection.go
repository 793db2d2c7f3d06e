package collection

import (
	"slices"
	"sort"
	"sync"

	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/hnsw"
	"github.com/oasysai/oasysdb/pkg/core/metadata"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/store"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

// Collection is a mutable set of vector records with an incremental HNSW
// index. Reads may run in parallel; writes take the collection exclusively.
// The embedded lock enforces that contract for callers that share a
// collection across goroutines.
type Collection struct {
	mu sync.RWMutex

	config Config
	metric distance.Metric
	distFn distance.Func

	// relevancy is the distance cutoff applied after search. Negative
	// disables it.
	relevancy float32

	// dimension is fixed by the first insert (or SetDimension) and
	// enforced on every vector crossing the boundary.
	dimension int

	store *store.Store
	index *hnsw.Index
}

// New creates an empty collection with the given configuration.
func New(config Config) (*Collection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	metric, err := config.Metric()
	if err != nil {
		return nil, err
	}
	distFn, err := distance.Get(metric)
	if err != nil {
		return nil, err
	}
	index, err := hnsw.New(config.EfConstruction, config.EfSearch, config.Ml, metric, config.Seed)
	if err != nil {
		return nil, err
	}

	return &Collection{
		config:    config,
		metric:    metric,
		distFn:    distFn,
		relevancy: -1.0,
		store:     store.New(),
		index:     index,
	}, nil
}

// Build creates a collection from an initial batch of records. Equivalent to
// New followed by InsertMany, but large batches are linked in parallel
// unless a deterministic seed is configured.
func Build(config Config, records []types.Record) (*Collection, error) {
	c, err := New(config)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return c, nil
	}

	for _, record := range records {
		if err := c.checkVector(record.Vector); err != nil {
			return nil, err
		}
		if err := c.checkDimension(record.Vector); err != nil {
			return nil, err
		}
	}

	entries := make([]hnsw.BatchEntry, len(records))
	for i, record := range records {
		id, err := c.store.Put(record.Vector, record.Data)
		if err != nil {
			return nil, err
		}
		stored, _ := c.store.VectorRef(id)
		entries[i] = hnsw.BatchEntry{ID: id, Vector: stored}
	}

	if config.Seed != 0 {
		c.index.AddBatchSequential(entries)
	} else {
		c.index.AddBatch(entries)
	}
	return c, nil
}

// Config returns the collection configuration.
func (c *Collection) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Insert stores a record and links it into the index, returning its ID.
func (c *Collection) Insert(record types.Record) (vector.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(record)
}

func (c *Collection) insert(record types.Record) (vector.ID, error) {
	if err := c.checkVector(record.Vector); err != nil {
		return vector.Invalid, err
	}
	if err := c.checkDimension(record.Vector); err != nil {
		return vector.Invalid, err
	}

	id, err := c.store.Put(record.Vector, record.Data)
	if err != nil {
		return vector.Invalid, err
	}
	stored, _ := c.store.VectorRef(id)
	c.index.Insert(id, stored)
	return id, nil
}

// InsertMany stores a batch of records sequentially, returning their IDs in
// input order.
func (c *Collection) InsertMany(records ...types.Record) ([]vector.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Validate the whole batch before touching the collection.
	for _, record := range records {
		if err := c.checkVector(record.Vector); err != nil {
			return nil, err
		}
		if err := c.checkDimension(record.Vector); err != nil {
			return nil, err
		}
	}

	ids := make([]vector.ID, 0, len(records))
	for _, record := range records {
		id, err := c.insert(record)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Get returns a copy of the record for an ID.
func (c *Collection) Get(id vector.ID) (types.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(id)
}

// Update replaces a record's data. A metadata-only change updates in place;
// a vector change re-links the node in the graph, retaining its level and
// its ID.
func (c *Collection) Update(id vector.ID, record types.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.store.VectorRef(id)
	if !ok {
		return oaserr.RecordNotFound(uint32(id))
	}
	if err := c.checkVector(record.Vector); err != nil {
		return err
	}
	if len(record.Vector) != c.dimension {
		return oaserr.InvalidDimension(len(record.Vector), c.dimension)
	}

	if slices.Equal(current, record.Vector) {
		return c.store.Replace(id, nil, record.Data)
	}

	if err := c.store.Replace(id, record.Vector, record.Data); err != nil {
		return err
	}
	stored, _ := c.store.VectorRef(id)
	return c.index.Relink(id, stored)
}

// Delete removes a record and unlinks its node from every layer. The ID is
// tombstoned and never reissued.
func (c *Collection) Delete(id vector.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Contains(id) {
		return oaserr.RecordNotFound(uint32(id))
	}
	if err := c.index.Delete(id); err != nil {
		return err
	}
	return c.store.Remove(id)
}

// List returns a copy of every live record keyed by ID. The canonical order
// of the keys is ascending ID.
func (c *Collection) List() (map[vector.ID]types.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make(map[vector.ID]types.Record, c.store.Len())
	c.store.IterLive(func(id vector.ID, record *types.Record) bool {
		records[id] = record.Clone()
		return true
	})
	return records, nil
}

// Search returns the k approximate nearest neighbors of the query vector,
// ascending by distance, after applying the relevancy cutoff.
func (c *Collection) Search(query vector.Vector, k int) ([]types.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store.Len() == 0 {
		return []types.SearchResult{}, nil
	}
	if err := c.checkQuery(query, k); err != nil {
		return nil, err
	}

	candidates := c.index.Search(query, k)
	results := make([]types.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		record, err := c.store.Get(cand.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, types.SearchResult{
			ID:       cand.ID,
			Distance: cand.Distance,
			Data:     record.Data,
		})
	}
	return c.truncateIrrelevant(results), nil
}

// TrueSearch is the brute-force reference search: the exact k nearest
// neighbors by linear scan, under the same ranking and relevancy rules.
func (c *Collection) TrueSearch(query vector.Vector, k int) ([]types.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store.Len() == 0 {
		return []types.SearchResult{}, nil
	}
	if err := c.checkQuery(query, k); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, c.store.Len())
	c.store.IterLive(func(id vector.ID, record *types.Record) bool {
		results = append(results, types.SearchResult{
			ID:       id,
			Distance: c.distFn(query, record.Vector),
			Data:     metadata.Clone(record.Data),
		})
		return true
	})

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return distance.Less(results[i].Distance, results[j].Distance)
		}
		return results[i].ID < results[j].ID
	})

	results = c.truncateIrrelevant(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Filter returns every record whose metadata matches the query, per the
// recursive matching rules of the metadata package. Array filters are not
// supported.
func (c *Collection) Filter(query metadata.Metadata) (map[vector.ID]types.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make(map[vector.ID]types.Record)
	var matchErr error
	c.store.IterLive(func(id vector.ID, record *types.Record) bool {
		ok, err := metadata.Match(record.Data, query)
		if err != nil {
			matchErr = err
			return false
		}
		if ok {
			matches[id] = record.Clone()
		}
		return true
	})
	if matchErr != nil {
		return nil, matchErr
	}
	return matches, nil
}

// Contains reports whether an ID refers to a live record.
func (c *Collection) Contains(id vector.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Contains(id)
}

// Len returns the number of live records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// IsEmpty reports whether the collection has no live records.
func (c *Collection) IsEmpty() bool {
	return c.Len() == 0
}

// Dimension returns the configured vector dimension, zero when unset.
func (c *Collection) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// SetDimension fixes the vector dimension ahead of the first insert. Fails
// on a non-empty collection.
func (c *Collection) SetDimension(dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Len() != 0 {
		return oaserr.New(oaserr.KindNonEmptyCollection, "the collection must be empty to set its dimension")
	}
	if dimension < 0 {
		return oaserr.New(oaserr.KindInvalidConfig, "dimension must not be negative, got %d", dimension)
	}
	c.dimension = dimension
	return nil
}

// Relevancy returns the current distance cutoff. Negative means disabled.
func (c *Collection) Relevancy() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relevancy
}

// SetRelevancy sets the distance cutoff applied after search. Results with a
// distance beyond the cutoff are dropped; any negative value disables it.
func (c *Collection) SetRelevancy(relevancy float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relevancy = relevancy
}

// truncateIrrelevant applies the relevancy cutoff. All supported metrics are
// smaller-is-closer, so results above the cutoff are dropped.
func (c *Collection) truncateIrrelevant(results []types.SearchResult) []types.SearchResult {
	if c.relevancy < 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if !distance.Less(c.relevancy, r.Distance) {
			kept = append(kept, r)
		}
	}
	return kept
}

// checkVector rejects empty vectors and non-finite components.
func (c *Collection) checkVector(vec vector.Vector) error {
	if vec.IsEmpty() {
		return oaserr.New(oaserr.KindInvalidVector, "the vector must not be empty")
	}
	if !vec.IsFinite() {
		return oaserr.New(oaserr.KindInvalidVector, "the vector must not contain NaN or Inf")
	}
	return nil
}

// checkDimension enforces the collection dimension, adopting the vector's
// dimension when the collection has none yet.
func (c *Collection) checkDimension(vec vector.Vector) error {
	if c.dimension == 0 && c.store.Len() == 0 {
		c.dimension = len(vec)
		return nil
	}
	if len(vec) != c.dimension {
		return oaserr.InvalidDimension(len(vec), c.dimension)
	}
	return nil
}

// checkQuery validates a search request against the collection.
func (c *Collection) checkQuery(query vector.Vector, k int) error {
	if k < 1 {
		return oaserr.New(oaserr.KindInvalidConfig, "k must be at least 1, got %d", k)
	}
	if err := c.checkVector(query); err != nil {
		return err
	}
	if len(query) != c.dimension {
		return oaserr.InvalidDimension(len(query), c.dimension)
	}
	return nil
}

