// Package collection implements the public contract of the vector store: a
// single-writer collection of records indexed by an incremental HNSW graph,
// with metadata filtering, relevancy cutoffs and whole-collection snapshots.
package collection

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/hnsw"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// Config tunes the collection index.
type Config struct {
	// EfConstruction is the candidate set size during insertion.
	EfConstruction int `json:"ef_construction" yaml:"ef_construction"`
	// EfSearch is the candidate set size during query. Searches asking for
	// more than EfSearch results widen the beam to k automatically.
	EfSearch int `json:"ef_search" yaml:"ef_search"`
	// Ml is the level-assignment multiplier. The optimal value is 1/ln(M).
	Ml float64 `json:"ml" yaml:"ml"`
	// Distance is the metric name: "euclidean", "cosine" or
	// "normalized-cosine".
	Distance string `json:"distance" yaml:"distance"`
	// Seed, when non-zero, makes level assignment reproducible and forces
	// bulk builds onto the sequential path so two builds of the same data
	// produce identical graphs.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfig returns the standard configuration: ef_construction 128,
// ef_search 64, ml 1/ln(32), Euclidean distance.
func DefaultConfig() Config {
	return Config{
		EfConstruction: 128,
		EfSearch:       64,
		Ml:             1 / math.Log(hnsw.M),
		Distance:       distance.Euclidean.String(),
	}
}

// Validate checks the configuration parameters.
func (c Config) Validate() error {
	if c.EfConstruction < 1 {
		return oaserr.New(oaserr.KindInvalidConfig, "ef_construction must be at least 1, got %d", c.EfConstruction)
	}
	if c.EfSearch < 1 {
		return oaserr.New(oaserr.KindInvalidConfig, "ef_search must be at least 1, got %d", c.EfSearch)
	}
	if c.Ml <= 0 || math.IsNaN(c.Ml) {
		return oaserr.New(oaserr.KindInvalidConfig, "ml must be positive, got %v", c.Ml)
	}
	_, err := distance.Parse(c.Distance)
	return err
}

// Metric resolves the configured distance name.
func (c Config) Metric() (distance.Metric, error) {
	return distance.Parse(c.Distance)
}

// LoadConfig reads a YAML config file, filling unset fields from the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, oaserr.WrapIo(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, oaserr.New(oaserr.KindInvalidConfig, "config file %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
