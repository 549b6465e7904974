package vectorstore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// denseConfig is a per-collection HNSW setting rather than one
// process-wide store.
type denseConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

func defaultDenseConfig(dim int) denseConfig {
	return denseConfig{Dimensions: dim, M: 16, EfSearch: 20}
}

// denseIndex wraps coder/hnsw per-collection: lazy deletion (never calls
// graph.Delete, which breaks coder/hnsw when the last node is removed),
// cosine normalization on insert and query.
type denseIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config denseConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

type denseMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  denseConfig
}

func newDenseIndex(cfg denseConfig) *denseIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &denseIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}
}

func (d *denseIndex) add(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range vectors {
		if len(v) != d.config.Dimensions {
			return fmt.Errorf("dimension mismatch: expected %d, got %d", d.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := d.idMap[id]; exists {
			delete(d.keyMap, existingKey)
			delete(d.idMap, id)
		}

		key := d.nextKey
		d.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		d.graph.Add(hnsw.MakeNode(key, vec))
		d.idMap[id] = key
		d.keyMap[key] = id
	}

	return nil
}

func (d *denseIndex) search(query []float32, k int) ([]*VectorHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(query) != d.config.Dimensions {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", d.config.Dimensions, len(query))
	}
	if d.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := d.graph.Search(normalized, k)
	results := make([]*VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := d.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		distance := d.graph.Distance(normalized, node.Value)
		results = append(results, &VectorHit{
			ID:       id,
			Distance: distance,
			Score:    1.0 - distance/2.0, // cosine distance in [0,2]
		})
	}
	return results, nil
}

func (d *denseIndex) delete(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if key, exists := d.idMap[id]; exists {
			delete(d.keyMap, key)
			delete(d.idMap, id)
		}
	}
}

func (d *denseIndex) allIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.idMap))
	for id := range d.idMap {
		ids = append(ids, id)
	}
	return ids
}

func (d *denseIndex) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.idMap)
}

// save persists the HNSW graph and ID mappings to path/path.meta atomically.
func (d *denseIndex) save(path string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := d.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return d.saveMetadata(path + ".meta")
}

func (d *denseIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := denseMetadata{IDMap: d.idMap, NextKey: d.nextKey, Config: d.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (d *denseIndex) load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := d.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (d *denseIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta denseMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	d.idMap = meta.IDMap
	d.nextKey = meta.NextKey
	d.config = meta.Config
	d.keyMap = make(map[uint64]string, len(d.idMap))
	for id, key := range d.idMap {
		d.keyMap[key] = id
	}
	return nil
}

// VectorHit is a single dense search result.
type VectorHit struct {
	ID       string
	Distance float32
	Score    float32
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
